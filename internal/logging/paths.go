package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.stratoindex/logs/).
// Falls back to the temp directory if the home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".stratoindex", "logs")
	}
	return filepath.Join(home, ".stratoindex", "logs")
}

// DefaultLogPath returns the default server log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "server.log")
}
