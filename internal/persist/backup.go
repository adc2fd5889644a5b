package persist

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	// MaxBackups is the number of backups kept per file.
	MaxBackups = 3

	// CorruptSuffix marks copies of files that failed to parse.
	CorruptSuffix = ".corrupt-"
)

// BackupFile copies path to "<path><suffix><timestamp>" and prunes older
// backups beyond MaxBackups. A missing source returns "" and no error.
func BackupFile(path, suffix string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read %s for backup: %w", path, err)
	}

	backupPath := path + suffix + time.Now().Format("20060102-150405.000")
	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	// pruning is best-effort; the backup itself succeeded
	_ = pruneBackups(path, suffix, MaxBackups)

	return backupPath, nil
}

// ListBackups returns backups of path, newest first.
func ListBackups(path, suffix string) ([]string, error) {
	dir := filepath.Dir(path)
	prefix := filepath.Base(path) + suffix

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var backups []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			backups = append(backups, filepath.Join(dir, e.Name()))
		}
	}
	// timestamps sort lexically
	sort.Sort(sort.Reverse(sort.StringSlice(backups)))
	return backups, nil
}

func pruneBackups(path, suffix string, keep int) error {
	backups, err := ListBackups(path, suffix)
	if err != nil {
		return err
	}
	for i := keep; i < len(backups); i++ {
		if err := os.Remove(backups[i]); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
