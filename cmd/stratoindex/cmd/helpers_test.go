package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/stratoindex/internal/config"
	"github.com/Aman-CERP/stratoindex/internal/embed"
	"github.com/Aman-CERP/stratoindex/internal/history"
	"github.com/Aman-CERP/stratoindex/internal/logging"
	"github.com/Aman-CERP/stratoindex/internal/queue"
)

// isolate points every path and the server address at a temp directory
// and returns the data directory.
func isolate(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	dataDir := filepath.Join(root, "data")

	t.Setenv("HOME", root)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "xdg"))
	t.Setenv(config.EnvPrefix+"DATA_DIR", dataDir)
	// nothing listens here, so commands fall back to the data directory
	t.Setenv(config.EnvPrefix+"ADDR", "127.0.0.1:1")
	return dataDir
}

// runCmd executes the root command with args and returns stdout.
func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	cmd.SetContext(context.Background())
	err := cmd.Execute()
	return out.String(), err
}

func decode(t *testing.T, s string, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(s), v), s)
}

func testConfig(t *testing.T, dataDir string) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Paths.DataDir = dataDir
	return cfg
}

// seedQueue enqueues one vector per path and closes the queue so the items
// persist unflushed.
func seedQueue(t *testing.T, dataDir string, paths ...string) {
	t.Helper()
	ctx := context.Background()
	cfg := testConfig(t, dataDir)
	s, err := openStack(ctx, cfg, logging.Discard(), stackOptions{})
	require.NoError(t, err)

	e := embed.NewStaticEmbedder(cfg.Embeddings.Dimensions)
	for _, p := range paths {
		vec, err := e.Embed(ctx, filepath.Base(p))
		require.NoError(t, err)
		res := s.queue.Enqueue(queue.Item{ID: p, Vector: vec, Type: queue.ItemFile})
		require.True(t, res.Success, res.Reason)
	}
	require.NoError(t, s.Close())
}

// writeHistory writes entries as the history export in dataDir.
func writeHistory(t *testing.T, dataDir string, entries ...history.Entry) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	data, err := json.Marshal(entries)
	require.NoError(t, err)
	path := filepath.Join(dataDir, HistoryFileName)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func invoiceEntry() history.Entry {
	return history.Entry{
		ID:         "1",
		Path:       "/docs/invoice.pdf",
		Subject:    "Invoice from the plumber",
		Summary:    "Invoice for fixing the kitchen sink",
		Category:   "finance",
		Tags:       []string{"invoice", "home"},
		AnalyzedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}
