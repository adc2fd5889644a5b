package persist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/Aman-CERP/stratoindex/internal/errors"
)

type sample struct {
	Items []string `json:"items"`
	Count int      `json:"count"`
}

func openDir(t *testing.T) *Dir {
	t.Helper()
	d, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestDir_SaveThenLoad(t *testing.T) {
	// Given: an open data dir
	d := openDir(t)

	// When: saving and loading a value
	require.NoError(t, d.Save("queue.json", sample{Items: []string{"file:/a"}, Count: 1}))
	var got sample
	status, err := d.Load("queue.json", &got)

	// Then: the value round-trips
	require.NoError(t, err)
	assert.Equal(t, LoadOK, status)
	assert.Equal(t, []string{"file:/a"}, got.Items)
	assert.Equal(t, 1, got.Count)
}

func TestDir_Load_MissingFile(t *testing.T) {
	d := openDir(t)

	var got sample
	status, err := d.Load("failed.json", &got)

	require.NoError(t, err)
	assert.Equal(t, LoadMissing, status)
	assert.Empty(t, got.Items)
}

func TestDir_Load_CorruptFile_BacksUpAndReturnsEmpty(t *testing.T) {
	// Given: a truncated JSON file on disk
	d := openDir(t)
	path := d.File("dead_letter.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"items": ["file:/a"`), 0o644))

	// When: loading
	var got sample
	status, err := d.Load("dead_letter.json", &got)

	// Then: no error, empty state, and the original bytes are preserved
	require.NoError(t, err)
	assert.Equal(t, LoadRecovered, status)
	assert.Empty(t, got.Items)

	backups, err := ListBackups(path, CorruptSuffix)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	data, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Equal(t, `{"items": ["file:/a"`, string(data))
}

func TestDir_Load_TypeMismatch_ResetsDestination(t *testing.T) {
	// Given: valid JSON whose second field has the wrong type
	d := openDir(t)
	path := d.File("queue.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"items": ["file:/a"], "count": "three"}`), 0o644))

	// When: loading into a destination that already holds data
	got := sample{Items: []string{"stale"}, Count: 7}
	status, err := d.Load("queue.json", &got)

	// Then: the file counts as corrupt and nothing half-decoded is left behind
	require.NoError(t, err)
	assert.Equal(t, LoadRecovered, status)
	assert.Equal(t, sample{}, got)

	backups, err := ListBackups(path, CorruptSuffix)
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}

func TestDir_Load_RejectsNonPointer(t *testing.T) {
	d := openDir(t)
	require.NoError(t, d.Save("queue.json", sample{Count: 1}))

	_, err := d.Load("queue.json", sample{})
	require.Error(t, err)

	// the good file was not treated as corrupt
	backups, err := ListBackups(d.File("queue.json"), CorruptSuffix)
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestDir_Save_LeavesNoTempFiles(t *testing.T) {
	d := openDir(t)

	require.NoError(t, d.Save("queue.json", sample{Count: 3}))
	require.NoError(t, d.Save("queue.json", sample{Count: 4}))

	entries, err := os.ReadDir(d.Path())
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, IsTempFile(e.Name()), "leftover temp file %s", e.Name())
	}
}

func TestOpen_SecondOpenIsLocked(t *testing.T) {
	// Given: a directory already opened
	dir := t.TempDir()
	first, err := Open(dir)
	require.NoError(t, err)
	defer first.Close()

	// When: opening it again
	_, err = Open(dir)

	// Then: the lock is reported
	require.Error(t, err)
	assert.Equal(t, serrors.ErrCodeLocked, serrors.GetCode(err))
}

func TestOpen_RemovesStaleTempFiles(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, ".queue.json.tmp-123")
	require.NoError(t, os.WriteFile(stale, []byte("{}"), 0o644))

	d, err := Open(dir)
	require.NoError(t, err)
	defer d.Close()

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
}

func TestBackupFile_PrunesOldBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "queue.json")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	for i := 0; i < MaxBackups+2; i++ {
		// distinct timestamps
		require.NoError(t, os.WriteFile(path+CorruptSuffix+"2020010"+string(rune('0'+i))+"-000000.000", []byte("old"), 0o644))
	}
	_, err := BackupFile(path, CorruptSuffix)
	require.NoError(t, err)

	backups, err := ListBackups(path, CorruptSuffix)
	require.NoError(t, err)
	assert.Len(t, backups, MaxBackups)
}

func TestBackupFile_MissingSource(t *testing.T) {
	backup, err := BackupFile(filepath.Join(t.TempDir(), "none.json"), CorruptSuffix)
	require.NoError(t, err)
	assert.Equal(t, "", backup)
}
