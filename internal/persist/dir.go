package persist

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	serrors "github.com/Aman-CERP/stratoindex/internal/errors"
	"github.com/Aman-CERP/stratoindex/internal/logging"
)

// LoadStatus reports what Load found on disk.
type LoadStatus int

const (
	// LoadOK means the file existed and parsed.
	LoadOK LoadStatus = iota
	// LoadMissing means there was no file; v is untouched.
	LoadMissing
	// LoadRecovered means the file was corrupt, was backed up, and v was
	// left at its zero value.
	LoadRecovered
)

// String returns a string representation of the status.
func (s LoadStatus) String() string {
	switch s {
	case LoadOK:
		return "ok"
	case LoadMissing:
		return "missing"
	case LoadRecovered:
		return "recovered"
	default:
		return "unknown"
	}
}

// Dir is a locked data directory holding named JSON state files.
type Dir struct {
	path   string
	lock   *DirLock
	logger *slog.Logger

	// serializes writers of the same name; different names are independent
	mu    sync.Mutex
	names map[string]*sync.Mutex
}

// Option configures a Dir.
type Option func(*Dir)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dir) {
		if l != nil {
			d.logger = l
		}
	}
}

// Open creates path if needed and takes the single-writer lock.
func Open(path string, opts ...Option) (*Dir, error) {
	d := &Dir{
		path:   path,
		logger: logging.Discard(),
		names:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(d)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, serrors.New(serrors.ErrCodePersistFailed, "create data directory", err).
			WithDetail("dir", path)
	}

	d.lock = NewDirLock(path)
	ok, err := d.lock.TryLock()
	if err != nil {
		return nil, serrors.New(serrors.ErrCodePersistFailed, "lock data directory", err).
			WithDetail("dir", path)
	}
	if !ok {
		return nil, serrors.New(serrors.ErrCodeLocked, "data directory is in use by another process", nil).
			WithDetail("dir", path).
			WithSuggestion("stop the other stratoindex process or point --data-dir elsewhere")
	}

	d.removeStaleTemps()
	return d, nil
}

// Path returns the directory path.
func (d *Dir) Path() string {
	return d.path
}

// File returns the absolute path of a named state file.
func (d *Dir) File(name string) string {
	return filepath.Join(d.path, name)
}

func (d *Dir) nameLock(name string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.names[name]
	if !ok {
		m = &sync.Mutex{}
		d.names[name] = m
	}
	return m
}

// Load decodes the named file into v, which must be a non-nil pointer.
// Corrupt content never returns an error: the file is backed up, *v is
// reset to its zero value and LoadRecovered is reported.
func (d *Dir) Load(name string, v any) (LoadStatus, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return LoadMissing, serrors.InternalError(fmt.Sprintf("load %s: destination must be a non-nil pointer, got %T", name, v), nil)
	}

	m := d.nameLock(name)
	m.Lock()
	defer m.Unlock()

	path := d.File(name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return LoadMissing, nil
		}
		return LoadMissing, serrors.New(serrors.ErrCodePersistFailed, "read state file", err).
			WithDetail("file", path)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return LoadMissing, nil
	}

	if err := json.Unmarshal(data, v); err != nil {
		// a type error can leave v half decoded
		rv.Elem().Set(reflect.Zero(rv.Elem().Type()))
		backup, berr := BackupFile(path, CorruptSuffix)
		d.logger.Warn("state_file_corrupt",
			slog.String("file", path),
			slog.String("backup", backup),
			slog.String("error", err.Error()))
		if berr != nil {
			d.logger.Error("state_file_backup_failed",
				slog.String("file", path),
				slog.String("error", berr.Error()))
		}
		return LoadRecovered, nil
	}

	return LoadOK, nil
}

// Save atomically replaces the named file with v encoded as JSON.
func (d *Dir) Save(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return serrors.New(serrors.ErrCodePersistFailed, "encode state", err).WithDetail("file", name)
	}

	m := d.nameLock(name)
	m.Lock()
	defer m.Unlock()

	if err := writeFileAtomic(d.File(name), data); err != nil {
		return serrors.New(serrors.ErrCodePersistFailed, "write state file", err).WithDetail("file", name)
	}
	return nil
}

// Remove deletes the named file if it exists.
func (d *Dir) Remove(name string) error {
	err := os.Remove(d.File(name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Close releases the directory lock.
func (d *Dir) Close() error {
	if d.lock == nil {
		return nil
	}
	return d.lock.Unlock()
}

// writeFileAtomic writes data to a temp file beside path, syncs it and
// renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op after a successful rename
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func (d *Dir) removeStaleTemps() {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() || !IsTempFile(e.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(d.path, e.Name())); err == nil {
			d.logger.Debug("removed_stale_temp", slog.String("file", e.Name()))
		}
	}
}

// IsTempFile reports whether name is a leftover from an interrupted Save.
func IsTempFile(name string) bool {
	return strings.HasPrefix(name, ".") && strings.Contains(name, ".tmp-")
}
