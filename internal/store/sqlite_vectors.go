package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	// Pure Go SQLite driver, no CGO.
	_ "modernc.org/sqlite"
)

// sqliteVectors is the write-through durability layer of VectorStore.
type sqliteVectors struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// move re-keys one record; used by UpdateFilePaths.
type move struct {
	ns    Namespace
	oldID string
	rec   Record
}

func openSQLiteVectors(ctx context.Context, path string, logger *slog.Logger) (*sqliteVectors, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector database: %w", err)
	}

	// Single writer; the store serializes access anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// DSN params may be ignored by modernc.org/sqlite, so set pragmas directly.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	var integrity string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&integrity); err != nil || integrity != "ok" {
		_ = db.Close()
		if err == nil {
			err = fmt.Errorf("integrity check: %s", integrity)
		}
		return nil, fmt.Errorf("vector database %s is corrupt: %w", path, err)
	}

	s := &sqliteVectors{db: db, path: path, logger: logger}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *sqliteVectors) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS vectors (
		namespace  TEXT NOT NULL,
		id         TEXT NOT NULL,
		vector     BLOB NOT NULL,
		metadata   TEXT NOT NULL DEFAULT '{}',
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (namespace, id)
	);

	INSERT OR IGNORE INTO meta (key, value) VALUES ('schema_version', '1');
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *sqliteVectors) dimension(ctx context.Context) (int, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'dimension'`).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read dimension: %w", err)
	}
	return strconv.Atoi(v)
}

func (s *sqliteVectors) setDimension(ctx context.Context, dim int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES ('dimension', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, strconv.Itoa(dim))
	if err != nil {
		return fmt.Errorf("failed to write dimension: %w", err)
	}
	return nil
}

func (s *sqliteVectors) each(ctx context.Context, fn func(Namespace, Record)) error {
	rows, err := s.db.QueryContext(ctx, `SELECT namespace, id, vector, metadata, updated_at FROM vectors`)
	if err != nil {
		return fmt.Errorf("failed to load vectors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ns      string
			rec     Record
			blob    []byte
			meta    string
			updated int64
		)
		if err := rows.Scan(&ns, &rec.ID, &blob, &meta, &updated); err != nil {
			return fmt.Errorf("failed to scan vector row: %w", err)
		}
		rec.Vector = decodeVector(blob)
		rec.UpdatedAt = time.Unix(0, updated).UTC()
		if meta != "" && meta != "{}" {
			if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
				s.logger.Warn("vector_metadata_corrupt",
					slog.String("id", rec.ID),
					slog.String("error", err.Error()))
			}
		}
		fn(Namespace(ns), rec)
	}
	return rows.Err()
}

func (s *sqliteVectors) put(ctx context.Context, ns Namespace, recs []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := putTx(ctx, tx, ns, recs); err != nil {
		return err
	}
	return tx.Commit()
}

func putTx(ctx context.Context, tx *sql.Tx, ns Namespace, recs []Record) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO vectors (namespace, id, vector, metadata, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(namespace, id) DO UPDATE SET
			vector = excluded.vector, metadata = excluded.metadata, updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		meta := "{}"
		if len(rec.Metadata) > 0 {
			b, err := json.Marshal(rec.Metadata)
			if err != nil {
				return fmt.Errorf("failed to encode metadata for %s: %w", rec.ID, err)
			}
			meta = string(b)
		}
		if _, err := stmt.ExecContext(ctx, string(ns), rec.ID, encodeVector(rec.Vector), meta, rec.UpdatedAt.UnixNano()); err != nil {
			return fmt.Errorf("failed to upsert %s: %w", rec.ID, err)
		}
	}
	return nil
}

func (s *sqliteVectors) delete(ctx context.Context, ns Namespace, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM vectors WHERE namespace = ? AND id = ?`, string(ns), id); err != nil {
			return fmt.Errorf("failed to delete %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func (s *sqliteVectors) rename(ctx context.Context, moves []move) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// every old row goes before any insert; the batch is one step
	for _, m := range moves {
		if _, err := tx.ExecContext(ctx, `DELETE FROM vectors WHERE namespace = ? AND id = ?`, string(m.ns), m.oldID); err != nil {
			return fmt.Errorf("failed to remove %s: %w", m.oldID, err)
		}
	}
	for _, m := range moves {
		if err := putTx(ctx, tx, m.ns, []Record{m.rec}); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteVectors) reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM vectors; DELETE FROM meta WHERE key = 'dimension';`)
	if err != nil {
		return fmt.Errorf("failed to reset vector database: %w", err)
	}
	return nil
}

func (s *sqliteVectors) close() error {
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// encodeVector packs float32s little-endian.
func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
