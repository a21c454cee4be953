package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	dverrors "github.com/Aman-CERP/docvec/internal/errors"
)

// docStoreSchemaVersion tracks the docstore table layout.
const docStoreSchemaVersion = 1

// DocStore maps HNSW graph keys to chunk text and metadata in SQLite.
type DocStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// CreateDocStore creates a new, empty docstore at path. An existing file is
// an error: docstores are written once into a fresh staging directory.
func CreateDocStore(ctx context.Context, path string) (*DocStore, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, dverrors.New(dverrors.ErrCodeIndexWrite,
			fmt.Sprintf("docstore %s already exists", path), nil)
	}

	d, err := openDocStore(path)
	if err != nil {
		return nil, err
	}
	if err := d.initSchema(ctx); err != nil {
		_ = d.db.Close()
		return nil, dverrors.New(dverrors.ErrCodeIndexWrite, "failed to initialize docstore schema", err)
	}
	return d, nil
}

// OpenDocStore opens an existing docstore.
func OpenDocStore(ctx context.Context, path string) (*DocStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, dverrors.New(dverrors.ErrCodeCorruptIndex,
			fmt.Sprintf("docstore %s is missing", path), err)
	}

	d, err := openDocStore(path)
	if err != nil {
		return nil, err
	}

	var version int
	if err := d.db.QueryRowContext(ctx, "SELECT version FROM schema_version").Scan(&version); err != nil {
		_ = d.db.Close()
		return nil, dverrors.New(dverrors.ErrCodeCorruptIndex,
			fmt.Sprintf("docstore %s has no schema version", path), err)
	}
	if version != docStoreSchemaVersion {
		_ = d.db.Close()
		return nil, dverrors.New(dverrors.ErrCodeCorruptIndex,
			fmt.Sprintf("docstore schema version %d is not supported", version), nil).
			WithSuggestion("rebuild the index with docvec build")
	}
	return d, nil
}

func openDocStore(path string) (*DocStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, dverrors.New(dverrors.ErrCodeIndexWrite, "failed to open docstore", err)
	}

	// Single writer; the docstore is built in one transaction.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Rollback journal rather than WAL: the file is moved into place after
	// it is closed and must be self-contained.
	pragmas := []string{
		"PRAGMA journal_mode = DELETE",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, dverrors.New(dverrors.ErrCodeIndexWrite, "failed to set pragma", err)
		}
	}

	return &DocStore{db: db, path: path}, nil
}

func (d *DocStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS chunks (
		key      INTEGER PRIMARY KEY,
		id       TEXT    NOT NULL,
		source   TEXT    NOT NULL,
		seq      INTEGER NOT NULL,
		content  TEXT    NOT NULL,
		metadata TEXT    NOT NULL DEFAULT '{}'
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source, seq);
	`
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return err
	}
	_, err := d.db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", docStoreSchemaVersion)
	return err
}

// PutAll inserts every chunk in a single transaction.
func (d *DocStore) PutAll(ctx context.Context, chunks []StoredChunk) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return dverrors.InternalError("docstore is closed", nil)
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return dverrors.New(dverrors.ErrCodeIndexWrite, "failed to begin docstore transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO chunks (key, id, source, seq, content, metadata) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return dverrors.New(dverrors.ErrCodeIndexWrite, "failed to prepare docstore insert", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, c := range chunks {
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return dverrors.InternalError("failed to encode chunk metadata", err)
		}
		if c.Metadata == nil {
			meta = []byte("{}")
		}
		if _, err := stmt.ExecContext(ctx, int64(c.Key), c.ID, c.Source, c.Seq, c.Content, string(meta)); err != nil {
			return dverrors.New(dverrors.ErrCodeIndexWrite,
				fmt.Sprintf("failed to insert chunk %s", c.ID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return dverrors.New(dverrors.ErrCodeIndexWrite, "failed to commit docstore", err)
	}
	return nil
}

// Get returns the chunk stored under a graph key.
func (d *DocStore) Get(ctx context.Context, key uint64) (*StoredChunk, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, dverrors.InternalError("docstore is closed", nil)
	}

	var (
		c    StoredChunk
		k    int64
		meta string
	)
	err := d.db.QueryRowContext(ctx,
		"SELECT key, id, source, seq, content, metadata FROM chunks WHERE key = ?", int64(key)).
		Scan(&k, &c.ID, &c.Source, &c.Seq, &c.Content, &meta)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dverrors.New(dverrors.ErrCodeCorruptIndex,
			fmt.Sprintf("no chunk stored for key %d", key), err)
	}
	if err != nil {
		return nil, dverrors.New(dverrors.ErrCodeCorruptIndex, "failed to read docstore", err)
	}
	c.Key = uint64(k)
	if err := json.Unmarshal([]byte(meta), &c.Metadata); err != nil {
		return nil, dverrors.New(dverrors.ErrCodeCorruptIndex,
			fmt.Sprintf("chunk %s has invalid metadata", c.ID), err)
	}
	return &c, nil
}

// Count returns the number of stored chunks.
func (d *DocStore) Count(ctx context.Context) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return 0, dverrors.InternalError("docstore is closed", nil)
	}

	var n int
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n); err != nil {
		return 0, dverrors.New(dverrors.ErrCodeCorruptIndex, "failed to count chunks", err)
	}
	return n, nil
}

// Sources lists chunk counts per source document, ordered by source.
func (d *DocStore) Sources(ctx context.Context) ([]SourceCount, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, dverrors.InternalError("docstore is closed", nil)
	}

	rows, err := d.db.QueryContext(ctx,
		"SELECT source, COUNT(*) FROM chunks GROUP BY source ORDER BY source")
	if err != nil {
		return nil, dverrors.New(dverrors.ErrCodeCorruptIndex, "failed to list sources", err)
	}
	defer func() { _ = rows.Close() }()

	var out []SourceCount
	for rows.Next() {
		var sc SourceCount
		if err := rows.Scan(&sc.Source, &sc.Chunks); err != nil {
			return nil, dverrors.New(dverrors.ErrCodeCorruptIndex, "failed to read sources", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// Path returns the database file path.
func (d *DocStore) Path() string {
	return d.path
}

// Close closes the database. It is safe to call more than once.
func (d *DocStore) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	return d.db.Close()
}
