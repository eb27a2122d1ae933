// Package sqlite implements a file-backed domain.StateStore for deployments
// without Redis.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/alanyoungcy/spotbot/internal/domain"
)

const schema = `CREATE TABLE IF NOT EXISTS states (
	key        TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	updated_at DATETIME NOT NULL
);`

// StateStore keeps state blobs in a single SQLite table.
type StateStore struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*StateStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// One writer; avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: init schema: %w", err)
	}
	return &StateStore{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *StateStore) Close() error {
	return s.db.Close()
}

func (s *StateStore) Save(ctx context.Context, key string, data []byte) error {
	const q = `INSERT INTO states (key, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, q, key, data, s.now().UTC()); err != nil {
		return fmt.Errorf("sqlite: save state %s: %w", key, err)
	}
	return nil
}

func (s *StateStore) Load(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM states WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite: load state %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: load state %s: %w", key, err)
	}
	return data, nil
}

func (s *StateStore) Drop(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM states WHERE key = ?`, key); err != nil {
		return fmt.Errorf("sqlite: drop state %s: %w", key, err)
	}
	return nil
}

var _ domain.StateStore = (*StateStore)(nil)
