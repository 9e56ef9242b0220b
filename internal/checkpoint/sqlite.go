package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteBackend keeps snapshots as rows of a checkpoints table, keyed by name.
type SQLiteBackend struct {
	conn *sql.DB
	path string
	name string
}

// NewSQLiteBackend opens (creating if needed) the database at path.
// ":memory:" is accepted for tests.
func NewSQLiteBackend(path, name string) (*SQLiteBackend, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}
	if _, err := conn.Exec(`
		CREATE TABLE IF NOT EXISTS checkpoints (
			name     TEXT PRIMARY KEY,
			payload  BLOB NOT NULL,
			saved_at DATETIME NOT NULL
		)`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}
	return &SQLiteBackend{conn: conn, path: path, name: name}, nil
}

func (b *SQLiteBackend) Read(ctx context.Context) ([]byte, error) {
	var payload []byte
	err := b.conn.QueryRowContext(ctx, `SELECT payload FROM checkpoints WHERE name = ?`, b.name).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading checkpoint: %w", err)
	}
	return payload, nil
}

func (b *SQLiteBackend) Write(ctx context.Context, data []byte) error {
	_, err := b.conn.ExecContext(ctx, `
		INSERT INTO checkpoints (name, payload, saved_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET payload = excluded.payload, saved_at = excluded.saved_at`,
		b.name, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("sqlite: writing checkpoint: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Delete(ctx context.Context) error {
	res, err := b.conn.ExecContext(ctx, `DELETE FROM checkpoints WHERE name = ?`, b.name)
	if err != nil {
		return fmt.Errorf("sqlite: deleting checkpoint: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotExist
	}
	return nil
}

func (b *SQLiteBackend) Close() error {
	return b.conn.Close()
}

func (b *SQLiteBackend) String() string {
	return fmt.Sprintf("sqlite://%s#%s", b.path, b.name)
}
