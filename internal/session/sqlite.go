package session

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store as a small key/value table using SQLite via
// modernc.org/sqlite (pure Go).
type SQLiteStore struct {
	db *sql.DB
}

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite-backed store.
// dbPath is the path to the SQLite database file; use ":memory:" for testing.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("session: open database: %w", err)
	}

	// A single connection keeps ":memory:" databases consistent.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("session: ping database: %w", err)
	}

	createTableSQL := `
		CREATE TABLE IF NOT EXISTS client_state (
			key         TEXT PRIMARY KEY,
			value       TEXT NOT NULL,
			updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("session: create table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Save writes token, email and username in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, sc *Context) error {
	if !sc.Valid() {
		return ErrNoSession
	}
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("session: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := `
		INSERT INTO client_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value      = excluded.value,
			updated_at = excluded.updated_at
	`
	stamp := sc.CreatedAt.Format(time.RFC3339)
	for _, kv := range [][2]string{
		{KeyToken, sc.Token},
		{KeyEmail, sc.Email},
		{KeyUsername, sc.Username},
	} {
		if _, err := tx.ExecContext(ctx, query, kv[0], kv[1], stamp); err != nil {
			return fmt.Errorf("session: save %s: %w", kv[0], err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("session: commit: %w", err)
	}
	return nil
}

// Load reads the stored context. Returns ErrNoSession if no token is stored.
func (s *SQLiteStore) Load(ctx context.Context) (*Context, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value, updated_at FROM client_state`)
	if err != nil {
		return nil, fmt.Errorf("session: load: %w", err)
	}
	defer rows.Close()

	sc := &Context{}
	for rows.Next() {
		var key, value, updatedAt string
		if err := rows.Scan(&key, &value, &updatedAt); err != nil {
			return nil, fmt.Errorf("session: scan row: %w", err)
		}
		switch key {
		case KeyToken:
			sc.Token = value
			sc.CreatedAt = parseStamp(updatedAt)
		case KeyEmail:
			sc.Email = value
		case KeyUsername:
			sc.Username = value
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session: iterate rows: %w", err)
	}

	if !sc.Valid() {
		return nil, ErrNoSession
	}
	return sc, nil
}

// Clear removes token, email and username together.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM client_state WHERE key IN (?, ?, ?)`,
		KeyToken, KeyEmail, KeyUsername)
	if err != nil {
		return fmt.Errorf("session: clear: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// parseStamp accepts RFC3339 and the SQLite default timestamp format.
func parseStamp(v string) time.Time {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", v); err == nil {
		return t
	}
	return time.Time{}
}
