// Package sqlite provides a SQLite-backed history store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/smallnest/atlaschat/internal/history"
)

// Store implements history.Store using SQLite.
type Store struct {
	db        *sql.DB
	tableName string
}

var _ history.Store = (*Store)(nil)

// Options configuration for the SQLite connection.
type Options struct {
	Path      string
	TableName string // default "messages"
}

// NewStore opens (or creates) the database and ensures the schema exists.
func NewStore(opts Options) (*Store, error) {
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	tableName := opts.TableName
	if tableName == "" {
		tableName = "messages"
	}

	store := &Store{
		db:        db,
		tableName: tableName,
	}

	if err := store.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_%s_session_id ON %s (session_id);
	`, s.tableName, s.tableName, s.tableName)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Append inserts messages in a single transaction.
func (s *Store) Append(ctx context.Context, sessionID string, msgs ...history.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt := fmt.Sprintf("INSERT INTO %s (session_id, role, content) VALUES (?, ?, ?)", s.tableName)
	for _, m := range msgs {
		if _, err := tx.ExecContext(ctx, stmt, sessionID, m.Role, m.Content); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	return tx.Commit()
}

// Get returns a session's messages in insertion order.
func (s *Store) Get(ctx context.Context, sessionID string) ([]history.Message, error) {
	query := fmt.Sprintf("SELECT role, content FROM %s WHERE session_id = ? ORDER BY seq", s.tableName)
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	defer rows.Close()

	var msgs []history.Message
	for rows.Next() {
		var m history.Message
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(msgs) == 0 {
		return nil, history.ErrSessionNotFound
	}
	return msgs, nil
}

// Clear removes a session's messages.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE session_id = ?", s.tableName)
	if _, err := s.db.ExecContext(ctx, stmt, sessionID); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// Sessions lists distinct session IDs.
func (s *Store) Sessions(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf("SELECT DISTINCT session_id FROM %s ORDER BY session_id", s.tableName)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
