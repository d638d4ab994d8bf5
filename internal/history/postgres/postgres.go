// Package postgres provides a PostgreSQL-backed history store.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smallnest/atlaschat/internal/history"
)

// DBPool defines the interface for database connection pool
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store implements history.Store using PostgreSQL.
type Store struct {
	pool      DBPool
	tableName string
}

var _ history.Store = (*Store)(nil)

// Options configuration for the Postgres connection.
type Options struct {
	ConnString string
	TableName  string // default "messages"
}

// NewStore creates a new Postgres history store and ensures the schema.
func NewStore(ctx context.Context, opts Options) (*Store, error) {
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	store := NewStoreWithPool(pool, opts.TableName)
	if err := store.InitSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewStoreWithPool creates a store with an existing pool.
// Useful for testing with mocks.
func NewStoreWithPool(pool DBPool, tableName string) *Store {
	if tableName == "" {
		tableName = "messages"
	}
	return &Store{
		pool:      pool,
		tableName: tableName,
	}
}

// InitSchema creates the necessary table if it doesn't exist.
func (s *Store) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			seq BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_%s_session_id ON %s (session_id);
	`, s.tableName, s.tableName, s.tableName)

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Append inserts messages.
func (s *Store) Append(ctx context.Context, sessionID string, msgs ...history.Message) error {
	stmt := fmt.Sprintf("INSERT INTO %s (session_id, role, content) VALUES ($1, $2, $3)", s.tableName)
	for _, m := range msgs {
		if _, err := s.pool.Exec(ctx, stmt, sessionID, m.Role, m.Content); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}
	return nil
}

// Get returns a session's messages in insertion order.
func (s *Store) Get(ctx context.Context, sessionID string) ([]history.Message, error) {
	query := fmt.Sprintf("SELECT role, content FROM %s WHERE session_id = $1 ORDER BY seq", s.tableName)
	rows, err := s.pool.Query(ctx, query, sessionID)
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
	stmt := fmt.Sprintf("DELETE FROM %s WHERE session_id = $1", s.tableName)
	if _, err := s.pool.Exec(ctx, stmt, sessionID); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// Sessions lists distinct session IDs.
func (s *Store) Sessions(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf("SELECT DISTINCT session_id FROM %s ORDER BY session_id", s.tableName)
	rows, err := s.pool.Query(ctx, query)
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

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
