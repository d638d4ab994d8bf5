// Package redis provides a Redis-backed history store.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smallnest/atlaschat/internal/history"
)

// Store implements history.Store on Redis. Each session is a list of JSON
// messages; session IDs are indexed in a set so Sessions stays cheap.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ history.Store = (*Store)(nil)

// Options configuration for the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // key prefix, default "atlaschat:"
	TTL      time.Duration // session expiration, default 0 (no expiration)
}

// NewStore creates a new Redis history store.
func NewStore(opts Options) *Store {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	prefix := opts.Prefix
	if prefix == "" {
		prefix = "atlaschat:"
	}

	return &Store{
		client: client,
		prefix: prefix,
		ttl:    opts.TTL,
	}
}

func (s *Store) sessionKey(id string) string {
	return fmt.Sprintf("%ssession:%s", s.prefix, id)
}

func (s *Store) indexKey() string {
	return s.prefix + "sessions"
}

// Append pushes messages onto the session list and indexes the session ID.
func (s *Store) Append(ctx context.Context, sessionID string, msgs ...history.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	values := make([]any, 0, len(msgs))
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		values = append(values, data)
	}

	key := s.sessionKey(sessionID)
	pipe := s.client.Pipeline()

	pipe.RPush(ctx, key, values...)
	pipe.SAdd(ctx, s.indexKey(), sessionID)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
		pipe.Expire(ctx, s.indexKey(), s.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append messages to redis: %w", err)
	}
	return nil
}

// Get returns all messages of a session.
func (s *Store) Get(ctx context.Context, sessionID string) ([]history.Message, error) {
	raw, err := s.client.LRange(ctx, s.sessionKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load session from redis: %w", err)
	}
	if len(raw) == 0 {
		return nil, history.ErrSessionNotFound
	}

	msgs := make([]history.Message, 0, len(raw))
	for _, item := range raw {
		var m history.Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// Clear removes a session list and its index entry.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.sessionKey(sessionID))
	pipe.SRem(ctx, s.indexKey(), sessionID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// Sessions lists indexed session IDs.
func (s *Store) Sessions(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return ids, nil
}

// Close closes the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
