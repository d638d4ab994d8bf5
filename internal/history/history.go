// Package history defines conversation persistence for chat sessions.
// Backends live in subpackages (memory, sqlite, redis, postgres).
package history

import (
	"context"
	"errors"
)

// Message roles as exchanged with the chat frontend.
const (
	RoleHuman = "human"
	RoleAI    = "ai"
)

// ErrSessionNotFound is returned when a session has no stored messages.
var ErrSessionNotFound = errors.New("session not found")

// Message is a single turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Store persists per-session conversation history.
type Store interface {
	// Append adds messages to the end of a session's history, creating the
	// session if needed.
	Append(ctx context.Context, sessionID string, msgs ...Message) error

	// Get returns a session's messages in order. Returns ErrSessionNotFound
	// for unknown sessions.
	Get(ctx context.Context, sessionID string) ([]Message, error)

	// Clear removes a session and its messages. Clearing an unknown session
	// is not an error.
	Clear(ctx context.Context, sessionID string) error

	// Sessions lists known session IDs.
	Sessions(ctx context.Context) ([]string, error)

	// Close releases backend resources.
	Close() error
}

// Truncate keeps only the most recent max messages. max <= 0 disables
// truncation.
func Truncate(msgs []Message, max int) []Message {
	if max <= 0 || len(msgs) <= max {
		return msgs
	}
	return msgs[len(msgs)-max:]
}
