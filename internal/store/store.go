// Package store provides storage backends for conversation state.
//
// It includes an in-memory store for tests and single-process deployments,
// plus SQLite and PostgreSQL backends for persistence across restarts.
package store

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/carelinq/eligibility-agent/internal/models"
)

// ConversationStore defines persistence for conversation state. All
// implementations must support concurrent insert/lookup/update across
// different conversations; per-conversation turn serialization is the
// caller's responsibility.
type ConversationStore interface {
	// SaveConversation stores or replaces the state for a conversation.
	SaveConversation(state models.ConversationState) error

	// GetConversation retrieves the state for a conversation, or nil when
	// there is no such conversation.
	GetConversation(conversationID string) (*models.ConversationState, error)

	// DeleteConversation removes a conversation. Deleting a missing
	// conversation is not an error.
	DeleteConversation(conversationID string) error

	// DeleteIdleSince removes conversations not updated since the cutoff and
	// returns how many were evicted.
	DeleteIdleSince(cutoff time.Time) (int, error)

	// Close releases backend resources.
	Close() error
}

// DetectDSNType reports whether a DSN refers to a PostgreSQL server or a
// SQLite file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// Opts holds store configuration.
type Opts struct {
	DSN string
}

// Option configures a store backend.
type Option func(*Opts)

// WithDSN sets the database DSN (file path for SQLite, URL for Postgres).
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// InMemoryStore is a concurrency-safe in-memory conversation store.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]models.ConversationState
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{conversations: make(map[string]models.ConversationState)}
}

// SaveConversation stores or replaces conversation state.
func (s *InMemoryStore) SaveConversation(state models.ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[state.ConversationID] = state
	return nil
}

// GetConversation retrieves conversation state, or nil when missing.
func (s *InMemoryStore) GetConversation(conversationID string) (*models.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.conversations[conversationID]
	if !ok {
		return nil, nil
	}
	// Return a copy so callers cannot mutate the stored entry in place.
	copied := state
	copied.CollectedFields = make(map[models.FieldName]string, len(state.CollectedFields))
	for k, v := range state.CollectedFields {
		copied.CollectedFields[k] = v
	}
	copied.TurnHistory = append([]models.TurnMessage(nil), state.TurnHistory...)
	return &copied, nil
}

// DeleteConversation removes a conversation.
func (s *InMemoryStore) DeleteConversation(conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, conversationID)
	return nil
}

// DeleteIdleSince removes conversations not updated since the cutoff.
func (s *InMemoryStore) DeleteIdleSince(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for id, state := range s.conversations {
		if state.UpdatedAt.Before(cutoff) {
			delete(s.conversations, id)
			evicted++
		}
	}
	if evicted > 0 {
		slog.Debug("InMemoryStore DeleteIdleSince evicted conversations", "count", evicted)
	}
	return evicted, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
