// Package store provides storage backends for conversation state.
//
// This file implements TTL-based eviction of idle conversations.
package store

import (
	"log/slog"
	"time"
)

// DefaultConversationTTL is how long an idle conversation survives before the
// janitor evicts it. Completed and abandoned conversations age out alike.
const DefaultConversationTTL = 30 * time.Minute

// DefaultCleanupSchedule is the cron expression for eviction sweeps.
const DefaultCleanupSchedule = "*/5 * * * *"

// Janitor evicts conversations idle beyond a TTL. Sweeps are driven
// externally, typically by a cron scheduler.
type Janitor struct {
	store ConversationStore
	ttl   time.Duration
}

// NewJanitor creates a janitor for the given store. A non-positive ttl falls
// back to DefaultConversationTTL.
func NewJanitor(store ConversationStore, ttl time.Duration) *Janitor {
	if ttl <= 0 {
		ttl = DefaultConversationTTL
	}
	return &Janitor{store: store, ttl: ttl}
}

// Sweep evicts every conversation idle longer than the TTL and returns the
// number evicted.
func (j *Janitor) Sweep() int {
	cutoff := time.Now().Add(-j.ttl)
	evicted, err := j.store.DeleteIdleSince(cutoff)
	if err != nil {
		slog.Error("store.Janitor: eviction sweep failed", "error", err)
		return 0
	}
	if evicted > 0 {
		slog.Info("store.Janitor: evicted idle conversations", "count", evicted, "ttl", j.ttl)
	}
	return evicted
}
