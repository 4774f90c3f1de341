// Package session keeps short-lived per-user conversation state.
package session

import (
	"context"
	"sync"
	"time"
)

// State is the step a user is in. The zero value means no pending conversation.
type State string

// Conversation states.
const (
	StateNone      State = ""
	StateSearch    State = "search"
	StatePayment   State = "payment"
	StateBroadcast State = "broadcast"
)

// DefaultTTL bounds how long an abandoned conversation is remembered.
const DefaultTTL = 30 * time.Minute

// Store persists conversation state per user.
type Store interface {
	Get(ctx context.Context, userID int64) (State, error)
	Set(ctx context.Context, userID int64, s State) error
	Clear(ctx context.Context, userID int64) error
}

type entry struct {
	state   State
	expires time.Time
}

// Memory is an in-process Store.
type Memory struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[int64]entry
}

// NewMemory creates a Memory store whose entries expire after ttl.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{ttl: ttl, now: time.Now, entries: make(map[int64]entry)}
}

// Get returns the user's state, or StateNone when absent or expired.
func (m *Memory) Get(_ context.Context, userID int64) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[userID]
	if !ok {
		return StateNone, nil
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, userID)
		return StateNone, nil
	}
	return e.state, nil
}

// Set stores s for the user, refreshing the expiry. Setting StateNone clears it.
func (m *Memory) Set(ctx context.Context, userID int64, s State) error {
	if s == StateNone {
		return m.Clear(ctx, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[userID] = entry{state: s, expires: m.now().Add(m.ttl)}
	return nil
}

// Clear forgets the user's state.
func (m *Memory) Clear(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, userID)
	return nil
}
