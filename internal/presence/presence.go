// Package presence tracks which users currently hold a live session.
package presence

import (
	"context"
	"sync"
	"time"
)

// Tracker records user online state. Entries expire after a TTL so a
// crashed instance cannot leave users permanently "online".
type Tracker interface {
	SetOnline(ctx context.Context, userID string) error
	Heartbeat(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string) error
	IsOnline(ctx context.Context, userID string) (bool, error)
}

// MemoryTracker is the in-process tracker used for single-node
// deployments and tests.
type MemoryTracker struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time // userID -> expiry

	now func() time.Time
}

// NewMemoryTracker creates a tracker with the given entry TTL.
func NewMemoryTracker(ttl time.Duration) *MemoryTracker {
	return &MemoryTracker{
		ttl:     ttl,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (t *MemoryTracker) SetOnline(ctx context.Context, userID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[userID] = t.now().Add(t.ttl)
	return nil
}

func (t *MemoryTracker) Heartbeat(ctx context.Context, userID string) error {
	return t.SetOnline(ctx, userID)
}

func (t *MemoryTracker) SetOffline(ctx context.Context, userID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, userID)
	return nil
}

func (t *MemoryTracker) IsOnline(ctx context.Context, userID string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	expiry, ok := t.entries[userID]
	if !ok {
		return false, nil
	}
	if t.now().After(expiry) {
		delete(t.entries, userID)
		return false, nil
	}
	return true, nil
}
