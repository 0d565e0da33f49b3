// Package service provides the business logic of the chat subsystem.
package service

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"

	"github.com/marketloop/chat-service/internal/apperr"
	"github.com/marketloop/chat-service/internal/model"
	"github.com/marketloop/chat-service/internal/store"
)

// Directory resolves user display names. User identity lives outside
// this subsystem; the directory is its interface boundary.
type Directory interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// StaticDirectory is a map-backed directory. Unknown users resolve to
// their id so missing profile data never blocks a chat operation.
type StaticDirectory map[string]string

func (d StaticDirectory) DisplayName(ctx context.Context, userID string) (string, error) {
	if name, ok := d[userID]; ok {
		return name, nil
	}
	return userID, nil
}

// EventPublisher receives event envelopes for fan-out. The write path
// never waits on delivery.
type EventPublisher interface {
	Publish(ctx context.Context, event *model.Event)
}

// storeErr translates storage failures into the API error taxonomy.
// Driver errors are wrapped as retryable and never leaked verbatim.
func storeErr(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFoundf("%s: not found", op)
	}
	return apperr.Unavailable(op, err)
}

// displayName looks up a user's name, falling back to the id.
func displayName(ctx context.Context, dir Directory, userID string) string {
	name, err := dir.DisplayName(ctx, userID)
	if err != nil || name == "" {
		return userID
	}
	return name
}

// convLocks serializes roster and role mutation per conversation. Two
// concurrent ownership transfers on one conversation take the same
// stripe; unrelated conversations proceed in parallel.
type convLocks struct {
	stripes [64]sync.Mutex
}

func (l *convLocks) lock(conversationID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(conversationID))
	m := &l.stripes[h.Sum32()%uint32(len(l.stripes))]
	m.Lock()
	return m.Unlock
}
