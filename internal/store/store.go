// Package store defines the persistence ports for the chat subsystem.
// Persistence technology is an interchangeable collaborator: adapters
// live in the memory and postgres subpackages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/marketloop/chat-service/internal/model"
)

// ErrNotFound is returned when a row does not exist. Services translate
// it into the API error taxonomy.
var ErrNotFound = errors.New("store: not found")

// MessageQuery selects a window of a conversation's ledger. Results are
// always in ascending (created_at, id) order. At most one of Before and
// After may be set; with neither set the newest Limit rows are returned.
//
// Cursors are keyset positions over (created_at, id). BeforeID and
// AfterID disambiguate messages sharing the boundary timestamp: with an
// ID set, Before selects rows with (created_at, id) strictly less than
// the cursor tuple; without one the comparison is on created_at alone.
type MessageQuery struct {
	Before   *time.Time
	BeforeID string
	After    *time.Time
	AfterID  string
	Limit    int
}

// ConversationStore owns conversation rows and keeps the roster and the
// membership projection in sync: every mutation that touches both is a
// single atomic unit.
type ConversationStore interface {
	// Create persists the conversation and one membership row per member
	// atomically.
	Create(ctx context.Context, conv *model.Conversation, members []*model.Membership) error

	Get(ctx context.Context, id string) (*model.Conversation, error)

	// FindDirect returns the non-archived DIRECT conversation for the
	// unordered user pair, or ErrNotFound.
	FindDirect(ctx context.Context, userA, userB string) (*model.Conversation, error)

	// Update persists conversation metadata (title, archived, owner,
	// admin set). Roster changes go through AddMembers/RemoveMember.
	Update(ctx context.Context, conv *model.Conversation) error

	// AddMembers persists the grown roster and inserts the membership
	// rows as one unit.
	AddMembers(ctx context.Context, conv *model.Conversation, members []*model.Membership) error

	// RemoveMember persists the shrunk roster and deletes the membership
	// row as one unit. Messages are retained.
	RemoveMember(ctx context.Context, conv *model.Conversation, userID string) error

	// UpdateRoles persists the conversation (owner/admin sets) together
	// with the changed membership rows as one unit.
	UpdateRoles(ctx context.Context, conv *model.Conversation, changed ...*model.Membership) error

	// TouchLastMessageAt advances last_message_at monotonically. A
	// timestamp at or before the stored value is a no-op.
	TouchLastMessageAt(ctx context.Context, id string, ts time.Time) error

	// ListForUser returns the page of non-archived conversations the
	// user belongs to, newest activity first, plus the total count.
	ListForUser(ctx context.Context, userID string, page, size int) ([]*model.Conversation, int64, error)
}

// MembershipStore reads and mutates per-user conversation state.
type MembershipStore interface {
	Get(ctx context.Context, conversationID, userID string) (*model.Membership, error)
	ListByConversation(ctx context.Context, conversationID string) ([]*model.Membership, error)
	ListByUser(ctx context.Context, userID string) ([]*model.Membership, error)
	Count(ctx context.Context, conversationID string) (int, error)

	SetMuted(ctx context.Context, conversationID, userID string, muted bool) error

	// AdvanceLastRead moves the read marker forward. It reports whether
	// the marker changed; a timestamp at or before the stored value is a
	// no-op so reordered acks never regress the marker.
	AdvanceLastRead(ctx context.Context, conversationID, userID string, ts time.Time) (bool, error)
}

// MessageStore is the append-only, soft-deletable message ledger.
type MessageStore interface {
	Append(ctx context.Context, msg *model.Message) error
	Get(ctx context.Context, id string) (*model.Message, error)

	// Update persists content/attachment edits and tombstone marks.
	// CreatedAt is immutable and never rewritten.
	Update(ctx context.Context, msg *model.Message) error

	// List returns non-deleted messages matching the query window.
	List(ctx context.Context, conversationID string, q MessageQuery) ([]*model.Message, error)

	Latest(ctx context.Context, conversationID string) (*model.Message, error)

	// Count returns the number of non-deleted messages.
	Count(ctx context.Context, conversationID string) (int64, error)

	// CountAfter returns the number of non-deleted messages with
	// created_at strictly after ts.
	CountAfter(ctx context.Context, conversationID string, ts time.Time) (int, error)

	// UpsertReceipt adds or refreshes one user's read receipt on a
	// message, keyed by user id.
	UpsertReceipt(ctx context.Context, messageID string, receipt model.ReadReceipt) error
}
