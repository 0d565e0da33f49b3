package memory

import (
	"context"
	"time"

	"github.com/marketloop/chat-service/internal/model"
	"github.com/marketloop/chat-service/internal/store"
)

// Conversations returns the conversation port view of the store.
func (s *Store) Conversations() store.ConversationStore { return &conversationStore{s} }

// Memberships returns the membership port view of the store.
func (s *Store) Memberships() store.MembershipStore { return &membershipStore{s} }

// Messages returns the message ledger port view of the store.
func (s *Store) Messages() store.MessageStore { return &messageStore{s} }

type conversationStore struct{ s *Store }

func (c *conversationStore) Create(ctx context.Context, conv *model.Conversation, members []*model.Membership) error {
	return c.s.Create(ctx, conv, members)
}

func (c *conversationStore) Get(ctx context.Context, id string) (*model.Conversation, error) {
	return c.s.Get(ctx, id)
}

func (c *conversationStore) FindDirect(ctx context.Context, userA, userB string) (*model.Conversation, error) {
	return c.s.FindDirect(ctx, userA, userB)
}

func (c *conversationStore) Update(ctx context.Context, conv *model.Conversation) error {
	return c.s.Update(ctx, conv)
}

func (c *conversationStore) AddMembers(ctx context.Context, conv *model.Conversation, members []*model.Membership) error {
	return c.s.AddMembers(ctx, conv, members)
}

func (c *conversationStore) RemoveMember(ctx context.Context, conv *model.Conversation, userID string) error {
	return c.s.RemoveMember(ctx, conv, userID)
}

func (c *conversationStore) UpdateRoles(ctx context.Context, conv *model.Conversation, changed ...*model.Membership) error {
	return c.s.UpdateRoles(ctx, conv, changed...)
}

func (c *conversationStore) TouchLastMessageAt(ctx context.Context, id string, ts time.Time) error {
	return c.s.TouchLastMessageAt(ctx, id, ts)
}

func (c *conversationStore) ListForUser(ctx context.Context, userID string, page, size int) ([]*model.Conversation, int64, error) {
	return c.s.ListForUser(ctx, userID, page, size)
}

type membershipStore struct{ s *Store }

func (m *membershipStore) Get(ctx context.Context, conversationID, userID string) (*model.Membership, error) {
	return m.s.GetMembership(ctx, conversationID, userID)
}

func (m *membershipStore) ListByConversation(ctx context.Context, conversationID string) ([]*model.Membership, error) {
	return m.s.ListByConversation(ctx, conversationID)
}

func (m *membershipStore) ListByUser(ctx context.Context, userID string) ([]*model.Membership, error) {
	return m.s.ListByUser(ctx, userID)
}

func (m *membershipStore) Count(ctx context.Context, conversationID string) (int, error) {
	return m.s.CountMembers(ctx, conversationID)
}

func (m *membershipStore) SetMuted(ctx context.Context, conversationID, userID string, muted bool) error {
	return m.s.SetMuted(ctx, conversationID, userID, muted)
}

func (m *membershipStore) AdvanceLastRead(ctx context.Context, conversationID, userID string, ts time.Time) (bool, error) {
	return m.s.AdvanceLastRead(ctx, conversationID, userID, ts)
}

type messageStore struct{ s *Store }

func (m *messageStore) Append(ctx context.Context, msg *model.Message) error {
	return m.s.Append(ctx, msg)
}

func (m *messageStore) Get(ctx context.Context, id string) (*model.Message, error) {
	return m.s.GetMessage(ctx, id)
}

func (m *messageStore) Update(ctx context.Context, msg *model.Message) error {
	return m.s.UpdateMessage(ctx, msg)
}

func (m *messageStore) List(ctx context.Context, conversationID string, q store.MessageQuery) ([]*model.Message, error) {
	return m.s.List(ctx, conversationID, q)
}

func (m *messageStore) Latest(ctx context.Context, conversationID string) (*model.Message, error) {
	return m.s.Latest(ctx, conversationID)
}

func (m *messageStore) Count(ctx context.Context, conversationID string) (int64, error) {
	return m.s.Count(ctx, conversationID)
}

func (m *messageStore) CountAfter(ctx context.Context, conversationID string, ts time.Time) (int, error) {
	return m.s.CountAfter(ctx, conversationID, ts)
}

func (m *messageStore) UpsertReceipt(ctx context.Context, messageID string, receipt model.ReadReceipt) error {
	return m.s.UpsertReceipt(ctx, messageID, receipt)
}
