// Package memory provides in-memory store adapters. It backs tests and
// single-node deployments; the postgres package is the durable adapter.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/marketloop/chat-service/internal/model"
	"github.com/marketloop/chat-service/internal/store"
)

// Store implements the conversation, membership and message ports over
// process-local maps. A single mutex guards conversations and
// memberships so roster mutations are atomic as a unit.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*model.Conversation
	memberships   map[string]map[string]*model.Membership // conversationID -> userID
	directIndex   map[string]string                       // pair key -> conversationID

	msgMu    sync.RWMutex
	messages map[string]*model.Message
	byConv   map[string][]string // conversationID -> message ids, append order
}

// New creates an empty store.
func New() *Store {
	return &Store{
		conversations: make(map[string]*model.Conversation),
		memberships:   make(map[string]map[string]*model.Membership),
		directIndex:   make(map[string]string),
		messages:      make(map[string]*model.Message),
		byConv:        make(map[string][]string),
	}
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

func cloneConversation(c *model.Conversation) *model.Conversation {
	cp := *c
	cp.MemberIDs = append([]string(nil), c.MemberIDs...)
	cp.AdminIDs = append([]string(nil), c.AdminIDs...)
	return &cp
}

func cloneMembership(m *model.Membership) *model.Membership {
	cp := *m
	return &cp
}

func cloneMessage(m *model.Message) *model.Message {
	cp := *m
	cp.Attachments = append([]model.Attachment(nil), m.Attachments...)
	cp.ReadBy = append([]model.ReadReceipt(nil), m.ReadBy...)
	if m.EditedAt != nil {
		t := *m.EditedAt
		cp.EditedAt = &t
	}
	if m.DeletedAt != nil {
		t := *m.DeletedAt
		cp.DeletedAt = &t
	}
	return &cp
}

// ---- ConversationStore ----

func (s *Store) Create(ctx context.Context, conv *model.Conversation, members []*model.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv.Type == model.ConversationDirect {
		key := pairKey(conv.MemberIDs[0], conv.MemberIDs[1])
		if _, exists := s.directIndex[key]; exists {
			return store.ErrNotFound // unreachable through the service, which dedups first
		}
		s.directIndex[key] = conv.ID
	}

	s.conversations[conv.ID] = cloneConversation(conv)
	rows := make(map[string]*model.Membership, len(members))
	for _, m := range members {
		rows[m.UserID] = cloneMembership(m)
	}
	s.memberships[conv.ID] = rows
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneConversation(conv), nil
}

func (s *Store) FindDirect(ctx context.Context, userA, userB string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.directIndex[pairKey(userA, userB)]
	if !ok {
		return nil, store.ErrNotFound
	}
	conv, ok := s.conversations[id]
	if !ok || conv.Archived {
		return nil, store.ErrNotFound
	}
	return cloneConversation(conv), nil
}

func (s *Store) Update(ctx context.Context, conv *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.conversations[conv.ID]
	if !ok {
		return store.ErrNotFound
	}
	// An archived DIRECT conversation frees the pair for a fresh thread.
	if cur.Type == model.ConversationDirect && conv.Archived && !cur.Archived {
		delete(s.directIndex, pairKey(cur.MemberIDs[0], cur.MemberIDs[1]))
	}
	s.conversations[conv.ID] = cloneConversation(conv)
	return nil
}

func (s *Store) AddMembers(ctx context.Context, conv *model.Conversation, members []*model.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conv.ID]; !ok {
		return store.ErrNotFound
	}
	s.conversations[conv.ID] = cloneConversation(conv)
	rows := s.memberships[conv.ID]
	if rows == nil {
		rows = make(map[string]*model.Membership)
		s.memberships[conv.ID] = rows
	}
	for _, m := range members {
		rows[m.UserID] = cloneMembership(m)
	}
	return nil
}

func (s *Store) RemoveMember(ctx context.Context, conv *model.Conversation, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conv.ID]; !ok {
		return store.ErrNotFound
	}
	s.conversations[conv.ID] = cloneConversation(conv)
	delete(s.memberships[conv.ID], userID)
	return nil
}

func (s *Store) UpdateRoles(ctx context.Context, conv *model.Conversation, changed ...*model.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conv.ID]; !ok {
		return store.ErrNotFound
	}
	s.conversations[conv.ID] = cloneConversation(conv)
	rows := s.memberships[conv.ID]
	for _, m := range changed {
		if _, ok := rows[m.UserID]; !ok {
			return store.ErrNotFound
		}
		rows[m.UserID] = cloneMembership(m)
	}
	return nil
}

func (s *Store) TouchLastMessageAt(ctx context.Context, id string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return store.ErrNotFound
	}
	if ts.After(conv.LastMessageAt) {
		conv.LastMessageAt = ts
	}
	return nil
}

func (s *Store) ListForUser(ctx context.Context, userID string, page, size int) ([]*model.Conversation, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var convs []*model.Conversation
	for _, conv := range s.conversations {
		if conv.Archived {
			continue
		}
		if _, ok := s.memberships[conv.ID][userID]; ok {
			convs = append(convs, conv)
		}
	}
	sort.Slice(convs, func(i, j int) bool {
		if convs[i].LastMessageAt.Equal(convs[j].LastMessageAt) {
			return convs[i].ID > convs[j].ID
		}
		return convs[i].LastMessageAt.After(convs[j].LastMessageAt)
	})

	total := int64(len(convs))
	start := page * size
	if start > len(convs) {
		start = len(convs)
	}
	end := start + size
	if end > len(convs) {
		end = len(convs)
	}

	out := make([]*model.Conversation, 0, end-start)
	for _, conv := range convs[start:end] {
		out = append(out, cloneConversation(conv))
	}
	return out, total, nil
}

// ---- MembershipStore ----

func (s *Store) GetMembership(ctx context.Context, conversationID, userID string) (*model.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.memberships[conversationID][userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneMembership(m), nil
}

func (s *Store) ListByConversation(ctx context.Context, conversationID string) ([]*model.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.memberships[conversationID]
	out := make([]*model.Membership, 0, len(rows))
	for _, m := range rows {
		out = append(out, cloneMembership(m))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return strings.Compare(out[i].UserID, out[j].UserID) < 0
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out, nil
}

func (s *Store) ListByUser(ctx context.Context, userID string) ([]*model.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Membership
	for _, rows := range s.memberships {
		if m, ok := rows[userID]; ok {
			out = append(out, cloneMembership(m))
		}
	}
	return out, nil
}

func (s *Store) CountMembers(ctx context.Context, conversationID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.memberships[conversationID]), nil
}

func (s *Store) SetMuted(ctx context.Context, conversationID, userID string, muted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.memberships[conversationID][userID]
	if !ok {
		return store.ErrNotFound
	}
	m.Muted = muted
	return nil
}

func (s *Store) AdvanceLastRead(ctx context.Context, conversationID, userID string, ts time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.memberships[conversationID][userID]
	if !ok {
		return false, store.ErrNotFound
	}
	if !ts.After(m.LastReadAt) {
		return false, nil
	}
	m.LastReadAt = ts
	return true, nil
}

// ---- MessageStore ----

func (s *Store) Append(ctx context.Context, msg *model.Message) error {
	s.msgMu.Lock()
	defer s.msgMu.Unlock()

	s.messages[msg.ID] = cloneMessage(msg)
	s.byConv[msg.ConversationID] = append(s.byConv[msg.ConversationID], msg.ID)
	return nil
}

func (s *Store) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	s.msgMu.RLock()
	defer s.msgMu.RUnlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneMessage(msg), nil
}

func (s *Store) UpdateMessage(ctx context.Context, msg *model.Message) error {
	s.msgMu.Lock()
	defer s.msgMu.Unlock()

	cur, ok := s.messages[msg.ID]
	if !ok {
		return store.ErrNotFound
	}
	up := cloneMessage(msg)
	up.CreatedAt = cur.CreatedAt // immutable
	s.messages[msg.ID] = up
	return nil
}

// ordered returns the conversation's live messages in ascending
// (created_at, id) order.
func (s *Store) ordered(conversationID string) []*model.Message {
	ids := s.byConv[conversationID]
	out := make([]*model.Message, 0, len(ids))
	for _, id := range ids {
		if msg := s.messages[id]; msg != nil && !msg.Deleted() {
			out = append(out, msg)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return strings.Compare(out[i].ID, out[j].ID) < 0
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *Store) List(ctx context.Context, conversationID string, q store.MessageQuery) ([]*model.Message, error) {
	s.msgMu.RLock()
	defer s.msgMu.RUnlock()

	all := s.ordered(conversationID)
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	// Keyset comparisons over (created_at, id); without a cursor id the
	// bound degrades to the timestamp alone.
	beforeCursor := func(msg *model.Message) bool {
		if msg.CreatedAt.Before(*q.Before) {
			return true
		}
		return q.BeforeID != "" && msg.CreatedAt.Equal(*q.Before) && msg.ID < q.BeforeID
	}
	afterCursor := func(msg *model.Message) bool {
		if msg.CreatedAt.After(*q.After) {
			return true
		}
		return q.AfterID != "" && msg.CreatedAt.Equal(*q.After) && msg.ID > q.AfterID
	}

	var window []*model.Message
	switch {
	case q.Before != nil:
		var older []*model.Message
		for _, msg := range all {
			if beforeCursor(msg) {
				older = append(older, msg)
			}
		}
		if len(older) > limit {
			older = older[len(older)-limit:]
		}
		window = older
	case q.After != nil:
		for _, msg := range all {
			if afterCursor(msg) {
				window = append(window, msg)
				if len(window) == limit {
					break
				}
			}
		}
	default:
		window = all
		if len(window) > limit {
			window = window[len(window)-limit:]
		}
	}

	out := make([]*model.Message, 0, len(window))
	for _, msg := range window {
		out = append(out, cloneMessage(msg))
	}
	return out, nil
}

func (s *Store) Latest(ctx context.Context, conversationID string) (*model.Message, error) {
	s.msgMu.RLock()
	defer s.msgMu.RUnlock()

	all := s.ordered(conversationID)
	if len(all) == 0 {
		return nil, store.ErrNotFound
	}
	return cloneMessage(all[len(all)-1]), nil
}

func (s *Store) Count(ctx context.Context, conversationID string) (int64, error) {
	s.msgMu.RLock()
	defer s.msgMu.RUnlock()
	return int64(len(s.ordered(conversationID))), nil
}

func (s *Store) CountAfter(ctx context.Context, conversationID string, ts time.Time) (int, error) {
	s.msgMu.RLock()
	defer s.msgMu.RUnlock()

	count := 0
	for _, msg := range s.ordered(conversationID) {
		if msg.CreatedAt.After(ts) {
			count++
		}
	}
	return count, nil
}

func (s *Store) UpsertReceipt(ctx context.Context, messageID string, receipt model.ReadReceipt) error {
	s.msgMu.Lock()
	defer s.msgMu.Unlock()

	msg, ok := s.messages[messageID]
	if !ok {
		return store.ErrNotFound
	}
	for i, r := range msg.ReadBy {
		if r.UserID == receipt.UserID {
			msg.ReadBy[i] = receipt
			return nil
		}
	}
	msg.ReadBy = append(msg.ReadBy, receipt)
	return nil
}
