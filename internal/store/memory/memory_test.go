package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/marketloop/chat-service/internal/model"
	"github.com/marketloop/chat-service/internal/store"
)

func seedConversation(t *testing.T, s *Store, typ model.ConversationType, userIDs ...string) *model.Conversation {
	t.Helper()
	now := time.Now().UTC()
	conv := &model.Conversation{
		ID:            uuid.Must(uuid.NewV7()).String(),
		Type:          typ,
		MemberIDs:     userIDs,
		CreatedAt:     now,
		LastMessageAt: now,
	}
	members := make([]*model.Membership, 0, len(userIDs))
	for _, id := range userIDs {
		members = append(members, &model.Membership{
			ID:             uuid.Must(uuid.NewV7()).String(),
			ConversationID: conv.ID,
			UserID:         id,
			Role:           model.RoleMember,
			JoinedAt:       now,
		})
	}
	require.NoError(t, s.Create(context.Background(), conv, members))
	return conv
}

func seedMessage(t *testing.T, s *Store, convID string, at time.Time) *model.Message {
	t.Helper()
	msg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: convID,
		SenderID:       "alice",
		Kind:           model.MessageText,
		Content:        "msg",
		CreatedAt:      at,
	}
	require.NoError(t, s.Append(context.Background(), msg))
	return msg
}

func TestFindDirect_PairKeyIsUnordered(t *testing.T) {
	s := New()
	ctx := context.Background()

	conv := seedConversation(t, s, model.ConversationDirect, "alice", "bob")

	found, err := s.FindDirect(ctx, "bob", "alice")
	require.NoError(t, err)
	require.Equal(t, conv.ID, found.ID)
}

func TestFindDirect_ArchivedFreesPair(t *testing.T) {
	s := New()
	ctx := context.Background()

	conv := seedConversation(t, s, model.ConversationDirect, "alice", "bob")
	conv.Archived = true
	require.NoError(t, s.Update(ctx, conv))

	_, err := s.FindDirect(ctx, "alice", "bob")
	require.ErrorIs(t, err, store.ErrNotFound)

	// The pair can be re-created after archival.
	again := seedConversation(t, s, model.ConversationDirect, "alice", "bob")
	found, err := s.FindDirect(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Equal(t, again.ID, found.ID)
}

func TestTouchLastMessageAt_Monotonic(t *testing.T) {
	s := New()
	ctx := context.Background()

	conv := seedConversation(t, s, model.ConversationDirect, "alice", "bob")
	future := conv.LastMessageAt.Add(time.Minute)

	require.NoError(t, s.TouchLastMessageAt(ctx, conv.ID, future))
	require.NoError(t, s.TouchLastMessageAt(ctx, conv.ID, future.Add(-time.Second)))

	got, err := s.Get(ctx, conv.ID)
	require.NoError(t, err)
	require.True(t, got.LastMessageAt.Equal(future))
}

func TestAdvanceLastRead_Monotonic(t *testing.T) {
	s := New()
	ctx := context.Background()

	conv := seedConversation(t, s, model.ConversationDirect, "alice", "bob")
	base := time.Now().UTC()

	applied, err := s.AdvanceLastRead(ctx, conv.ID, "bob", base)
	require.NoError(t, err)
	require.True(t, applied)

	// Older and equal timestamps do not move the marker.
	applied, err = s.AdvanceLastRead(ctx, conv.ID, "bob", base.Add(-time.Second))
	require.NoError(t, err)
	require.False(t, applied)
	applied, err = s.AdvanceLastRead(ctx, conv.ID, "bob", base)
	require.NoError(t, err)
	require.False(t, applied)

	m, err := s.GetMembership(ctx, conv.ID, "bob")
	require.NoError(t, err)
	require.True(t, m.LastReadAt.Equal(base))
}

func TestAdvanceLastRead_MissingMembership(t *testing.T) {
	s := New()

	conv := seedConversation(t, s, model.ConversationDirect, "alice", "bob")

	_, err := s.AdvanceLastRead(context.Background(), conv.ID, "clara", time.Now())
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestList_Windows(t *testing.T) {
	s := New()
	ctx := context.Background()

	conv := seedConversation(t, s, model.ConversationDirect, "alice", "bob")
	base := time.Now().UTC()
	msgs := make([]*model.Message, 6)
	for i := range msgs {
		msgs[i] = seedMessage(t, s, conv.ID, base.Add(time.Duration(i)*time.Second))
	}

	// Default: newest N, ascending.
	got, err := s.List(ctx, conv.ID, store.MessageQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, msgs[4].ID, got[0].ID)
	require.Equal(t, msgs[5].ID, got[1].ID)

	// Before: the last N strictly older than the cursor.
	got, err = s.List(ctx, conv.ID, store.MessageQuery{Before: &msgs[4].CreatedAt, Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, msgs[2].ID, got[0].ID)
	require.Equal(t, msgs[3].ID, got[1].ID)

	// After: the first N strictly newer than the cursor.
	got, err = s.List(ctx, conv.ID, store.MessageQuery{After: &msgs[1].CreatedAt, Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, msgs[2].ID, got[0].ID)
	require.Equal(t, msgs[3].ID, got[1].ID)
}

func TestList_TieBreakByID(t *testing.T) {
	s := New()
	ctx := context.Background()

	conv := seedConversation(t, s, model.ConversationDirect, "alice", "bob")
	at := time.Now().UTC()

	// Same timestamp: order falls back to the time-ordered id.
	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, seedMessage(t, s, conv.ID, at).ID)
	}

	got, err := s.List(ctx, conv.ID, store.MessageQuery{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := 1; i < len(got); i++ {
		require.Less(t, got[i-1].ID, got[i].ID)
	}
}

func TestList_KeysetCursorKeepsEqualTimestamps(t *testing.T) {
	s := New()
	ctx := context.Background()

	conv := seedConversation(t, s, model.ConversationDirect, "alice", "bob")
	base := time.Now().UTC()
	shared := base.Add(time.Second)
	all := []*model.Message{
		seedMessage(t, s, conv.ID, base),
		seedMessage(t, s, conv.ID, shared),
		seedMessage(t, s, conv.ID, shared),
		seedMessage(t, s, conv.ID, base.Add(2*time.Second)),
	}

	// Paging back across a timestamp tie must not skip the tied sibling.
	page1, err := s.List(ctx, conv.ID, store.MessageQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page1, 2)

	page2, err := s.List(ctx, conv.ID, store.MessageQuery{
		Before:   &page1[0].CreatedAt,
		BeforeID: page1[0].ID,
		Limit:    2,
	})
	require.NoError(t, err)
	require.Len(t, page2, 2)

	want := make([]string, 0, len(all))
	for _, msg := range all {
		want = append(want, msg.ID)
	}
	got := make([]string, 0, len(all))
	for _, msg := range append(page2, page1...) {
		got = append(got, msg.ID)
	}
	require.ElementsMatch(t, want, got)
}

func TestList_KeysetCursorAfterTie(t *testing.T) {
	s := New()
	ctx := context.Background()

	conv := seedConversation(t, s, model.ConversationDirect, "alice", "bob")
	at := time.Now().UTC()
	a := seedMessage(t, s, conv.ID, at)
	b := seedMessage(t, s, conv.ID, at)

	got, err := s.List(ctx, conv.ID, store.MessageQuery{After: &a.CreatedAt, AfterID: a.ID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, b.ID, got[0].ID)
}

func TestUpdateMessage_CreatedAtImmutable(t *testing.T) {
	s := New()
	ctx := context.Background()

	conv := seedConversation(t, s, model.ConversationDirect, "alice", "bob")
	msg := seedMessage(t, s, conv.ID, time.Now().UTC())

	tampered := *msg
	tampered.Content = "edited"
	tampered.CreatedAt = msg.CreatedAt.Add(time.Hour)
	require.NoError(t, s.UpdateMessage(ctx, &tampered))

	got, err := s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.Equal(t, "edited", got.Content)
	require.True(t, got.CreatedAt.Equal(msg.CreatedAt))
}

func TestCountAndCountAfter_SkipDeleted(t *testing.T) {
	s := New()
	ctx := context.Background()

	conv := seedConversation(t, s, model.ConversationDirect, "alice", "bob")
	base := time.Now().UTC()
	first := seedMessage(t, s, conv.ID, base)
	second := seedMessage(t, s, conv.ID, base.Add(time.Second))
	seedMessage(t, s, conv.ID, base.Add(2*time.Second))

	now := time.Now().UTC()
	second.DeletedAt = &now
	require.NoError(t, s.UpdateMessage(ctx, second))

	total, err := s.Count(ctx, conv.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, total)

	after, err := s.CountAfter(ctx, conv.ID, first.CreatedAt)
	require.NoError(t, err)
	require.Equal(t, 1, after)
}

func TestListForUser_OrderAndPaging(t *testing.T) {
	s := New()
	ctx := context.Background()

	base := time.Now().UTC()
	var convs []*model.Conversation
	for i := 0; i < 3; i++ {
		conv := seedConversation(t, s, model.ConversationGroup, "alice", fmt.Sprintf("peer-%d", i))
		require.NoError(t, s.TouchLastMessageAt(ctx, conv.ID, base.Add(time.Duration(i)*time.Minute)))
		convs = append(convs, conv)
	}

	got, total, err := s.ListForUser(ctx, "alice", 0, 2)
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, got, 2)
	require.Equal(t, convs[2].ID, got[0].ID)
	require.Equal(t, convs[1].ID, got[1].ID)

	got, _, err = s.ListForUser(ctx, "alice", 1, 2)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, convs[0].ID, got[0].ID)
}

func TestUpsertReceipt_ReplacesByUser(t *testing.T) {
	s := New()
	ctx := context.Background()

	conv := seedConversation(t, s, model.ConversationDirect, "alice", "bob")
	msg := seedMessage(t, s, conv.ID, time.Now().UTC())

	first := model.ReadReceipt{UserID: "bob", DisplayName: "Bob", ReadAt: time.Now().UTC()}
	require.NoError(t, s.UpsertReceipt(ctx, msg.ID, first))
	second := first
	second.ReadAt = first.ReadAt.Add(time.Minute)
	require.NoError(t, s.UpsertReceipt(ctx, msg.ID, second))

	got, err := s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, got.ReadBy, 1)
	require.True(t, got.ReadBy[0].ReadAt.Equal(second.ReadAt))
}
