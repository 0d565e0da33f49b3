package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marketloop/chat-service/internal/apperr"
	"github.com/marketloop/chat-service/internal/model"
)

func TestCreateDirect_DeduplicatesPair(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.mustCreateDirect(t, "alice", "bob")

	// Same pair from the other side returns the existing conversation.
	second, err := h.conversations.Create(ctx, "bob", &model.CreateConversationRequest{
		Type:      model.ConversationDirect,
		MemberIDs: []string{"bob", "alice"},
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	// Only one CONVERSATION_CREATED event fired.
	require.Len(t, h.events.ofType(model.EventConversationNew), 1)
}

func TestCreateDirect_RequiresCreatorInPair(t *testing.T) {
	h := newHarness(t)

	_, err := h.conversations.Create(context.Background(), "clara", &model.CreateConversationRequest{
		Type:      model.ConversationDirect,
		MemberIDs: []string{"alice", "bob"},
	})
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestCreateDirect_RequiresTwoDistinctMembers(t *testing.T) {
	h := newHarness(t)

	_, err := h.conversations.Create(context.Background(), "alice", &model.CreateConversationRequest{
		Type:      model.ConversationDirect,
		MemberIDs: []string{"alice", "alice"},
	})
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestCreateDirect_ArchivedPairCanBeRecreated(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.mustCreateDirect(t, "alice", "bob")
	require.NoError(t, h.conversations.Archive(ctx, first.ID, "alice"))

	second := h.mustCreateDirect(t, "alice", "bob")
	require.NotEqual(t, first.ID, second.ID)
}

func TestCreateGroup_RequiresTitle(t *testing.T) {
	h := newHarness(t)

	_, err := h.conversations.Create(context.Background(), "alice", &model.CreateConversationRequest{
		Type:      model.ConversationGroup,
		MemberIDs: []string{"alice", "bob"},
	})
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestCreateGroup_CreatorBecomesOwner(t *testing.T) {
	h := newHarness(t)

	summary := h.mustCreateGroup(t, "alice", "Trip", "bob", "clara")
	require.Equal(t, "alice", summary.OwnerID)
	require.Len(t, summary.Members, 3)

	for _, m := range summary.Members {
		if m.UserID == "alice" {
			require.Equal(t, model.RoleOwner, m.Role)
		} else {
			require.Equal(t, model.RoleMember, m.Role)
		}
	}
}

func TestCreateGroup_CreatorAddedWhenOmitted(t *testing.T) {
	h := newHarness(t)

	summary := h.mustCreateGroup(t, "alice", "Trip", "bob")
	require.Len(t, summary.Members, 2)
	require.Equal(t, "alice", summary.OwnerID)
}

func TestGet_NonMemberSeesNotFound(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	conv := h.mustCreateDirect(t, "alice", "bob")

	_, err := h.conversations.Get(ctx, conv.ID, "clara")
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestArchive_GroupRequiresModerator(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	conv := h.mustCreateGroup(t, "alice", "Trip", "bob", "clara")

	err := h.conversations.Archive(ctx, conv.ID, "bob")
	require.Equal(t, apperr.KindPermission, apperr.KindOf(err))

	require.NoError(t, h.conversations.Archive(ctx, conv.ID, "alice"))

	// Archiving again is a no-op.
	require.NoError(t, h.conversations.Archive(ctx, conv.ID, "alice"))
}

func TestArchive_ExcludedFromListing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	keep := h.mustCreateGroup(t, "alice", "Trip", "bob")
	gone := h.mustCreateDirect(t, "alice", "clara")
	require.NoError(t, h.conversations.Archive(ctx, gone.ID, "alice"))

	page, err := h.conversations.List(ctx, "alice", 0, 20)
	require.NoError(t, err)
	require.Len(t, page.Conversations, 1)
	require.Equal(t, keep.ID, page.Conversations[0].ID)
}

func TestList_OrderedByActivityWithUnread(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	older := h.mustCreateGroup(t, "alice", "Trip", "bob")
	newer := h.mustCreateDirect(t, "alice", "bob")

	// A message in the older conversation moves it to the top.
	h.mustSend(t, older.ID, "bob", "where are we staying?")

	page, err := h.conversations.List(ctx, "alice", 0, 20)
	require.NoError(t, err)
	require.Len(t, page.Conversations, 2)
	require.Equal(t, older.ID, page.Conversations[0].ID)
	require.Equal(t, newer.ID, page.Conversations[1].ID)
	require.Equal(t, 1, page.Conversations[0].UnreadCount)
	require.Equal(t, 0, page.Conversations[1].UnreadCount)
	require.EqualValues(t, 2, page.TotalElements)
}

func TestList_Pagination(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		h.mustCreateGroup(t, "alice", "Trip", "bob")
	}

	page, err := h.conversations.List(ctx, "alice", 0, 2)
	require.NoError(t, err)
	require.Len(t, page.Conversations, 2)
	require.EqualValues(t, 5, page.TotalElements)
	require.Equal(t, 3, page.TotalPages)
	require.True(t, page.PageInfo.First)
	require.False(t, page.PageInfo.Last)

	last, err := h.conversations.List(ctx, "alice", 2, 2)
	require.NoError(t, err)
	require.Len(t, last.Conversations, 1)
	require.True(t, last.PageInfo.Last)
}
