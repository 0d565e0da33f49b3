package service

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/marketloop/chat-service/internal/apperr"
	"github.com/marketloop/chat-service/internal/model"
	"github.com/marketloop/chat-service/internal/store"
)

func TestSend_AppendsInTotalOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	conv := h.mustCreateDirect(t, "alice", "bob")

	var ids []string
	for i := 0; i < 10; i++ {
		view := h.mustSend(t, conv.ID, "alice", "msg")
		ids = append(ids, view.ID)
	}

	page, err := h.messages.List(ctx, conv.ID, "bob", store.MessageQuery{})
	require.NoError(t, err)
	require.Len(t, page.Messages, 10)

	listed := make([]string, 0, 10)
	for _, m := range page.Messages {
		listed = append(listed, m.ID)
	}
	require.Equal(t, ids, listed)
	require.True(t, sort.SliceIsSorted(page.Messages, func(i, j int) bool {
		a, b := page.Messages[i], page.Messages[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	}))
}

func TestSend_NonMemberSeesNotFound(t *testing.T) {
	h := newHarness(t)

	conv := h.mustCreateDirect(t, "alice", "bob")

	_, err := h.messages.Send(context.Background(), conv.ID, "clara", "Clara", &model.SendMessageRequest{
		Kind:    model.MessageText,
		Content: "hi",
	})
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestSend_ArchivedConversationRejects(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	conv := h.mustCreateDirect(t, "alice", "bob")
	require.NoError(t, h.conversations.Archive(ctx, conv.ID, "alice"))

	_, err := h.messages.Send(ctx, conv.ID, "alice", "Alice", &model.SendMessageRequest{
		Kind:    model.MessageText,
		Content: "too late",
	})
	require.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestSend_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	conv := h.mustCreateDirect(t, "alice", "bob")

	cases := []struct {
		name string
		req  *model.SendMessageRequest
	}{
		{"empty text", &model.SendMessageRequest{Kind: model.MessageText}},
		{"image without attachment", &model.SendMessageRequest{Kind: model.MessageImage}},
		{"system kind from client", &model.SendMessageRequest{Kind: model.MessageSystem, Content: "x"}},
		{"unknown kind", &model.SendMessageRequest{Kind: "VOICE", Content: "x"}},
		{"oversized content", &model.SendMessageRequest{
			Kind:    model.MessageText,
			Content: strings.Repeat("a", model.MaxContentLength+1),
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.messages.Send(ctx, conv.ID, "alice", "Alice", tc.req)
			require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}
}

func TestSend_ReplyPreview(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	conv := h.mustCreateDirect(t, "alice", "bob")
	parent := h.mustSend(t, conv.ID, "alice", "original")

	view, err := h.messages.Send(ctx, conv.ID, "bob", "Bob", &model.SendMessageRequest{
		Kind:             model.MessageText,
		Content:          "replying",
		ReplyToMessageID: parent.ID,
	})
	require.NoError(t, err)
	require.NotNil(t, view.ReplyTo)
	require.Equal(t, parent.ID, view.ReplyTo.MessageID)
	require.Equal(t, "original", view.ReplyTo.Excerpt)
}

func TestSend_ReplyToForeignMessageRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	conv := h.mustCreateDirect(t, "alice", "bob")
	other := h.mustCreateDirect(t, "alice", "clara")
	foreign := h.mustSend(t, other.ID, "alice", "elsewhere")

	_, err := h.messages.Send(ctx, conv.ID, "alice", "Alice", &model.SendMessageRequest{
		Kind:             model.MessageText,
		Content:          "replying",
		ReplyToMessageID: foreign.ID,
	})
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestSend_TouchesConversationActivity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	conv := h.mustCreateDirect(t, "alice", "bob")
	view := h.mustSend(t, conv.ID, "alice", "hello")

	summary, err := h.conversations.Get(ctx, conv.ID, "alice")
	require.NoError(t, err)
	require.True(t, summary.LastMessageAt.Equal(view.CreatedAt))
}

func TestEdit_OnlySenderAndOnlyText(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	conv := h.mustCreateDirect(t, "alice", "bob")
	msg := h.mustSend(t, conv.ID, "alice", "draft")

	_, err := h.messages.Edit(ctx, msg.ID, "bob", &model.EditMessageRequest{Content: "hijacked"})
	require.Equal(t, apperr.KindPermission, apperr.KindOf(err))

	edited, err := h.messages.Edit(ctx, msg.ID, "alice", &model.EditMessageRequest{Content: "final"})
	require.NoError(t, err)
	require.Equal(t, "final", edited.Content)
	require.True(t, edited.Edited)
	require.NotNil(t, edited.EditedAt)
	require.True(t, edited.CreatedAt.Equal(msg.CreatedAt))
}

func TestEdit_ImageMessageUnsupported(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	conv := h.mustCreateDirect(t, "alice", "bob")
	view, err := h.messages.Send(ctx, conv.ID, "alice", "Alice", &model.SendMessageRequest{
		Kind: model.MessageImage,
		Attachments: []model.Attachment{{
			MediaRef:    "media-1",
			Filename:    "photo.jpg",
			ContentType: "image/jpeg",
			Size:        1024,
			URL:         "https://cdn.example.com/photo.jpg",
		}},
	})
	require.NoError(t, err)

	_, err = h.messages.Edit(ctx, view.ID, "alice", &model.EditMessageRequest{Content: "caption"})
	require.Equal(t, apperr.KindUnsupported, apperr.KindOf(err))
}

func TestDelete_TombstoneExcludedFromListing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	conv := h.mustCreateDirect(t, "alice", "bob")
	first := h.mustSend(t, conv.ID, "alice", "one")
	second := h.mustSend(t, conv.ID, "bob", "two")
	third := h.mustSend(t, conv.ID, "alice", "three")

	require.NoError(t, h.messages.Delete(ctx, second.ID, "bob"))

	page, err := h.messages.List(ctx, conv.ID, "alice", store.MessageQuery{})
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	require.Equal(t, first.ID, page.Messages[0].ID)
	require.Equal(t, third.ID, page.Messages[1].ID)

	// Deleting again is a no-op.
	require.NoError(t, h.messages.Delete(ctx, second.ID, "bob"))
	require.Len(t, h.events.ofType(model.EventMessageDeleted), 1)
}

func TestDelete_EditingTombstoneConflicts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	conv := h.mustCreateDirect(t, "alice", "bob")
	msg := h.mustSend(t, conv.ID, "alice", "oops")
	require.NoError(t, h.messages.Delete(ctx, msg.ID, "alice"))

	_, err := h.messages.Edit(ctx, msg.ID, "alice", &model.EditMessageRequest{Content: "resurrect"})
	require.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestDelete_ModeratorMayDeleteOthersMessages(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	conv := h.mustCreateGroup(t, "alice", "Trip", "bob", "clara")
	msg := h.mustSend(t, conv.ID, "bob", "spam")

	// A plain member cannot delete someone else's message.
	err := h.messages.Delete(ctx, msg.ID, "clara")
	require.Equal(t, apperr.KindPermission, apperr.KindOf(err))

	// The owner can.
	require.NoError(t, h.messages.Delete(ctx, msg.ID, "alice"))
}

func TestDelete_ReplyPreviewDropsDeletedParent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	conv := h.mustCreateDirect(t, "alice", "bob")
	parent := h.mustSend(t, conv.ID, "alice", "original")
	reply, err := h.messages.Send(ctx, conv.ID, "bob", "Bob", &model.SendMessageRequest{
		Kind:             model.MessageText,
		Content:          "replying",
		ReplyToMessageID: parent.ID,
	})
	require.NoError(t, err)

	require.NoError(t, h.messages.Delete(ctx, parent.ID, "alice"))

	page, err := h.messages.List(ctx, conv.ID, "bob", store.MessageQuery{})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	require.Equal(t, reply.ID, page.Messages[0].ID)
	require.Nil(t, page.Messages[0].ReplyTo)
}

func TestList_CursorPagination(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	conv := h.mustCreateDirect(t, "alice", "bob")
	var ids []string
	for i := 0; i < 7; i++ {
		ids = append(ids, h.mustSend(t, conv.ID, "alice", "msg").ID)
	}

	// Newest window first.
	page, err := h.messages.List(ctx, conv.ID, "bob", store.MessageQuery{Limit: 3})
	require.NoError(t, err)
	require.Len(t, page.Messages, 3)
	require.Equal(t, ids[4:], []string{page.Messages[0].ID, page.Messages[1].ID, page.Messages[2].ID})
	require.NotNil(t, page.NextBefore)
	require.NotEmpty(t, page.NextBeforeID)
	require.False(t, page.First)
	require.True(t, page.Last)

	// Walk backwards on the handed-out keyset cursor.
	page, err = h.messages.List(ctx, conv.ID, "bob", store.MessageQuery{
		Before: page.NextBefore, BeforeID: page.NextBeforeID, Limit: 3,
	})
	require.NoError(t, err)
	require.Len(t, page.Messages, 3)
	require.Equal(t, ids[1:4], []string{page.Messages[0].ID, page.Messages[1].ID, page.Messages[2].ID})
	require.NotNil(t, page.NextBefore)
	require.False(t, page.First)
	require.False(t, page.Last)

	page, err = h.messages.List(ctx, conv.ID, "bob", store.MessageQuery{
		Before: page.NextBefore, BeforeID: page.NextBeforeID, Limit: 3,
	})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	require.Equal(t, ids[0], page.Messages[0].ID)
	require.Nil(t, page.NextBefore)
	require.True(t, page.First)
	require.False(t, page.Last)
}

func TestList_CursorWalkKeepsTimestampTies(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	conv := h.mustCreateDirect(t, "alice", "bob")
	at := time.Now().UTC()
	var ids []string
	for i := 0; i < 4; i++ {
		msg := &model.Message{
			ID:             uuid.Must(uuid.NewV7()).String(),
			ConversationID: conv.ID,
			SenderID:       "alice",
			SenderName:     "Alice",
			Kind:           model.MessageText,
			Content:        "msg",
			CreatedAt:      at.Add(time.Duration(i/2) * time.Second), // two messages per timestamp
		}
		require.NoError(t, h.store.Append(ctx, msg))
		ids = append(ids, msg.ID)
	}

	var got []string
	q := store.MessageQuery{Limit: 2}
	for {
		page, err := h.messages.List(ctx, conv.ID, "bob", q)
		require.NoError(t, err)
		for _, view := range page.Messages {
			got = append(got, view.ID)
		}
		if page.NextBefore == nil {
			break
		}
		q = store.MessageQuery{Before: page.NextBefore, BeforeID: page.NextBeforeID, Limit: 2}
	}
	require.ElementsMatch(t, ids, got)
}

func TestList_FullSinglePageIsFirstAndLast(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	conv := h.mustCreateDirect(t, "alice", "bob")
	for i := 0; i < 3; i++ {
		h.mustSend(t, conv.ID, "alice", "msg")
	}

	// An exactly-full window holding the whole ledger needs no cursor.
	page, err := h.messages.List(ctx, conv.ID, "bob", store.MessageQuery{Limit: 3})
	require.NoError(t, err)
	require.Len(t, page.Messages, 3)
	require.True(t, page.First)
	require.True(t, page.Last)
	require.Nil(t, page.NextBefore)
}

func TestList_CursorIDRequiresTimestamp(t *testing.T) {
	h := newHarness(t)

	conv := h.mustCreateDirect(t, "alice", "bob")
	msg := h.mustSend(t, conv.ID, "alice", "msg")

	_, err := h.messages.List(context.Background(), conv.ID, "alice", store.MessageQuery{BeforeID: msg.ID})
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = h.messages.List(context.Background(), conv.ID, "alice", store.MessageQuery{AfterID: msg.ID})
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestList_BeforeAndAfterMutuallyExclusive(t *testing.T) {
	h := newHarness(t)

	conv := h.mustCreateDirect(t, "alice", "bob")
	msg := h.mustSend(t, conv.ID, "alice", "msg")

	_, err := h.messages.List(context.Background(), conv.ID, "alice", store.MessageQuery{
		Before: &msg.CreatedAt,
		After:  &msg.CreatedAt,
	})
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestLatest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	conv := h.mustCreateDirect(t, "alice", "bob")

	view, err := h.messages.Latest(ctx, conv.ID, "alice")
	require.NoError(t, err)
	require.Nil(t, view)

	h.mustSend(t, conv.ID, "alice", "first")
	want := h.mustSend(t, conv.ID, "bob", "second")

	view, err = h.messages.Latest(ctx, conv.ID, "alice")
	require.NoError(t, err)
	require.Equal(t, want.ID, view.ID)

	// Read receipts surface on the latest message like on any listing.
	require.NoError(t, h.receipts.RecordRead(ctx, conv.ID, "alice", "Alice", want.ID))
	view, err = h.messages.Latest(ctx, conv.ID, "alice")
	require.NoError(t, err)
	require.Len(t, view.ReadBy, 1)
	require.Equal(t, 1, view.ReadCount)
}
