package handler

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marketloop/chat-service/internal/broadcast"
	"github.com/marketloop/chat-service/internal/model"
	"github.com/marketloop/chat-service/internal/presence"
	"github.com/marketloop/chat-service/internal/realtime"
	"github.com/marketloop/chat-service/internal/service"
	"github.com/marketloop/chat-service/internal/store"
	"github.com/marketloop/chat-service/internal/store/memory"
	"github.com/marketloop/chat-service/pkg/logger"
)

// deadlineRecordingMessages notes whether each Get arrived with a
// context deadline.
type deadlineRecordingMessages struct {
	store.MessageStore
	mu        sync.Mutex
	deadlines []bool
}

func (s *deadlineRecordingMessages) Get(ctx context.Context, id string) (*model.Message, error) {
	_, ok := ctx.Deadline()
	s.mu.Lock()
	s.deadlines = append(s.deadlines, ok)
	s.mu.Unlock()
	return s.MessageStore.Get(ctx, id)
}

func TestWSFrames_StoreCallsCarryDeadline(t *testing.T) {
	mem := memory.New()
	log := logger.NewNop()
	registry := realtime.NewRegistry()
	loopback := broadcast.NewLoopback()
	broadcaster := broadcast.New(loopback, registry, mem.Memberships(), log)
	require.NoError(t, broadcaster.Start())
	t.Cleanup(broadcaster.Stop)

	msgStore := &deadlineRecordingMessages{MessageStore: mem.Messages()}
	directory := service.StaticDirectory{"alice": "Alice", "bob": "Bob"}
	receipts := service.NewReceiptService(mem.Conversations(), mem.Memberships(), msgStore, broadcaster, log)
	messages := service.NewMessageService(mem.Conversations(), mem.Memberships(), mem.Messages(), broadcaster, log)
	memberships := service.NewMembershipService(mem.Conversations(), mem.Memberships(), messages, directory, broadcaster, log)
	conversations := service.NewConversationService(mem.Conversations(), mem.Memberships(), receipts, directory, broadcaster, log)

	conv, err := conversations.Create(context.Background(), "alice", &model.CreateConversationRequest{
		Type:      model.ConversationDirect,
		MemberIDs: []string{"alice", "bob"},
	})
	require.NoError(t, err)
	sent, err := messages.Send(context.Background(), conv.ID, "alice", "Alice", &model.SendMessageRequest{
		Kind:    model.MessageText,
		Content: "hello",
	})
	require.NoError(t, err)

	h := NewWSHandler(registry, broadcaster, presence.NewMemoryTracker(time.Minute), memberships, receipts, time.Second, log)

	conn := realtime.NewConnection("bob", "Bob", nil)
	frame, err := json.Marshal(map[string]any{
		"type":            "MARK_READ",
		"conversation_id": conv.ID,
		"message_id":      sent.ID,
	})
	require.NoError(t, err)
	h.handleFrame(conn, frame)

	msgStore.mu.Lock()
	seen := append([]bool(nil), msgStore.deadlines...)
	msgStore.mu.Unlock()
	require.NotEmpty(t, seen)
	for _, bounded := range seen {
		require.True(t, bounded)
	}

	unread, err := receipts.CountUnread(context.Background(), conv.ID, "bob")
	require.NoError(t, err)
	require.Equal(t, 0, unread)
}
