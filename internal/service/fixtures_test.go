package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marketloop/chat-service/internal/model"
	"github.com/marketloop/chat-service/internal/store/memory"
	"github.com/marketloop/chat-service/pkg/logger"
)

// eventRecorder captures published events in order.
type eventRecorder struct {
	mu     sync.Mutex
	events []*model.Event
}

func (r *eventRecorder) Publish(ctx context.Context, event *model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) ofType(t model.EventType) []*model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *eventRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type harness struct {
	store         *memory.Store
	events        *eventRecorder
	conversations *ConversationService
	memberships   *MembershipService
	messages      *MessageService
	receipts      *ReceiptService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	mem := memory.New()
	events := &eventRecorder{}
	log := logger.NewNop()
	directory := StaticDirectory{
		"alice": "Alice",
		"bob":   "Bob",
		"clara": "Clara",
	}

	receipts := NewReceiptService(mem.Conversations(), mem.Memberships(), mem.Messages(), events, log)
	messages := NewMessageService(mem.Conversations(), mem.Memberships(), mem.Messages(), events, log)
	memberships := NewMembershipService(mem.Conversations(), mem.Memberships(), messages, directory, events, log)
	conversations := NewConversationService(mem.Conversations(), mem.Memberships(), receipts, directory, events, log)

	return &harness{
		store:         mem,
		events:        events,
		conversations: conversations,
		memberships:   memberships,
		messages:      messages,
		receipts:      receipts,
	}
}

func (h *harness) mustCreateDirect(t *testing.T, a, b string) *model.ConversationSummary {
	t.Helper()
	summary, err := h.conversations.Create(context.Background(), a, &model.CreateConversationRequest{
		Type:      model.ConversationDirect,
		MemberIDs: []string{a, b},
	})
	require.NoError(t, err)
	return summary
}

func (h *harness) mustCreateGroup(t *testing.T, creator, title string, members ...string) *model.ConversationSummary {
	t.Helper()
	summary, err := h.conversations.Create(context.Background(), creator, &model.CreateConversationRequest{
		Type:      model.ConversationGroup,
		Title:     title,
		MemberIDs: members,
	})
	require.NoError(t, err)
	return summary
}

func (h *harness) mustSend(t *testing.T, convID, sender, content string) *model.MessageView {
	t.Helper()
	view, err := h.messages.Send(context.Background(), convID, sender, sender, &model.SendMessageRequest{
		Kind:    model.MessageText,
		Content: content,
	})
	require.NoError(t, err)
	return view
}
