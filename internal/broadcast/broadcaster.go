// Package broadcast distributes conversation events to the live
// sessions of conversation members. It persists nothing: a write is
// acknowledged independent of whether anyone receives the event, and
// disconnected members reconcile via the list endpoints.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketloop/chat-service/internal/model"
	"github.com/marketloop/chat-service/internal/realtime"
	"github.com/marketloop/chat-service/internal/store"
	"github.com/marketloop/chat-service/pkg/logger"
	"github.com/marketloop/chat-service/pkg/metrics"
)

const subjectPrefix = "chat.conv"

// Publisher is the transport carrying envelopes between API instances.
type Publisher interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler func(data []byte)) (func(), error)
}

// Subject returns the event subject for one conversation.
func Subject(conversationID string) string {
	return fmt.Sprintf("%s.%s.events", subjectPrefix, conversationID)
}

// Broadcaster fans events out to conversation members. Each instance
// publishes to the shared transport and delivers incoming envelopes to
// its local sessions only.
type Broadcaster struct {
	pub         Publisher
	registry    *realtime.Registry
	memberships store.MembershipStore
	logger      *logger.Logger

	unsubscribe func()
}

// New creates a broadcaster.
func New(pub Publisher, registry *realtime.Registry, memberships store.MembershipStore, log *logger.Logger) *Broadcaster {
	return &Broadcaster{
		pub:         pub,
		registry:    registry,
		memberships: memberships,
		logger:      log,
	}
}

// Start subscribes to the event subjects of all conversations.
func (b *Broadcaster) Start() error {
	unsub, err := b.pub.Subscribe(subjectPrefix+".*.events", func(data []byte) {
		var event model.Event
		if err := json.Unmarshal(data, &event); err != nil {
			b.logger.Warn("dropping malformed event envelope", zap.Error(err))
			return
		}
		b.deliver(context.Background(), &event)
	})
	if err != nil {
		return err
	}
	b.unsubscribe = unsub
	return nil
}

// Stop detaches from the transport.
func (b *Broadcaster) Stop() {
	if b.unsubscribe != nil {
		b.unsubscribe()
	}
}

// NewEvent builds an envelope, marshaling the payload.
func NewEvent(eventType model.EventType, conversationID, actorID, actorName string, payload any) *model.Event {
	event := &model.Event{
		ID:             uuid.Must(uuid.NewV7()).String(),
		Type:           eventType,
		ConversationID: conversationID,
		ActorID:        actorID,
		ActorName:      actorName,
		Timestamp:      time.Now(),
	}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			event.Payload = data
		}
	}
	return event
}

// Publish hands an event to the transport. Fire and forget relative to
// the write path: failures are logged, never returned to the writer.
func (b *Broadcaster) Publish(ctx context.Context, event *model.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("failed to marshal event", zap.Error(err), zap.String("type", string(event.Type)))
		return
	}
	if err := b.pub.Publish(Subject(event.ConversationID), data); err != nil {
		b.logger.Warn("failed to publish event",
			zap.Error(err),
			zap.String("type", string(event.Type)),
			zap.String("conversation_id", event.ConversationID),
		)
		return
	}
	metrics.EventsPublishedTotal.WithLabelValues(string(event.Type)).Inc()
}

// deliver sends an envelope to every local session of every member of
// the event's conversation. At most once per session, best effort.
func (b *Broadcaster) deliver(ctx context.Context, event *model.Event) {
	members, err := b.memberships.ListByConversation(ctx, event.ConversationID)
	if err != nil {
		b.logger.Warn("failed to resolve members for event",
			zap.Error(err),
			zap.String("conversation_id", event.ConversationID),
		)
		return
	}

	for _, member := range members {
		for _, conn := range b.registry.SessionsFor(member.UserID) {
			if err := conn.SendEvent(event); err != nil {
				metrics.EventDeliveryFailures.Inc()
				b.logger.Debug("event delivery dropped",
					zap.String("session_id", conn.ID),
					zap.String("user_id", member.UserID),
					zap.Error(err),
				)
			}
		}
	}
}

// PublishPresence emits USER_ONLINE or USER_OFFLINE to every
// conversation the user belongs to.
func (b *Broadcaster) PublishPresence(ctx context.Context, userID, userName string, online bool) {
	memberships, err := b.memberships.ListByUser(ctx, userID)
	if err != nil {
		b.logger.Warn("failed to resolve conversations for presence", zap.Error(err), zap.String("user_id", userID))
		return
	}

	eventType := model.EventUserOffline
	if online {
		eventType = model.EventUserOnline
	}
	for _, m := range memberships {
		b.Publish(ctx, NewEvent(eventType, m.ConversationID, userID, userName, nil))
	}
}
