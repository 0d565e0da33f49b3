package service

import (
	"context"
	"errors"
	"time"

	"github.com/marketloop/chat-service/internal/apperr"
	"github.com/marketloop/chat-service/internal/broadcast"
	"github.com/marketloop/chat-service/internal/model"
	"github.com/marketloop/chat-service/internal/store"
	"github.com/marketloop/chat-service/pkg/logger"
	"github.com/marketloop/chat-service/pkg/metrics"
)

// ReceiptService tracks read progress: it advances the per-membership
// read marker and keeps the materialized read-by list on messages
// consistent with it.
type ReceiptService struct {
	conversations store.ConversationStore
	memberships   store.MembershipStore
	messages      store.MessageStore
	publisher     EventPublisher
	logger        *logger.Logger
}

// NewReceiptService creates a receipt service.
func NewReceiptService(
	conversations store.ConversationStore,
	memberships store.MembershipStore,
	messages store.MessageStore,
	publisher EventPublisher,
	log *logger.Logger,
) *ReceiptService {
	return &ReceiptService{
		conversations: conversations,
		memberships:   memberships,
		messages:      messages,
		publisher:     publisher,
		logger:        log,
	}
}

// RecordRead acknowledges messages up to the referenced message. The
// marker only moves forward: an ack older than the stored marker is a
// no-op, so the call is idempotent and safe under reordering.
func (s *ReceiptService) RecordRead(ctx context.Context, conversationID, userID, userName, messageID string) error {
	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return storeErr("get message", err)
	}
	if msg.ConversationID != conversationID {
		return apperr.NotFoundf("message not found in this conversation")
	}

	applied, err := s.memberships.AdvanceLastRead(ctx, conversationID, userID, msg.CreatedAt)
	if err != nil {
		return storeErr("advance read marker", err)
	}
	if !applied {
		// A repeated read of the message at the marker still refreshes
		// the receipt timestamp; acks older than the marker are stale
		// and dropped.
		membership, err := s.memberships.Get(ctx, conversationID, userID)
		if err != nil {
			return storeErr("get membership", err)
		}
		if !membership.LastReadAt.Equal(msg.CreatedAt) {
			return nil
		}
		if err := s.messages.UpsertReceipt(ctx, messageID, model.ReadReceipt{
			UserID:      userID,
			DisplayName: userName,
			ReadAt:      time.Now().UTC(),
		}); err != nil && !errors.Is(err, store.ErrNotFound) {
			return apperr.Unavailable("record read receipt", err)
		}
		return nil
	}

	if err := s.messages.UpsertReceipt(ctx, messageID, model.ReadReceipt{
		UserID:      userID,
		DisplayName: userName,
		ReadAt:      time.Now().UTC(),
	}); err != nil && !errors.Is(err, store.ErrNotFound) {
		return apperr.Unavailable("record read receipt", err)
	}

	s.publisher.Publish(ctx, broadcast.NewEvent(
		model.EventMessageRead, conversationID, userID, userName,
		model.ReadPayload{MessageID: messageID, UserID: userID},
	))
	return nil
}

// CountUnread returns the number of non-deleted messages created
// strictly after the user's read marker. Without a membership every
// message counts as unread.
func (s *ReceiptService) CountUnread(ctx context.Context, conversationID, userID string) (int, error) {
	timer := time.Now()
	defer func() {
		metrics.UnreadQueryDuration.Observe(time.Since(timer).Seconds())
	}()

	membership, err := s.memberships.Get(ctx, conversationID, userID)
	if errors.Is(err, store.ErrNotFound) {
		total, err := s.messages.Count(ctx, conversationID)
		if err != nil {
			return 0, apperr.Unavailable("count messages", err)
		}
		return int(total), nil
	}
	if err != nil {
		return 0, apperr.Unavailable("get membership", err)
	}

	count, err := s.messages.CountAfter(ctx, conversationID, membership.LastReadAt)
	if err != nil {
		return 0, apperr.Unavailable("count unread", err)
	}
	return count, nil
}

// CountUnreadConversations returns the number of the user's
// conversations with activity after their read marker.
func (s *ReceiptService) CountUnreadConversations(ctx context.Context, userID string) (int, error) {
	memberships, err := s.memberships.ListByUser(ctx, userID)
	if err != nil {
		return 0, apperr.Unavailable("list memberships", err)
	}

	count := 0
	for _, m := range memberships {
		conv, err := s.conversations.Get(ctx, m.ConversationID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return 0, apperr.Unavailable("get conversation", err)
		}
		if conv.Archived {
			continue
		}
		if conv.LastMessageAt.After(m.LastReadAt) {
			count++
		}
	}
	return count, nil
}
