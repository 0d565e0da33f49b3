package service

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketloop/chat-service/internal/apperr"
	"github.com/marketloop/chat-service/internal/broadcast"
	"github.com/marketloop/chat-service/internal/model"
	"github.com/marketloop/chat-service/internal/store"
	"github.com/marketloop/chat-service/pkg/logger"
	"github.com/marketloop/chat-service/pkg/metrics"
)

// MessageService owns the message ledger: ingestion, edit, soft delete
// and cursor-based pagination.
type MessageService struct {
	conversations store.ConversationStore
	memberships   store.MembershipStore
	messages      store.MessageStore
	publisher     EventPublisher
	logger        *logger.Logger
}

// NewMessageService creates a message service.
func NewMessageService(
	conversations store.ConversationStore,
	memberships store.MembershipStore,
	messages store.MessageStore,
	publisher EventPublisher,
	log *logger.Logger,
) *MessageService {
	return &MessageService{
		conversations: conversations,
		memberships:   memberships,
		messages:      messages,
		publisher:     publisher,
		logger:        log,
	}
}

// Send appends a message to the conversation ledger. The creation time
// is the server clock at acceptance, never client-supplied, so the
// per-conversation order is total.
func (s *MessageService) Send(ctx context.Context, conversationID, senderID, senderName string, req *model.SendMessageRequest) (*model.MessageView, error) {
	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, storeErr("get conversation", err)
	}
	if !conv.IsMember(senderID) {
		return nil, apperr.NotFoundf("conversation not found")
	}
	if conv.Archived {
		return nil, apperr.Conflictf("conversation is archived")
	}

	if err := validateSend(req); err != nil {
		return nil, err
	}

	if req.ReplyToMessageID != "" {
		parent, err := s.messages.Get(ctx, req.ReplyToMessageID)
		if err != nil || parent.ConversationID != conversationID || parent.Deleted() {
			return nil, apperr.Validationf("reply_to_message_id", "referenced message does not exist in this conversation")
		}
	}

	msg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderName:     senderName,
		Kind:           req.Kind,
		Content:        req.Content,
		Attachments:    req.Attachments,
		ReplyToID:      req.ReplyToMessageID,
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.messages.Append(ctx, msg); err != nil {
		return nil, apperr.Unavailable("append message", err)
	}
	if err := s.conversations.TouchLastMessageAt(ctx, conversationID, msg.CreatedAt); err != nil {
		s.logger.Warn("failed to touch conversation activity",
			zap.Error(err), zap.String("conversation_id", conversationID))
	}

	metrics.MessagesTotal.WithLabelValues(string(msg.Kind)).Inc()

	view, err := s.view(ctx, msg)
	if err != nil {
		return nil, err
	}
	s.publisher.Publish(ctx, broadcast.NewEvent(
		model.EventMessageSent, conversationID, senderID, senderName, view,
	))
	return view, nil
}

// SendSystem appends a SYSTEM message announcing a membership change.
func (s *MessageService) SendSystem(ctx context.Context, conversationID, actorID, actorName, text string) {
	msg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		SenderID:       actorID,
		SenderName:     actorName,
		Kind:           model.MessageSystem,
		Content:        text,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		s.logger.Warn("failed to append system message",
			zap.Error(err), zap.String("conversation_id", conversationID))
		return
	}
	if err := s.conversations.TouchLastMessageAt(ctx, conversationID, msg.CreatedAt); err != nil {
		s.logger.Warn("failed to touch conversation activity",
			zap.Error(err), zap.String("conversation_id", conversationID))
	}
	metrics.MessagesTotal.WithLabelValues(string(model.MessageSystem)).Inc()
	s.publisher.Publish(ctx, broadcast.NewEvent(
		model.EventMessageSent, conversationID, actorID, actorName,
		model.MessageView{Message: *msg},
	))
}

// Edit updates a message's content and attachments. Only the original
// sender may edit, only TEXT messages, never tombstones.
func (s *MessageService) Edit(ctx context.Context, messageID, actorID string, req *model.EditMessageRequest) (*model.MessageView, error) {
	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return nil, storeErr("get message", err)
	}
	if msg.Deleted() {
		return nil, apperr.Conflictf("message has been deleted")
	}
	if msg.SenderID != actorID {
		return nil, apperr.Permissionf("only the sender may edit a message")
	}
	if msg.Kind != model.MessageText {
		return nil, apperr.Unsupportedf("only text messages can be edited")
	}
	if utf8.RuneCountInString(req.Content) > model.MaxContentLength {
		return nil, apperr.Validationf("content", "content exceeds %d characters", model.MaxContentLength)
	}

	now := time.Now().UTC()
	msg.Content = req.Content
	msg.Attachments = req.Attachments
	msg.Edited = true
	msg.EditedAt = &now

	if err := s.messages.Update(ctx, msg); err != nil {
		return nil, storeErr("update message", err)
	}

	view, err := s.view(ctx, msg)
	if err != nil {
		return nil, err
	}
	s.publisher.Publish(ctx, broadcast.NewEvent(
		model.EventMessageEdited, msg.ConversationID, actorID, msg.SenderName, view,
	))
	return view, nil
}

// Delete tombstones a message. The row keeps its place in the sequence;
// content is redacted on every read path rather than merely flagged.
func (s *MessageService) Delete(ctx context.Context, messageID, actorID string) error {
	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return storeErr("get message", err)
	}
	if msg.Deleted() {
		return nil
	}

	if msg.SenderID != actorID {
		membership, err := s.memberships.Get(ctx, msg.ConversationID, actorID)
		if err != nil {
			return storeErr("get membership", err)
		}
		if !membership.Role.CanModerate() {
			return apperr.Permissionf("only the sender, an admin or the owner may delete a message")
		}
	}

	now := time.Now().UTC()
	msg.DeletedAt = &now
	msg.Redact()

	if err := s.messages.Update(ctx, msg); err != nil {
		return storeErr("delete message", err)
	}

	s.publisher.Publish(ctx, broadcast.NewEvent(
		model.EventMessageDeleted, msg.ConversationID, actorID, "",
		map[string]string{"message_id": msg.ID},
	))
	return nil
}

// List returns a page of the conversation's messages in ascending
// (created_at, id) order. Soft-deleted messages are excluded entirely.
func (s *MessageService) List(ctx context.Context, conversationID, callerID string, q store.MessageQuery) (*model.MessagePage, error) {
	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, storeErr("get conversation", err)
	}
	if !conv.IsMember(callerID) {
		return nil, apperr.NotFoundf("conversation not found")
	}
	if q.Before != nil && q.After != nil {
		return nil, apperr.Validationf("cursor", "before and after are mutually exclusive")
	}
	if q.BeforeID != "" && q.Before == nil {
		return nil, apperr.Validationf("cursor", "before_id requires before")
	}
	if q.AfterID != "" && q.After == nil {
		return nil, apperr.Validationf("cursor", "after_id requires after")
	}
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if q.Limit > 100 {
		q.Limit = 100
	}

	msgs, err := s.messages.List(ctx, conversationID, q)
	if err != nil {
		return nil, apperr.Unavailable("list messages", err)
	}
	total, err := s.messages.Count(ctx, conversationID)
	if err != nil {
		return nil, apperr.Unavailable("count messages", err)
	}

	views := make([]model.MessageView, 0, len(msgs))
	for _, msg := range msgs {
		view, err := s.view(ctx, msg)
		if err != nil {
			return nil, err
		}
		views = append(views, *view)
	}

	page := &model.MessagePage{
		Messages: views,
		PageInfo: model.NewPageInfo(0, q.Limit, total),
	}
	// First means the window reached the start of the ledger, Last that
	// it includes the newest message. A short window means the bound in
	// its direction of travel was exhausted.
	switch {
	case q.Before != nil:
		page.First = len(msgs) < q.Limit
		page.Last = false
	case q.After != nil:
		page.First = false
		page.Last = len(msgs) < q.Limit
	default:
		page.First = int64(len(msgs)) >= total
		page.Last = true
	}
	// Hand back the keyset cursor for the next older window while older
	// messages remain.
	if q.After == nil && !page.First && len(msgs) > 0 {
		t := msgs[0].CreatedAt
		page.NextBefore = &t
		page.NextBeforeID = msgs[0].ID
	}
	return page, nil
}

// Latest returns the newest non-deleted message, or nil for an empty
// conversation.
func (s *MessageService) Latest(ctx context.Context, conversationID, callerID string) (*model.MessageView, error) {
	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, storeErr("get conversation", err)
	}
	if !conv.IsMember(callerID) {
		return nil, apperr.NotFoundf("conversation not found")
	}

	msg, err := s.messages.Latest(ctx, conversationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Unavailable("get latest message", err)
	}
	return s.view(ctx, msg)
}

// Count returns the number of non-deleted messages in a conversation.
func (s *MessageService) Count(ctx context.Context, conversationID string) (int64, error) {
	count, err := s.messages.Count(ctx, conversationID)
	if err != nil {
		return 0, apperr.Unavailable("count messages", err)
	}
	return count, nil
}

// view decorates a message with its reply preview and read count. A
// tombstoned message is fully redacted before leaving the service.
func (s *MessageService) view(ctx context.Context, msg *model.Message) (*model.MessageView, error) {
	if msg.Deleted() {
		msg.Redact()
		return &model.MessageView{Message: *msg}, nil
	}

	view := &model.MessageView{Message: *msg, ReadCount: len(msg.ReadBy)}
	if msg.ReplyToID != "" {
		parent, err := s.messages.Get(ctx, msg.ReplyToID)
		if err == nil && !parent.Deleted() {
			view.ReplyTo = &model.ReplyPreview{
				MessageID:  parent.ID,
				SenderName: parent.SenderName,
				Excerpt:    excerpt(parent.Content, 120),
			}
		}
	}
	return view, nil
}

func excerpt(content string, max int) string {
	if utf8.RuneCountInString(content) <= max {
		return content
	}
	runes := []rune(content)
	return string(runes[:max]) + "…"
}

func validateSend(req *model.SendMessageRequest) error {
	switch req.Kind {
	case model.MessageText:
		if req.Content == "" {
			return apperr.Validationf("content", "content is required for text messages")
		}
	case model.MessageImage, model.MessageFile:
		if len(req.Attachments) == 0 {
			return apperr.Validationf("attachments", "at least one attachment is required for %s messages", req.Kind)
		}
	case model.MessageSystem:
		return apperr.Validationf("kind", "system messages cannot be sent by clients")
	default:
		return apperr.Validationf("kind", "unknown message kind %q", req.Kind)
	}
	if utf8.RuneCountInString(req.Content) > model.MaxContentLength {
		return apperr.Validationf("content", "content exceeds %d characters", model.MaxContentLength)
	}
	return nil
}
