package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/marketloop/chat-service/internal/apperr"
	"github.com/marketloop/chat-service/internal/broadcast"
	"github.com/marketloop/chat-service/internal/model"
	"github.com/marketloop/chat-service/internal/store"
	"github.com/marketloop/chat-service/pkg/logger"
	"github.com/marketloop/chat-service/pkg/metrics"
)

// GroupMemberLimit bounds the roster of a GROUP conversation.
const GroupMemberLimit = 50

// ConversationService owns conversation lifecycle: creation with direct
// deduplication, archival and listing.
type ConversationService struct {
	conversations store.ConversationStore
	memberships   store.MembershipStore
	receipts      *ReceiptService
	directory     Directory
	publisher     EventPublisher
	logger        *logger.Logger
}

// NewConversationService creates a conversation service.
func NewConversationService(
	conversations store.ConversationStore,
	memberships store.MembershipStore,
	receipts *ReceiptService,
	directory Directory,
	publisher EventPublisher,
	log *logger.Logger,
) *ConversationService {
	return &ConversationService{
		conversations: conversations,
		memberships:   memberships,
		receipts:      receipts,
		directory:     directory,
		publisher:     publisher,
		logger:        log,
	}
}

// Create creates a conversation. Creating a DIRECT conversation for a
// pair that already shares a non-archived one returns the existing
// conversation (idempotent create).
func (s *ConversationService) Create(ctx context.Context, creatorID string, req *model.CreateConversationRequest) (*model.ConversationSummary, error) {
	memberIDs := lo.Uniq(req.MemberIDs)
	if !lo.Contains(memberIDs, creatorID) {
		if req.Type == model.ConversationDirect {
			return nil, apperr.Validationf("member_ids", "creator must be one of the direct conversation members")
		}
		memberIDs = append([]string{creatorID}, memberIDs...)
	}

	switch req.Type {
	case model.ConversationDirect:
		if len(memberIDs) != 2 {
			return nil, apperr.Validationf("member_ids", "direct conversation requires exactly 2 distinct members")
		}
		if existing, err := s.conversations.FindDirect(ctx, memberIDs[0], memberIDs[1]); err == nil {
			return s.summarize(ctx, existing, creatorID)
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, apperr.Unavailable("find direct conversation", err)
		}
	case model.ConversationGroup:
		if req.Title == "" {
			return nil, apperr.Validationf("title", "title is required for group conversations")
		}
		if len(memberIDs) > GroupMemberLimit {
			return nil, apperr.Validationf("member_ids", "group conversation is limited to %d members", GroupMemberLimit)
		}
	default:
		return nil, apperr.Validationf("type", "unknown conversation type %q", req.Type)
	}

	now := time.Now().UTC()
	conv := &model.Conversation{
		ID:            uuid.Must(uuid.NewV7()).String(),
		Type:          req.Type,
		MemberIDs:     memberIDs,
		CreatedAt:     now,
		LastMessageAt: now,
	}
	if req.Type == model.ConversationGroup {
		conv.Title = req.Title
		conv.OwnerID = creatorID
	}

	members := make([]*model.Membership, 0, len(memberIDs))
	for _, userID := range memberIDs {
		role := model.RoleMember
		if conv.Type == model.ConversationGroup && userID == creatorID {
			role = model.RoleOwner
		}
		members = append(members, &model.Membership{
			ID:             uuid.Must(uuid.NewV7()).String(),
			ConversationID: conv.ID,
			UserID:         userID,
			Role:           role,
			JoinedAt:       now,
		})
	}

	if err := s.conversations.Create(ctx, conv, members); err != nil {
		// Losing the DIRECT creation race is resolved in the loser's
		// favor: return the winner's conversation.
		if conv.Type == model.ConversationDirect {
			if existing, findErr := s.conversations.FindDirect(ctx, memberIDs[0], memberIDs[1]); findErr == nil {
				return s.summarize(ctx, existing, creatorID)
			}
			return nil, apperr.Conflictf("direct conversation already exists for this pair")
		}
		return nil, apperr.Unavailable("create conversation", err)
	}

	metrics.ConversationsTotal.WithLabelValues(string(conv.Type)).Inc()
	s.logger.Info("conversation created",
		zap.String("conversation_id", conv.ID),
		zap.String("type", string(conv.Type)),
		zap.Int("members", len(memberIDs)),
	)

	summary, err := s.summarize(ctx, conv, creatorID)
	if err != nil {
		return nil, err
	}
	s.publisher.Publish(ctx, broadcast.NewEvent(
		model.EventConversationNew, conv.ID, creatorID, displayName(ctx, s.directory, creatorID), summary,
	))
	return summary, nil
}

// Get returns the conversation summary for one member. Non-members get
// NotFound: invisible conversations do not exist for them.
func (s *ConversationService) Get(ctx context.Context, conversationID, callerID string) (*model.ConversationSummary, error) {
	conv, err := s.visible(ctx, conversationID, callerID)
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, conv, callerID)
}

// Archive sets the archived flag. Messages and memberships survive.
func (s *ConversationService) Archive(ctx context.Context, conversationID, actorID string) error {
	conv, err := s.visible(ctx, conversationID, actorID)
	if err != nil {
		return err
	}
	if conv.Archived {
		return nil
	}

	if conv.Type == model.ConversationGroup {
		membership, err := s.memberships.Get(ctx, conversationID, actorID)
		if err != nil {
			return storeErr("get membership", err)
		}
		if !membership.Role.CanModerate() {
			return apperr.Permissionf("only the owner or an admin may archive a group conversation")
		}
	}

	conv.Archived = true
	if err := s.conversations.Update(ctx, conv); err != nil {
		return storeErr("archive conversation", err)
	}

	s.publisher.Publish(ctx, broadcast.NewEvent(
		model.EventConversationUpdate, conv.ID, actorID, displayName(ctx, s.directory, actorID),
		map[string]any{"archived": true},
	))
	return nil
}

// List returns the caller's non-archived conversations, newest activity
// first, each decorated with the caller's unread count.
func (s *ConversationService) List(ctx context.Context, userID string, page, size int) (*model.ConversationPage, error) {
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	if page < 0 {
		page = 0
	}

	convs, total, err := s.conversations.ListForUser(ctx, userID, page, size)
	if err != nil {
		return nil, apperr.Unavailable("list conversations", err)
	}

	summaries := make([]model.ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		summary, err := s.summarize(ctx, conv, userID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, *summary)
	}

	return &model.ConversationPage{
		Conversations: summaries,
		PageInfo:      model.NewPageInfo(page, size, total),
	}, nil
}

// visible loads a conversation if the caller is a member of it.
func (s *ConversationService) visible(ctx context.Context, conversationID, callerID string) (*model.Conversation, error) {
	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, storeErr("get conversation", err)
	}
	if !conv.IsMember(callerID) {
		return nil, apperr.NotFoundf("conversation not found")
	}
	return conv, nil
}

// summarize builds the API view of a conversation for one caller.
func (s *ConversationService) summarize(ctx context.Context, conv *model.Conversation, callerID string) (*model.ConversationSummary, error) {
	members, err := s.memberships.ListByConversation(ctx, conv.ID)
	if err != nil {
		return nil, apperr.Unavailable("list members", err)
	}

	unread, err := s.receipts.CountUnread(ctx, conv.ID, callerID)
	if err != nil {
		return nil, err
	}

	return &model.ConversationSummary{
		ID:      conv.ID,
		Type:    conv.Type,
		Title:   conv.Title,
		OwnerID: conv.OwnerID,
		Members: lo.Map(members, func(m *model.Membership, _ int) model.MemberSummary {
			return model.MemberSummary{
				UserID:      m.UserID,
				DisplayName: displayName(ctx, s.directory, m.UserID),
				Role:        m.Role,
				LastReadAt:  m.LastReadAt,
				Muted:       m.Muted,
				JoinedAt:    m.JoinedAt,
			}
		}),
		CreatedAt:     conv.CreatedAt,
		LastMessageAt: conv.LastMessageAt,
		UnreadCount:   unread,
	}, nil
}
