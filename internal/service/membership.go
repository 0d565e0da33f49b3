package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/marketloop/chat-service/internal/apperr"
	"github.com/marketloop/chat-service/internal/broadcast"
	"github.com/marketloop/chat-service/internal/model"
	"github.com/marketloop/chat-service/internal/store"
	"github.com/marketloop/chat-service/pkg/logger"
)

// AddMembersLimit bounds one add-members batch.
const AddMembersLimit = 20

// MembershipService owns the conversation roster and per-member state.
// Roster and membership rows always change as one atomic unit, and
// role/ownership mutation is serialized per conversation.
type MembershipService struct {
	conversations store.ConversationStore
	memberships   store.MembershipStore
	messages      *MessageService
	directory     Directory
	publisher     EventPublisher
	logger        *logger.Logger

	locks convLocks
}

// NewMembershipService creates a membership service.
func NewMembershipService(
	conversations store.ConversationStore,
	memberships store.MembershipStore,
	messages *MessageService,
	directory Directory,
	publisher EventPublisher,
	log *logger.Logger,
) *MembershipService {
	return &MembershipService{
		conversations: conversations,
		memberships:   memberships,
		messages:      messages,
		directory:     directory,
		publisher:     publisher,
		logger:        log,
	}
}

// AddMembers adds users to a group conversation. Users who are already
// members are skipped, not rejected.
func (s *MembershipService) AddMembers(ctx context.Context, conversationID, actorID string, userIDs []string) error {
	if len(userIDs) == 0 || len(userIDs) > AddMembersLimit {
		return apperr.Validationf("user_ids", "between 1 and %d users per call", AddMembersLimit)
	}

	unlock := s.locks.lock(conversationID)
	defer unlock()

	conv, _, err := s.moderatedBy(ctx, conversationID, actorID)
	if err != nil {
		return err
	}
	if conv.Type == model.ConversationDirect {
		return apperr.Unsupportedf("direct conversations cannot gain members")
	}

	newIDs := lo.Filter(lo.Uniq(userIDs), func(id string, _ int) bool {
		return !conv.IsMember(id)
	})
	if len(newIDs) == 0 {
		return nil
	}
	if len(conv.MemberIDs)+len(newIDs) > GroupMemberLimit {
		return apperr.Validationf("user_ids", "group conversation is limited to %d members", GroupMemberLimit)
	}

	now := time.Now().UTC()
	rows := make([]*model.Membership, 0, len(newIDs))
	for _, userID := range newIDs {
		rows = append(rows, &model.Membership{
			ID:             uuid.Must(uuid.NewV7()).String(),
			ConversationID: conversationID,
			UserID:         userID,
			Role:           model.RoleMember,
			JoinedAt:       now,
		})
	}

	conv.MemberIDs = append(conv.MemberIDs, newIDs...)
	if err := s.conversations.AddMembers(ctx, conv, rows); err != nil {
		return storeErr("add members", err)
	}

	actorName := displayName(ctx, s.directory, actorID)
	for _, userID := range newIDs {
		s.publisher.Publish(ctx, broadcast.NewEvent(
			model.EventUserJoined, conversationID, actorID, actorName,
			map[string]string{"user_id": userID},
		))
		s.messages.SendSystem(ctx, conversationID, actorID, actorName,
			displayName(ctx, s.directory, userID)+" joined the conversation")
	}
	s.logger.Info("members added",
		zap.String("conversation_id", conversationID),
		zap.Int("count", len(newIDs)),
	)
	return nil
}

// RemoveMember removes a user from a conversation. Any member may
// remove themselves; owner and admins may remove others. The owner
// cannot be removed without a prior ownership transfer.
func (s *MembershipService) RemoveMember(ctx context.Context, conversationID, actorID, targetID string) error {
	unlock := s.locks.lock(conversationID)
	defer unlock()

	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return storeErr("get conversation", err)
	}
	if !conv.IsMember(actorID) {
		return apperr.NotFoundf("conversation not found")
	}
	if !conv.IsMember(targetID) {
		return apperr.NotFoundf("user is not a member of this conversation")
	}

	if conv.Type == model.ConversationGroup && targetID == conv.OwnerID {
		return apperr.Conflictf("the owner cannot leave without transferring ownership first")
	}
	if actorID != targetID {
		actor, err := s.memberships.Get(ctx, conversationID, actorID)
		if err != nil {
			return storeErr("get membership", err)
		}
		if !actor.Role.CanModerate() {
			return apperr.Permissionf("only the owner or an admin may remove members")
		}
	}

	conv.MemberIDs = lo.Without(conv.MemberIDs, targetID)
	conv.AdminIDs = lo.Without(conv.AdminIDs, targetID)
	if err := s.conversations.RemoveMember(ctx, conv, targetID); err != nil {
		return storeErr("remove member", err)
	}

	actorName := displayName(ctx, s.directory, actorID)
	s.publisher.Publish(ctx, broadcast.NewEvent(
		model.EventUserLeft, conversationID, actorID, actorName,
		map[string]string{"user_id": targetID},
	))
	s.messages.SendSystem(ctx, conversationID, actorID, actorName,
		displayName(ctx, s.directory, targetID)+" left the conversation")
	return nil
}

// ChangeRole promotes or demotes a member. Only the owner may grant or
// revoke ADMIN, and only the owner may transfer ownership; exactly one
// owner exists after every successful call.
func (s *MembershipService) ChangeRole(ctx context.Context, conversationID, actorID, targetID string, newRole model.Role) error {
	unlock := s.locks.lock(conversationID)
	defer unlock()

	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return storeErr("get conversation", err)
	}
	if !conv.IsMember(actorID) {
		return apperr.NotFoundf("conversation not found")
	}
	if conv.Type != model.ConversationGroup {
		return apperr.Unsupportedf("direct conversations have no roles")
	}
	if actorID != conv.OwnerID {
		return apperr.Permissionf("only the owner may change roles")
	}
	target, err := s.memberships.Get(ctx, conversationID, targetID)
	if err != nil {
		return storeErr("get membership", err)
	}
	if target.Role == newRole {
		return nil
	}

	var changed []*model.Membership
	switch newRole {
	case model.RoleOwner:
		// Transfer: the previous owner steps down to admin so the
		// conversation never has zero or two owners.
		if targetID == actorID {
			return nil
		}
		actor, err := s.memberships.Get(ctx, conversationID, actorID)
		if err != nil {
			return storeErr("get membership", err)
		}
		actor.Role = model.RoleAdmin
		target.Role = model.RoleOwner
		conv.OwnerID = targetID
		conv.AdminIDs = lo.Uniq(append(lo.Without(conv.AdminIDs, targetID), actorID))
		changed = []*model.Membership{actor, target}
	case model.RoleAdmin:
		target.Role = model.RoleAdmin
		conv.AdminIDs = lo.Uniq(append(conv.AdminIDs, targetID))
		changed = []*model.Membership{target}
	case model.RoleMember:
		if targetID == conv.OwnerID {
			return apperr.Conflictf("the owner cannot be demoted without transferring ownership first")
		}
		target.Role = model.RoleMember
		conv.AdminIDs = lo.Without(conv.AdminIDs, targetID)
		changed = []*model.Membership{target}
	default:
		return apperr.Validationf("role", "unknown role %q", newRole)
	}

	if err := s.conversations.UpdateRoles(ctx, conv, changed...); err != nil {
		return storeErr("change role", err)
	}

	s.publisher.Publish(ctx, broadcast.NewEvent(
		model.EventConversationUpdate, conversationID, actorID, displayName(ctx, s.directory, actorID),
		map[string]string{"user_id": targetID, "role": string(newRole)},
	))
	return nil
}

// SetMuted toggles the caller's mute flag.
func (s *MembershipService) SetMuted(ctx context.Context, conversationID, userID string, muted bool) error {
	if err := s.memberships.SetMuted(ctx, conversationID, userID, muted); err != nil {
		return storeErr("set muted", err)
	}
	return nil
}

// GetMembers returns the membership rows of a conversation.
func (s *MembershipService) GetMembers(ctx context.Context, conversationID string) ([]*model.Membership, error) {
	members, err := s.memberships.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, apperr.Unavailable("list members", err)
	}
	return members, nil
}

// IsMember reports whether the user belongs to the conversation.
func (s *MembershipService) IsMember(ctx context.Context, conversationID, userID string) (bool, error) {
	_, err := s.memberships.Get(ctx, conversationID, userID)
	if err == nil {
		return true, nil
	}
	if apperr.KindOf(storeErr("get membership", err)) == apperr.KindNotFound {
		return false, nil
	}
	return false, apperr.Unavailable("get membership", err)
}

// CountMembers returns the roster size.
func (s *MembershipService) CountMembers(ctx context.Context, conversationID string) (int, error) {
	count, err := s.memberships.Count(ctx, conversationID)
	if err != nil {
		return 0, apperr.Unavailable("count members", err)
	}
	return count, nil
}

// moderatedBy loads the conversation and verifies the actor can manage
// members on it.
func (s *MembershipService) moderatedBy(ctx context.Context, conversationID, actorID string) (*model.Conversation, *model.Membership, error) {
	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, nil, storeErr("get conversation", err)
	}
	if !conv.IsMember(actorID) {
		return nil, nil, apperr.NotFoundf("conversation not found")
	}
	actor, err := s.memberships.Get(ctx, conversationID, actorID)
	if err != nil {
		return nil, nil, storeErr("get membership", err)
	}
	if conv.Type == model.ConversationGroup && !actor.Role.CanModerate() {
		return nil, nil, apperr.Permissionf("only the owner or an admin may manage members")
	}
	return conv, actor, nil
}
