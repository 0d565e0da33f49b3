package model

import (
	"time"
)

// Role represents a member's role within a conversation.
type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

// CanModerate reports whether the role may manage members and archive.
func (r Role) CanModerate() bool {
	return r == RoleOwner || r == RoleAdmin
}

// Membership is the per-user state for one conversation. The
// (ConversationID, UserID) pair is unique; the row is created when the
// user joins and deleted when the user leaves. Messages outlive it.
type Membership struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Role           Role      `json:"role"`
	LastReadAt     time.Time `json:"last_read_at"`
	Muted          bool      `json:"muted"`
	JoinedAt       time.Time `json:"joined_at"`
}

// AddMembersRequest is the request to add members to a group conversation.
type AddMembersRequest struct {
	UserIDs []string `json:"user_ids" validate:"required,min=1,max=20,dive,required"`
}

// ChangeRoleRequest is the request to change a member's role.
type ChangeRoleRequest struct {
	Role Role `json:"role" validate:"required,oneof=OWNER ADMIN MEMBER"`
}

// MuteRequest toggles the caller's mute flag for a conversation.
type MuteRequest struct {
	Muted bool `json:"muted"`
}

// MarkReadRequest advances the caller's read marker.
type MarkReadRequest struct {
	MessageID string `json:"message_id" validate:"required,uuid"`
}

// TypingRequest is the broadcast-only typing indicator. Not persisted.
type TypingRequest struct {
	IsTyping bool `json:"is_typing"`
}
