// Package model defines data structures for the chat subsystem.
package model

import (
	"time"
)

// ConversationType distinguishes two-party threads from named groups.
type ConversationType string

const (
	ConversationDirect ConversationType = "DIRECT"
	ConversationGroup  ConversationType = "GROUP"
)

// Conversation represents a messaging thread.
type Conversation struct {
	ID            string           `json:"id"`
	Type          ConversationType `json:"type"`
	Title         string           `json:"title,omitempty"`
	OwnerID       string           `json:"owner_id,omitempty"`
	MemberIDs     []string         `json:"member_ids"`
	AdminIDs      []string         `json:"admin_ids,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	LastMessageAt time.Time        `json:"last_message_at"`
	Archived      bool             `json:"archived,omitempty"`
}

// IsMember reports whether userID is on the conversation roster.
func (c *Conversation) IsMember(userID string) bool {
	for _, id := range c.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// CreateConversationRequest is the request to create a new conversation.
type CreateConversationRequest struct {
	Type      ConversationType `json:"type" validate:"required,oneof=DIRECT GROUP"`
	MemberIDs []string         `json:"member_ids" validate:"required,min=1,max=50,dive,required"`
	Title     string           `json:"title,omitempty" validate:"max=256"`
}

// MemberSummary is a resolved roster entry returned with conversation views.
type MemberSummary struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Role        Role      `json:"role"`
	LastReadAt  time.Time `json:"last_read_at"`
	Muted       bool      `json:"muted,omitempty"`
	JoinedAt    time.Time `json:"joined_at"`
}

// ConversationSummary is the API view of a conversation for one caller.
type ConversationSummary struct {
	ID            string           `json:"id"`
	Type          ConversationType `json:"type"`
	Title         string           `json:"title,omitempty"`
	OwnerID       string           `json:"owner_id,omitempty"`
	Members       []MemberSummary  `json:"members"`
	CreatedAt     time.Time        `json:"created_at"`
	LastMessageAt time.Time        `json:"last_message_at"`
	UnreadCount   int              `json:"unread_count"`
}

// ConversationPage is the response for listing conversations.
type ConversationPage struct {
	Conversations []ConversationSummary `json:"conversations"`
	PageInfo
}

// PageInfo carries the standard pagination metadata for paged responses.
type PageInfo struct {
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"total_elements"`
	TotalPages    int   `json:"total_pages"`
	First         bool  `json:"first"`
	Last          bool  `json:"last"`
}

// NewPageInfo computes the metadata for a page/size window over total rows.
func NewPageInfo(page, size int, total int64) PageInfo {
	pages := int((total + int64(size) - 1) / int64(size))
	if pages == 0 {
		pages = 1
	}
	return PageInfo{
		Page:          page,
		Size:          size,
		TotalElements: total,
		TotalPages:    pages,
		First:         page == 0,
		Last:          page >= pages-1,
	}
}
