package model

import (
	"time"
)

// MessageKind represents the kind of message payload.
type MessageKind string

const (
	MessageText   MessageKind = "TEXT"
	MessageImage  MessageKind = "IMAGE"
	MessageFile   MessageKind = "FILE"
	MessageSystem MessageKind = "SYSTEM"
)

// MaxContentLength bounds TEXT message content.
const MaxContentLength = 2000

// Attachment is a media reference resolved by the media service before send.
type Attachment struct {
	MediaRef    string `json:"media_ref" validate:"required"`
	Filename    string `json:"filename" validate:"required"`
	ContentType string `json:"content_type" validate:"required"`
	Size        int64  `json:"size" validate:"gt=0"`
	URL         string `json:"url" validate:"required,url"`
	Caption     string `json:"caption,omitempty" validate:"max=512"`
}

// ReadReceipt records one user having read a message. The list on a
// message is a materialized view of the membership read markers.
type ReadReceipt struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	ReadAt      time.Time `json:"read_at"`
}

// Message is one entry in a conversation's append-only ledger.
//
// CreatedAt is assigned by the server at acceptance and never changes;
// together with the time-ordered ID it defines the total order within a
// conversation. Deletion is a tombstone: DeletedAt is set, the row keeps
// its position, and content is redacted on every read path.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`

	SenderID   string      `json:"sender_id"`
	SenderName string      `json:"sender_name"`
	Kind       MessageKind `json:"kind"`
	Content    string      `json:"content,omitempty"`

	Attachments []Attachment `json:"attachments,omitempty"`
	ReplyToID   string       `json:"reply_to_id,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	EditedAt  *time.Time `json:"edited_at,omitempty"`
	Edited    bool       `json:"edited,omitempty"`
	DeletedAt *time.Time `json:"-"`

	ReadBy []ReadReceipt `json:"read_by,omitempty"`
}

// Deleted reports whether the message has been tombstoned.
func (m *Message) Deleted() bool {
	return m.DeletedAt != nil
}

// Redact strips reader-visible content from a tombstoned message.
func (m *Message) Redact() {
	m.Content = ""
	m.Attachments = nil
	m.ReplyToID = ""
	m.ReadBy = nil
}

// ReplyPreview is the inline view of the message being replied to.
type ReplyPreview struct {
	MessageID  string `json:"message_id"`
	SenderName string `json:"sender_name"`
	Excerpt    string `json:"excerpt"`
}

// MessageView is the API representation of a message.
type MessageView struct {
	Message
	ReplyTo   *ReplyPreview `json:"reply_to,omitempty"`
	ReadCount int           `json:"read_count"`
}

// SendMessageRequest is the request to append a message to a conversation.
type SendMessageRequest struct {
	Kind             MessageKind  `json:"kind" validate:"required,oneof=TEXT IMAGE FILE"`
	Content          string       `json:"content" validate:"max=2000"`
	Attachments      []Attachment `json:"attachments,omitempty" validate:"max=10,dive"`
	ReplyToMessageID string       `json:"reply_to_message_id,omitempty" validate:"omitempty,uuid"`
}

// EditMessageRequest is the request to edit a previously sent message.
type EditMessageRequest struct {
	Content     string       `json:"content" validate:"required,max=2000"`
	Attachments []Attachment `json:"attachments,omitempty" validate:"max=10,dive"`
}

// MessagePage is the response for listing messages.
type MessagePage struct {
	Messages []MessageView `json:"messages"`
	PageInfo
	// NextBefore and NextBeforeID form the keyset cursor for fetching
	// the next older page; the id disambiguates equal timestamps.
	NextBefore   *time.Time `json:"next_before,omitempty"`
	NextBeforeID string     `json:"next_before_id,omitempty"`
}
