package model

import (
	"encoding/json"
	"time"
)

// EventType represents the type of a real-time conversation event.
type EventType string

const (
	EventMessageSent        EventType = "MESSAGE_SENT"
	EventMessageEdited      EventType = "MESSAGE_EDITED"
	EventMessageDeleted     EventType = "MESSAGE_DELETED"
	EventMessageRead        EventType = "MESSAGE_READ"
	EventUserTyping         EventType = "USER_TYPING"
	EventUserStoppedTyping  EventType = "USER_STOPPED_TYPING"
	EventUserJoined         EventType = "USER_JOINED_CONVERSATION"
	EventUserLeft           EventType = "USER_LEFT_CONVERSATION"
	EventConversationNew    EventType = "CONVERSATION_CREATED"
	EventConversationUpdate EventType = "CONVERSATION_UPDATED"
	EventUserOnline         EventType = "USER_ONLINE"
	EventUserOffline        EventType = "USER_OFFLINE"
)

// Event is the envelope delivered to every connected member of a
// conversation. Delivery is best effort, at most once per session;
// disconnected members reconcile via the list endpoints on reconnect.
type Event struct {
	ID             string          `json:"id"`
	Type           EventType       `json:"type"`
	ConversationID string          `json:"conversation_id"`
	ActorID        string          `json:"actor_id"`
	ActorName      string          `json:"actor_name,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

// ReadPayload is the payload of a MESSAGE_READ event.
type ReadPayload struct {
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
}
