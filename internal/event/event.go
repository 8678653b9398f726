package event

import (
	"encoding/json"
	"time"
)

// Client to server
const (
	EventJoin            = "join"
	EventUserOnline      = "user-online"
	EventUserOffline     = "user-offline"
	EventTyping          = "typing"
	EventMarkAsRead      = "markAsRead"
	EventNewNotification = "newNotification"
)

// Server to client
const (
	EventOnlineUsers      = "onlineUsers"
	EventUserStatusChange = "userStatusChange"
	EventNewMessage       = "newMessage"
	EventMessageRead      = "messageRead"
	EventUserTyping       = "userTyping"
	EventNotification     = "notification"
	EventError            = "error"
)

// Events the notification and question services may push through the
// deliver endpoint. Core events (calls, messages, presence) are never relayed
// from outside the hub.
const (
	EventNewQuestion        = "newQuestion"
	EventNewAnswer          = "newAnswer"
	EventConnectionRequest  = "connectionRequest"
	EventConnectionAccepted = "connectionAccepted"
)

// IsNotificationKind reports whether name may be delivered on behalf of an
// external service.
func IsNotificationKind(name string) bool {
	switch name {
	case EventNotification, EventNewQuestion, EventNewAnswer,
		EventConnectionRequest, EventConnectionAccepted:
		return true
	}
	return false
}

// TypingTTL is how long a receiver keeps showing a typing indicator after the
// last userTyping event with isTyping=true. Clients infer "stopped typing" once it
// elapses; the server does not track it.
const TypingTTL = 3 * time.Second

type WsEvent struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// New marshals payload into an event envelope. Payload types in this package
// always marshal, so a marshal error yields an envelope without payload.
func New(name string, payload any) WsEvent {
	ev := WsEvent{Event: name}
	if payload == nil {
		return ev
	}
	raw, err := json.Marshal(payload)
	if err == nil {
		ev.Payload = raw
	}
	return ev
}

// JoinPayload identifies the user binding a socket. Clients may also send the
// user ID as a bare JSON string.
type JoinPayload struct {
	UserID string `json:"userId"`
}

// ParseUserID accepts either {"userId": "..."} or "...".
func ParseUserID(raw json.RawMessage) (string, error) {
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id, nil
	}
	var p JoinPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", err
	}
	return p.UserID, nil
}

type UserStatusChange struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

type TypingPayload struct {
	ReceiverID string `json:"receiverId"`
	IsTyping   bool   `json:"isTyping"`
	SenderName string `json:"senderName"`
}

type UserTyping struct {
	SenderID   string `json:"senderId"`
	IsTyping   bool   `json:"isTyping"`
	SenderName string `json:"senderName"`
}

type MarkAsReadPayload struct {
	ConnectionID string   `json:"connectionId"`
	MessageIDs   []string `json:"messageIds"`
}

// MessageRead is the read-receipt pushed to the sender.
type MessageRead struct {
	ConnectionID string    `json:"connectionId"`
	MessageIDs   []string  `json:"messageIds"`
	ReadBy       string    `json:"readBy"`
	ReadAt       time.Time `json:"readAt"`
}

type NotificationPayload struct {
	RecipientID  string          `json:"recipientId"`
	Notification json.RawMessage `json:"notification"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
