package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message is a chat message between the two sides of an accepted pairing.
// IsRead flips false -> true once and never back.
type Message struct {
	ID           primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	SenderID     string             `json:"senderId" bson:"sender"`
	ReceiverID   string             `json:"receiverId" bson:"receiver"`
	ConnectionID string             `json:"connectionId" bson:"connectionId"`
	Content      string             `json:"content" bson:"content"`
	CreatedAt    time.Time          `json:"createdAt" bson:"createdAt"`
	IsRead       bool               `json:"isRead" bson:"isRead"`
	ReadAt       *time.Time         `json:"readAt,omitempty" bson:"readAt,omitempty"`
}

// ConversationSummary renders one row of a connection list.
type ConversationSummary struct {
	ConnectionID string   `json:"connectionId"`
	LastMessage  *Message `json:"lastMessage"`
	UnreadCount  int64    `json:"unreadCount"`
}
