package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CallRecord is the archived form of a finished call session (call history).
type CallRecord struct {
	ID         primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	CallID     string             `json:"callId" bson:"callId"`
	CallerID   string             `json:"callerId" bson:"callerId"`
	CalleeID   string             `json:"calleeId" bson:"calleeId"`
	State      string             `json:"state" bson:"state"`
	EndReason  string             `json:"endReason,omitempty" bson:"endReason,omitempty"`
	EndedBy    string             `json:"endedBy,omitempty" bson:"endedBy,omitempty"`
	StartedAt  time.Time          `json:"startedAt" bson:"startedAt"`
	AnsweredAt *time.Time         `json:"answeredAt,omitempty" bson:"answeredAt,omitempty"`
	EndedAt    *time.Time         `json:"endedAt,omitempty" bson:"endedAt,omitempty"`
	Duration   int                `json:"duration" bson:"duration"`
}
