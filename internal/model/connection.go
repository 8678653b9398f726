package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Pairing statuses of a mentor/mentee connection request
const (
	ConnectionPending  = "pending"
	ConnectionAccepted = "accepted"
	ConnectionRejected = "rejected"
)

// Connection is the mentor/mentee pairing owned by the connections service.
// Only accepted pairings permit messaging.
type Connection struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Junior    primitive.ObjectID `json:"junior" bson:"junior"`
	Senior    primitive.ObjectID `json:"senior" bson:"senior"`
	Status    string             `json:"status" bson:"status"`
	CreatedAt time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt" bson:"updatedAt"`
}

func (c Connection) HasParticipant(userID string) bool {
	return c.Junior.Hex() == userID || c.Senior.Hex() == userID
}

// Other returns the participant that is not userID.
func (c Connection) Other(userID string) string {
	if c.Junior.Hex() == userID {
		return c.Senior.Hex()
	}
	return c.Junior.Hex()
}
