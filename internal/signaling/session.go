package signaling

import (
	"errors"
	"fmt"
	"time"
)

type State string

const (
	StateRinging   State = "ringing"
	StateAnswered  State = "answered"
	StateActive    State = "active"
	StateEnded     State = "ended"
	StateRejected  State = "rejected"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
	StateMissed    State = "missed"
)

// Live reports whether the state still holds both participants busy.
func (s State) Live() bool {
	switch s {
	case StateRinging, StateAnswered, StateActive:
		return true
	default:
		return false
	}
}

var (
	ErrBusy              = errors.New("participant already in a call")
	ErrCallNotFound      = errors.New("call not found")
	ErrDuplicateCall     = errors.New("call id already in use")
	ErrInvalidTransition = errors.New("invalid call state transition")
	ErrNotParticipant    = errors.New("user is not a participant of this call")
	ErrInvalidCall       = errors.New("invalid call: caller and callee must be distinct and non-empty")
)

// CallSession is a snapshot of one call attempt between exactly two users.
type CallSession struct {
	CallID     string     `json:"callId"`
	CallerID   string     `json:"callerId"`
	CalleeID   string     `json:"calleeId"`
	State      State      `json:"state"`
	EndReason  string     `json:"endReason,omitempty"`
	EndedBy    string     `json:"endedBy,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	AnsweredAt *time.Time `json:"answeredAt,omitempty"`
	EndedAt    *time.Time `json:"endedAt,omitempty"`
}

func (s CallSession) IsParticipant(userID string) bool {
	return userID != "" && (s.CallerID == userID || s.CalleeID == userID)
}

// Peer returns the other participant.
func (s CallSession) Peer(userID string) string {
	if userID == s.CallerID {
		return s.CalleeID
	}
	return s.CallerID
}

// Duration is the connected time in whole seconds, zero if never answered.
func (s CallSession) Duration() int {
	if s.AnsweredAt == nil {
		return 0
	}
	end := time.Now()
	if s.EndedAt != nil {
		end = *s.EndedAt
	}
	return int(end.Sub(*s.AnsweredAt).Seconds())
}

// NewCallID builds an ID for callers that did not supply one.
func NewCallID(callerID, calleeID string, at time.Time) string {
	return fmt.Sprintf("call_%d_%s_%s", at.UnixMilli(), callerID, calleeID)
}
