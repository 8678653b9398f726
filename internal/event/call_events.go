package event

import "encoding/json"

// Call Event Types - Client to Server
const (
	// EventCallUser - Caller starts a call and carries the SDP offer
	EventCallUser = "call-user"

	// EventAnswerCall - Callee accepts and carries the SDP answer
	EventAnswerCall = "answer-call"

	// EventAcceptCall - Older clients' name for answer-call
	EventAcceptCall = "accept-call"

	// EventRejectCall - Callee declines a ringing call
	EventRejectCall = "reject-call"

	// EventCancelCall - Caller hangs up before the callee answers
	EventCancelCall = "cancel-call"

	// EventEndCall - Either party ends the call
	EventEndCall = "end-call"

	// EventIceCandidate - Trickle ICE, relayed under the same name
	EventIceCandidate = "ice-candidate"

	// EventVideoChatMessage - Text chat inside a live call, relayed under the same name
	EventVideoChatMessage = "video-chat-message"
)

// Call Event Types - Server to Client
const (
	EventIncomingCall  = "incoming-call"
	EventCallAnswered  = "call-answered"
	EventCallRejected  = "call-rejected"
	EventCallCancelled = "call-cancelled"
	EventCallEnded     = "call-ended"

	// EventCallFailed - Sent to the caller when the attempt could not ring (busy)
	EventCallFailed = "call-failed"

	// EventCallTimeout - Sent to both parties when a call rang unanswered
	EventCallTimeout = "call-timeout"

	// EventCallError - Malformed or invalid call request
	EventCallError = "call-error"
)

// Call End Reasons
const (
	CallEndReasonNormal       = "normal"
	CallEndReasonBusy         = "busy"
	CallEndReasonTimeout      = "timeout"
	CallEndReasonRejected     = "rejected"
	CallEndReasonCancelled    = "cancelled"
	CallEndReasonDisconnected = "disconnected"
)

// -----------------------------------------------------------------
// Client to Server payloads
// -----------------------------------------------------------------

type CallUserPayload struct {
	To       string          `json:"to"`
	From     string          `json:"from"`
	FromName string          `json:"fromName"`
	Offer    json.RawMessage `json:"offer"`
	CallID   string          `json:"callId"`
}

type AnswerCallPayload struct {
	To     string          `json:"to"`
	Answer json.RawMessage `json:"answer"`
	CallID string          `json:"callId"`
}

// CallControlPayload is shared by reject-call, cancel-call and end-call.
type CallControlPayload struct {
	To     string `json:"to"`
	CallID string `json:"callId"`
}

type IceCandidatePayload struct {
	To        string          `json:"to"`
	Candidate json.RawMessage `json:"candidate"`
	CallID    string          `json:"callId"`
}

type VideoChatPayload struct {
	To      string          `json:"to"`
	CallID  string          `json:"callId"`
	Message json.RawMessage `json:"message"`
}

// -----------------------------------------------------------------
// Server to Client payloads
// -----------------------------------------------------------------

type IncomingCall struct {
	CallID   string          `json:"callId"`
	From     string          `json:"from"`
	FromName string          `json:"fromName,omitempty"`
	Offer    json.RawMessage `json:"offer"`
}

type CallAnswered struct {
	CallID string          `json:"callId"`
	From   string          `json:"from"`
	Answer json.RawMessage `json:"answer"`
}

// CallNotice is sent for rejected, cancelled, ended, failed and timeout.
type CallNotice struct {
	CallID   string `json:"callId"`
	From     string `json:"from,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Duration int    `json:"duration,omitempty"`
}

type IceCandidate struct {
	CallID    string          `json:"callId"`
	From      string          `json:"from"`
	Candidate json.RawMessage `json:"candidate"`
}

type VideoChatMessage struct {
	CallID  string          `json:"callId"`
	From    string          `json:"from"`
	Message json.RawMessage `json:"message"`
}

type CallError struct {
	CallID  string `json:"callId,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
