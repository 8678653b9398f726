package hub

import (
	"Bridgeup/internal/event"
	"Bridgeup/internal/signaling"
	"encoding/json"
)

// -----------------------------------------------------------------
// Notification Methods - Send Events to Clients
// -----------------------------------------------------------------

func (ch *CallHandler) notifyIncomingCall(s signaling.CallSession, fromName string, offer json.RawMessage) bool {
	return ch.hub.Notify(s.CalleeID, event.EventIncomingCall, event.IncomingCall{
		CallID:   s.CallID,
		From:     s.CallerID,
		FromName: fromName,
		Offer:    offer,
	})
}

func (ch *CallHandler) notifyCallAnswered(s signaling.CallSession, answer json.RawMessage) {
	ch.hub.Notify(s.CallerID, event.EventCallAnswered, event.CallAnswered{
		CallID: s.CallID,
		From:   s.CalleeID,
		Answer: answer,
	})
}

// notifyCallNotice tells userID that the call reached a terminal state
// because of actor.
func (ch *CallHandler) notifyCallNotice(userID, name string, s signaling.CallSession, actor string) {
	ch.hub.Notify(userID, name, event.CallNotice{
		CallID:   s.CallID,
		From:     actor,
		Reason:   s.EndReason,
		Duration: s.Duration(),
	})
}

// notifyCallTimeout runs from the ring timer once a call rang out.
func (ch *CallHandler) notifyCallTimeout(s signaling.CallSession) {
	notice := event.New(event.EventCallTimeout, event.CallNotice{
		CallID: s.CallID,
		Reason: event.CallEndReasonTimeout,
	})
	ch.hub.SendToUser(s.CallerID, notice)
	ch.hub.SendToUser(s.CalleeID, notice)
}

// notifyCallCrossed fails the first of two calls placed at each other. The
// caller learns its call failed; the callee's incoming ring is withdrawn.
func (ch *CallHandler) notifyCallCrossed(s signaling.CallSession) {
	ch.hub.Notify(s.CallerID, event.EventCallFailed, event.CallNotice{
		CallID: s.CallID,
		From:   s.CalleeID,
		Reason: event.CallEndReasonBusy,
	})
	ch.hub.Notify(s.CalleeID, event.EventCallFailed, event.CallNotice{
		CallID: s.CallID,
		From:   s.CallerID,
		Reason: event.CallEndReasonBusy,
	})
}

func (ch *CallHandler) sendCallError(c *Client, callID, code, message string) {
	c.SafeSend(event.New(event.EventCallError, event.CallError{
		CallID:  callID,
		Code:    code,
		Message: message,
	}), sendTimeout)
}
