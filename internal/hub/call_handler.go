package hub

import (
	"Bridgeup/internal/event"
	"Bridgeup/internal/signaling"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CallHandler manages call signaling between clients. Call state lives in the
// signaling registry; this type translates socket events into transitions and
// transitions into notifications.
type CallHandler struct {
	hub      *Hub
	registry *signaling.Registry
	archive  CallArchive
	logger   *zap.Logger

	// in-flight archive writes
	wg      sync.WaitGroup
	stopMu  sync.Mutex
	stopped bool
}

// NewCallHandler creates a new call handler instance.
// Note: NewHub calls SetHub to complete the initialization.
func NewCallHandler(ringTimeout time.Duration, archive CallArchive, logger *zap.Logger) *CallHandler {
	ch := &CallHandler{
		archive: archive,
		logger:  logger,
	}
	ch.registry = signaling.NewRegistry(ringTimeout, signaling.Hooks{
		OnTerminal: ch.archiveCall,
		OnExpire:   ch.notifyCallTimeout,
		OnCrossed:  ch.notifyCallCrossed,
	}, logger)
	return ch
}

// SetHub sets the hub reference. Must be called after Hub is created.
func (ch *CallHandler) SetHub(hub *Hub) {
	ch.hub = hub
}

func (ch *CallHandler) Registry() *signaling.Registry {
	return ch.registry
}

func (ch *CallHandler) Stop() {
	ch.registry.Stop()
	ch.stopMu.Lock()
	ch.stopped = true
	ch.stopMu.Unlock()
	ch.wg.Wait()
}

// spawn runs fn on a goroutine Stop waits for. Returns false after Stop.
func (ch *CallHandler) spawn(fn func()) bool {
	ch.stopMu.Lock()
	defer ch.stopMu.Unlock()
	if ch.stopped {
		return false
	}
	ch.wg.Add(1)
	go func() {
		defer ch.wg.Done()
		fn()
	}()
	return true
}

// Handles reports whether name is a call signaling event.
func (ch *CallHandler) Handles(name string) bool {
	switch name {
	case event.EventCallUser, event.EventAnswerCall, event.EventAcceptCall,
		event.EventRejectCall, event.EventCancelCall, event.EventEndCall,
		event.EventIceCandidate, event.EventVideoChatMessage:
		return true
	}
	return false
}

// HandleCallEvent processes call-related WebSocket events
func (ch *CallHandler) HandleCallEvent(ev event.WsEvent, c *Client) {
	userID := c.UserID()
	if userID == "" {
		ch.sendCallError(c, "", "not_joined", "join before placing or answering calls")
		return
	}

	switch ev.Event {
	case event.EventCallUser:
		ch.handleCallUser(ev, c, userID)
	case event.EventAnswerCall, event.EventAcceptCall:
		ch.handleAnswer(ev, c, userID)
	case event.EventRejectCall, event.EventCancelCall, event.EventEndCall:
		ch.handleControl(ev, c, userID)
	case event.EventIceCandidate:
		ch.handleIceCandidate(ev, c, userID)
	case event.EventVideoChatMessage:
		ch.handleVideoChat(ev, c, userID)
	}
}

// handleCallUser creates the session and rings the callee. The caller is the
// socket's bound user; a "from" in the payload is informational only.
func (ch *CallHandler) handleCallUser(ev event.WsEvent, c *Client, callerID string) {
	var payload event.CallUserPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil || payload.To == "" {
		ch.sendCallError(c, "", "invalid_payload", "call-user requires to and offer")
		return
	}
	if payload.From != "" && payload.From != callerID {
		ch.logger.Warn("call-user from does not match joined user",
			zap.String("from", payload.From),
			zap.String("user_id", callerID),
		)
	}

	s, err := ch.registry.Start(payload.CallID, callerID, payload.To)
	switch {
	case errors.Is(err, signaling.ErrBusy):
		c.SafeSend(event.New(event.EventCallFailed, event.CallNotice{
			CallID: s.CallID,
			From:   payload.To,
			Reason: event.CallEndReasonBusy,
		}), sendTimeout)
		return
	case errors.Is(err, signaling.ErrDuplicateCall):
		ch.sendCallError(c, payload.CallID, "duplicate_call", "callId already in use")
		return
	case err != nil:
		ch.sendCallError(c, payload.CallID, "invalid_call", err.Error())
		return
	}

	if !ch.notifyIncomingCall(s, payload.FromName, payload.Offer) {
		// the ring timeout cleans up if they never come online
		ch.logger.Debug("callee unreachable, call keeps ringing",
			zap.String("call_id", s.CallID),
			zap.String("callee_id", s.CalleeID),
		)
	}
}

func (ch *CallHandler) handleAnswer(ev event.WsEvent, c *Client, userID string) {
	var payload event.AnswerCallPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		ch.sendCallError(c, "", "invalid_payload", "Failed to parse answer-call request")
		return
	}

	if !ch.requireCallID(c, ev.Event, payload.CallID) {
		return
	}
	s, err := ch.registry.Answer(payload.CallID, userID)
	if err != nil {
		ch.dropStale(ev.Event, payload.CallID, userID, err)
		return
	}
	ch.notifyCallAnswered(s, payload.Answer)
}

func (ch *CallHandler) handleControl(ev event.WsEvent, c *Client, userID string) {
	var payload event.CallControlPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		ch.sendCallError(c, "", "invalid_payload", "Failed to parse "+ev.Event+" request")
		return
	}
	if !ch.requireCallID(c, ev.Event, payload.CallID) {
		return
	}
	callID := payload.CallID

	var (
		s   signaling.CallSession
		err error
	)
	switch ev.Event {
	case event.EventRejectCall:
		if s, err = ch.registry.Reject(callID, userID); err == nil {
			ch.notifyCallNotice(s.CallerID, event.EventCallRejected, s, userID)
		}
	case event.EventCancelCall:
		if s, err = ch.registry.Cancel(callID, userID); err == nil {
			ch.notifyCallNotice(s.CalleeID, event.EventCallCancelled, s, userID)
		}
	case event.EventEndCall:
		_, err = ch.EndCall(callID, userID)
	}
	if err != nil {
		ch.dropStale(ev.Event, callID, userID, err)
	}
}

// EndCall ends a ringing or live call on behalf of userID and tells the peer.
func (ch *CallHandler) EndCall(callID, userID string) (signaling.CallSession, error) {
	s, err := ch.registry.End(callID, userID)
	if err != nil {
		return s, err
	}
	ch.notifyCallNotice(s.Peer(userID), event.EventCallEnded, s, userID)
	return s, nil
}

// handleIceCandidate relays trickle ICE while the call is ringing or live.
// Candidates for unknown or finished calls are dropped.
func (ch *CallHandler) handleIceCandidate(ev event.WsEvent, c *Client, userID string) {
	var payload event.IceCandidatePayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		ch.sendCallError(c, "", "invalid_payload", "Failed to parse ice-candidate request")
		return
	}

	if !ch.requireCallID(c, ev.Event, payload.CallID) {
		return
	}
	s, err := ch.registry.Live(payload.CallID, userID)
	if err != nil {
		ch.dropStale(ev.Event, payload.CallID, userID, err)
		return
	}
	ch.hub.Notify(s.Peer(userID), event.EventIceCandidate, event.IceCandidate{
		CallID:    s.CallID,
		From:      userID,
		Candidate: payload.Candidate,
	})
}

func (ch *CallHandler) handleVideoChat(ev event.WsEvent, c *Client, userID string) {
	var payload event.VideoChatPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		ch.sendCallError(c, "", "invalid_payload", "Failed to parse video-chat-message request")
		return
	}

	if !ch.requireCallID(c, ev.Event, payload.CallID) {
		return
	}
	s, err := ch.registry.Live(payload.CallID, userID)
	if err != nil {
		ch.dropStale(ev.Event, payload.CallID, userID, err)
		return
	}
	ch.hub.Notify(s.Peer(userID), event.EventVideoChatMessage, event.VideoChatMessage{
		CallID:  s.CallID,
		From:    userID,
		Message: payload.Message,
	})
}

// userDisconnected ends whatever call userID was in once they have no
// connection left, so the peer never keeps a dead call open.
func (ch *CallHandler) userDisconnected(userID string) {
	s, ok := ch.registry.EndForUser(userID)
	if !ok {
		return
	}
	ch.logger.Info("call ended by disconnect",
		zap.String("call_id", s.CallID),
		zap.String("user_id", userID),
	)
	ch.notifyCallNotice(s.Peer(userID), event.EventCallEnded, s, userID)
}

// requireCallID rejects signaling that does not name its call. Without the id a
// late event from a finished call could land on the user's next one.
func (ch *CallHandler) requireCallID(c *Client, name, callID string) bool {
	if callID != "" {
		return true
	}
	ch.sendCallError(c, "", "invalid_payload", name+" requires callId")
	return false
}

// dropStale logs signaling that no longer matches a session. It is not an
// error for the sender: the other side may simply have won a race.
func (ch *CallHandler) dropStale(name, callID, userID string, err error) {
	ch.logger.Debug("dropped call event",
		zap.String("event", name),
		zap.String("call_id", callID),
		zap.String("user_id", userID),
		zap.Error(err),
	)
}
