package signaling

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

type role int

const (
	roleCaller role = iota + 1
	roleCallee
	roleEither
	roleSystem
)

type rule struct {
	name   string
	from   []State
	to     State
	actor  role
	reason string
}

var (
	ruleAnswer = rule{name: "answer", from: []State{StateRinging}, to: StateActive, actor: roleCallee}
	ruleReject = rule{name: "reject", from: []State{StateRinging}, to: StateRejected, actor: roleCallee, reason: "rejected"}
	ruleCancel = rule{name: "cancel", from: []State{StateRinging}, to: StateCancelled, actor: roleCaller, reason: "cancelled"}
	ruleEnd    = rule{name: "end", from: []State{StateRinging, StateAnswered, StateActive}, to: StateEnded, actor: roleEither, reason: "normal"}
	ruleDrop   = rule{name: "disconnect", from: []State{StateRinging, StateAnswered, StateActive}, to: StateEnded, actor: roleEither, reason: "disconnected"}
	ruleExpire = rule{name: "expire", from: []State{StateRinging}, to: StateMissed, actor: roleSystem, reason: "timeout"}
	ruleCross  = rule{name: "cross", from: []State{StateRinging}, to: StateFailed, actor: roleSystem, reason: "busy"}
)

// Hooks are invoked outside of any registry lock.
type Hooks struct {
	// OnTerminal receives every session that reached a terminal state,
	// including attempts that failed immediately.
	OnTerminal func(CallSession)
	// OnExpire receives sessions that rang past the ring timeout.
	OnExpire func(CallSession)
	// OnCrossed receives a ringing call that failed because its callee
	// called the caller back before answering.
	OnCrossed func(CallSession)
}

type callEntry struct {
	mu      sync.Mutex
	session CallSession
	timer   *time.Timer
}

// Registry is the table of live calls. Transitions of one call are serialized
// by that call's mutex; the table lock only guards membership and the per-user
// busy index, which is what enforces one live call per user.
type Registry struct {
	mu          sync.RWMutex
	calls       map[string]*callEntry
	byUser      map[string]string
	ringTimeout time.Duration
	hooks       Hooks
	logger      *zap.Logger
	now         func() time.Time
}

// NewRegistry creates an empty call table. A ringTimeout of zero disables the
// server-side ring timeout.
func NewRegistry(ringTimeout time.Duration, hooks Hooks, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		calls:       make(map[string]*callEntry),
		byUser:      make(map[string]string),
		ringTimeout: ringTimeout,
		hooks:       hooks,
		logger:      logger,
		now:         time.Now,
	}
}

// Start creates a ringing session. When either side already has a live call
// the attempt is returned in StateFailed together with ErrBusy, and the
// existing call is left untouched.
func (r *Registry) Start(callID, callerID, calleeID string) (CallSession, error) {
	if callerID == "" || calleeID == "" || callerID == calleeID {
		return CallSession{}, ErrInvalidCall
	}
	now := r.now()
	if callID == "" {
		callID = NewCallID(callerID, calleeID, now)
	}

	r.mu.Lock()
	if _, exists := r.calls[callID]; exists {
		r.mu.Unlock()
		return CallSession{}, ErrDuplicateCall
	}

	callerCall, callerBusy := r.byUser[callerID]
	_, calleeBusy := r.byUser[calleeID]
	if callerBusy || calleeBusy {
		crossed := ""
		if e := r.calls[callerCall]; callerBusy && e != nil && isCrossing(e, callerID, calleeID) {
			crossed = callerCall
		}
		r.mu.Unlock()
		failed := CallSession{
			CallID:    callID,
			CallerID:  callerID,
			CalleeID:  calleeID,
			State:     StateFailed,
			EndReason: "busy",
			StartedAt: now,
			EndedAt:   &now,
		}
		r.logger.Info("call failed: participant busy",
			zap.String("call_id", callID),
			zap.String("caller_id", callerID),
			zap.String("callee_id", calleeID),
			zap.Bool("caller_busy", callerBusy),
		)
		r.fireTerminal(failed)
		if crossed != "" {
			r.failCrossed(crossed)
		}
		return failed, ErrBusy
	}

	e := &callEntry{session: CallSession{
		CallID:    callID,
		CallerID:  callerID,
		CalleeID:  calleeID,
		State:     StateRinging,
		StartedAt: now,
	}}
	r.calls[callID] = e
	r.byUser[callerID] = callID
	r.byUser[calleeID] = callID

	e.mu.Lock()
	if r.ringTimeout > 0 {
		e.timer = time.AfterFunc(r.ringTimeout, func() { r.expire(callID) })
	}
	snap := e.session
	e.mu.Unlock()
	r.mu.Unlock()

	r.logger.Info("call ringing",
		zap.String("call_id", callID),
		zap.String("caller_id", callerID),
		zap.String("callee_id", calleeID),
	)
	return snap, nil
}

func (r *Registry) Answer(callID, userID string) (CallSession, error) {
	return r.apply(callID, userID, ruleAnswer)
}

func (r *Registry) Reject(callID, userID string) (CallSession, error) {
	return r.apply(callID, userID, ruleReject)
}

func (r *Registry) Cancel(callID, userID string) (CallSession, error) {
	return r.apply(callID, userID, ruleCancel)
}

func (r *Registry) End(callID, userID string) (CallSession, error) {
	return r.apply(callID, userID, ruleEnd)
}

// EndForUser terminates the live call of userID, if any, because the user lost
// every transport connection.
func (r *Registry) EndForUser(userID string) (CallSession, bool) {
	r.mu.RLock()
	callID, ok := r.byUser[userID]
	r.mu.RUnlock()
	if !ok {
		return CallSession{}, false
	}

	s, err := r.apply(callID, userID, ruleDrop)
	if err != nil {
		// lost a race with another terminal transition
		return CallSession{}, false
	}
	return s, true
}

// Live returns the session when it is still live and userID takes part in it.
// Relays use it so stale signaling for finished calls is dropped.
func (r *Registry) Live(callID, userID string) (CallSession, error) {
	e := r.lookup(callID)
	if e == nil {
		return CallSession{}, ErrCallNotFound
	}
	e.mu.Lock()
	s := e.session
	e.mu.Unlock()

	if !s.State.Live() {
		return CallSession{}, ErrCallNotFound
	}
	if !s.IsParticipant(userID) {
		return CallSession{}, ErrNotParticipant
	}
	return s, nil
}

func (r *Registry) Get(callID string) (CallSession, bool) {
	e := r.lookup(callID)
	if e == nil {
		return CallSession{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session, true
}

// CallFor returns the live call userID takes part in.
func (r *Registry) CallFor(userID string) (CallSession, bool) {
	r.mu.RLock()
	callID, ok := r.byUser[userID]
	r.mu.RUnlock()
	if !ok {
		return CallSession{}, false
	}
	return r.Get(callID)
}

func (r *Registry) IsBusy(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUser[userID]
	return ok
}

// Active returns a snapshot of all live calls ordered by start time.
func (r *Registry) Active() []CallSession {
	r.mu.RLock()
	out := make([]CallSession, 0, len(r.calls))
	for _, e := range r.calls {
		e.mu.Lock()
		out = append(out, e.session)
		e.mu.Unlock()
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Stop cancels every pending ring timer.
func (r *Registry) Stop() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.calls {
		e.mu.Lock()
		if e.timer != nil {
			e.timer.Stop()
		}
		e.mu.Unlock()
	}
}

func (r *Registry) expire(callID string) {
	s, err := r.apply(callID, "", ruleExpire)
	if err != nil {
		return
	}
	r.logger.Info("call rang out", zap.String("call_id", callID))
	if r.hooks.OnExpire != nil {
		r.hooks.OnExpire(s)
	}
}

// failCrossed ends the first of two calls placed at each other. Neither side
// wins; both attempts resolve to failed.
func (r *Registry) failCrossed(callID string) {
	s, err := r.apply(callID, "", ruleCross)
	if err != nil {
		// answered or ended in the meantime
		return
	}
	r.logger.Info("crossing calls, both failed", zap.String("call_id", callID))
	if r.hooks.OnCrossed != nil {
		r.hooks.OnCrossed(s)
	}
}

// isCrossing reports whether e is a call still ringing from calleeID to
// callerID, i.e. the new attempt is the reverse of it.
func isCrossing(e *callEntry, callerID, calleeID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.State == StateRinging && e.session.CallerID == calleeID && e.session.CalleeID == callerID
}

func (r *Registry) lookup(callID string) *callEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.calls[callID]
}

// apply runs one transition under the call's lock. The first event to reach a
// call wins; a later conflicting event sees a terminal or moved state and gets
// an error without side effects.
func (r *Registry) apply(callID, userID string, t rule) (CallSession, error) {
	e := r.lookup(callID)
	if e == nil {
		return CallSession{}, ErrCallNotFound
	}

	e.mu.Lock()
	s := &e.session
	if !s.State.Live() {
		e.mu.Unlock()
		return CallSession{}, ErrCallNotFound
	}
	if err := checkActor(*s, userID, t.actor); err != nil {
		e.mu.Unlock()
		return CallSession{}, err
	}
	if !stateIn(s.State, t.from) {
		current := s.State
		e.mu.Unlock()
		r.logger.Debug("ignored call transition",
			zap.String("call_id", callID),
			zap.String("transition", t.name),
			zap.String("state", string(current)),
		)
		return CallSession{}, ErrInvalidTransition
	}

	now := r.now()
	if t.to == StateActive {
		// answered collapses into active: media setup happens peer to peer
		s.AnsweredAt = &now
		s.State = StateActive
	} else {
		s.State = t.to
		s.EndReason = t.reason
		s.EndedBy = userID
		s.EndedAt = &now
	}
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	snap := *s
	e.mu.Unlock()

	if !snap.State.Live() {
		r.release(snap)
		r.fireTerminal(snap)
	}
	return snap, nil
}

func (r *Registry) release(s CallSession) {
	r.mu.Lock()
	delete(r.calls, s.CallID)
	if r.byUser[s.CallerID] == s.CallID {
		delete(r.byUser, s.CallerID)
	}
	if r.byUser[s.CalleeID] == s.CallID {
		delete(r.byUser, s.CalleeID)
	}
	r.mu.Unlock()

	r.logger.Info("call finished",
		zap.String("call_id", s.CallID),
		zap.String("state", string(s.State)),
		zap.String("reason", s.EndReason),
	)
}

func (r *Registry) fireTerminal(s CallSession) {
	if r.hooks.OnTerminal != nil {
		r.hooks.OnTerminal(s)
	}
}

func checkActor(s CallSession, userID string, want role) error {
	switch want {
	case roleSystem:
		return nil
	case roleCaller:
		if userID != s.CallerID {
			return ErrNotParticipant
		}
	case roleCallee:
		if userID != s.CalleeID {
			return ErrNotParticipant
		}
	case roleEither:
		if !s.IsParticipant(userID) {
			return ErrNotParticipant
		}
	}
	return nil
}

func stateIn(s State, states []State) bool {
	for _, candidate := range states {
		if s == candidate {
			return true
		}
	}
	return false
}
