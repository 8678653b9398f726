package hub

import (
	"Bridgeup/internal/model"
	"Bridgeup/internal/signaling"
	"context"
	"time"

	"go.uber.org/zap"
)

const archiveTimeout = 5 * time.Second

// CallArchive stores finished calls as call history.
type CallArchive interface {
	InsertCall(ctx context.Context, rec *model.CallRecord) error
}

// -----------------------------------------------------------------
// Call State - archiving and per-user status
// -----------------------------------------------------------------

// archiveCall runs for every terminal session. The write happens off the
// signaling path; a failure only costs the history entry.
func (ch *CallHandler) archiveCall(s signaling.CallSession) {
	if ch.archive == nil {
		return
	}
	rec := recordFromSession(s)

	started := ch.spawn(func() {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()

		if err := ch.archive.InsertCall(ctx, rec); err != nil {
			ch.logger.Error("failed to archive call",
				zap.String("call_id", rec.CallID),
				zap.String("state", rec.State),
				zap.Error(err),
			)
		}
	})
	if !started {
		ch.logger.Warn("call not archived: shutting down", zap.String("call_id", rec.CallID))
	}
}

func recordFromSession(s signaling.CallSession) *model.CallRecord {
	return &model.CallRecord{
		CallID:     s.CallID,
		CallerID:   s.CallerID,
		CalleeID:   s.CalleeID,
		State:      string(s.State),
		EndReason:  s.EndReason,
		EndedBy:    s.EndedBy,
		StartedAt:  s.StartedAt,
		AnsweredAt: s.AnsweredAt,
		EndedAt:    s.EndedAt,
		Duration:   s.Duration(),
	}
}

// userStatus derives a user's status from their live call, if any.
func (ch *CallHandler) userStatus(userID string) (status, callID string) {
	s, ok := ch.registry.CallFor(userID)
	if !ok {
		return StatusOnline, ""
	}
	if s.State == signaling.StateRinging {
		return StatusGettingCall, s.CallID
	}
	return StatusInCall, s.CallID
}
