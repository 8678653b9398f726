package hub

import (
	"Bridgeup/internal/event"
	"Bridgeup/internal/service"
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
)

const markReadTimeout = 10 * time.Second

// ReadMarker is the part of the message service the socket needs.
type ReadMarker interface {
	MarkRead(ctx context.Context, connectionID, readerID string, messageIDs []string) (int64, error)
}

func (h *Hub) handleEvent(ev event.WsEvent, c *Client) {
	switch ev.Event {
	case event.EventJoin, event.EventUserOnline:
		userID, err := event.ParseUserID(ev.Payload)
		if err != nil || userID == "" {
			c.SafeSend(errorEvent("invalid_payload", "join requires a userId"), sendTimeout)
			return
		}
		h.Join(c, userID)
	case event.EventUserOffline:
		// the payload is optional; a mismatching one is ignored by Leave
		userID, _ := event.ParseUserID(ev.Payload)
		h.Leave(c, userID)
	case event.EventTyping:
		h.relayTyping(ev, c)
	case event.EventNewNotification:
		h.relayNotification(ev, c)
	case event.EventMarkAsRead:
		h.markAsRead(ev, c)
	default:
		if h.calls.Handles(ev.Event) {
			h.calls.HandleCallEvent(ev, c)
			return
		}
		h.logger.Debug("unknown event type", zap.String("event", ev.Event), zap.String("client_id", c.ID))
		c.SafeSend(errorEvent("unknown_event", "unsupported event: "+ev.Event), sendTimeout)
	}
}

// requireUser returns the bound user or tells the socket to join first.
func (h *Hub) requireUser(c *Client, name string) (string, bool) {
	userID := c.UserID()
	if userID == "" {
		c.SafeSend(errorEvent("not_joined", name+" requires join first"), sendTimeout)
		return "", false
	}
	return userID, true
}

// relayTyping is fire-and-forget: an offline receiver just drops the signal.
func (h *Hub) relayTyping(ev event.WsEvent, c *Client) {
	senderID, ok := h.requireUser(c, ev.Event)
	if !ok {
		return
	}
	var p event.TypingPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil || p.ReceiverID == "" {
		c.SafeSend(errorEvent("invalid_payload", "typing requires receiverId"), sendTimeout)
		return
	}

	if !h.Notify(p.ReceiverID, event.EventUserTyping, event.UserTyping{
		SenderID:   senderID,
		IsTyping:   p.IsTyping,
		SenderName: p.SenderName,
	}) {
		h.logger.Debug("typing dropped, receiver offline", zap.String("receiver_id", p.ReceiverID))
	}
}

func (h *Hub) relayNotification(ev event.WsEvent, c *Client) {
	if _, ok := h.requireUser(c, ev.Event); !ok {
		return
	}
	var p event.NotificationPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil || p.RecipientID == "" {
		c.SafeSend(errorEvent("invalid_payload", "newNotification requires recipientId"), sendTimeout)
		return
	}

	if !h.SendToUser(p.RecipientID, event.WsEvent{Event: event.EventNotification, Payload: p.Notification}) {
		h.logger.Debug("notification dropped, recipient offline", zap.String("recipient_id", p.RecipientID))
	}
}

// markAsRead runs off the worker: it touches persistence and must not hold
// up other sockets sharing the worker.
func (h *Hub) markAsRead(ev event.WsEvent, c *Client) {
	readerID, ok := h.requireUser(c, ev.Event)
	if !ok {
		return
	}
	var p event.MarkAsReadPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil || p.ConnectionID == "" {
		c.SafeSend(errorEvent("invalid_payload", "markAsRead requires connectionId"), sendTimeout)
		return
	}
	if h.readMarker == nil {
		h.logger.Error("markAsRead received but no read marker is wired")
		return
	}

	started := h.spawn(func() {
		ctx, cancel := context.WithTimeout(h.ctx, markReadTimeout)
		defer cancel()

		n, err := h.readMarker.MarkRead(ctx, p.ConnectionID, readerID, p.MessageIDs)
		switch {
		case errors.Is(err, service.ErrForbidden):
			c.SafeSend(errorEvent("forbidden", "not a participant of this connection"), sendTimeout)
		case err != nil:
			h.logger.Error("socket markAsRead failed",
				zap.String("connection_id", p.ConnectionID),
				zap.String("reader_id", readerID),
				zap.Error(err),
			)
			c.SafeSend(errorEvent("mark_read_failed", "could not mark messages as read"), sendTimeout)
		default:
			h.logger.Debug("socket markAsRead",
				zap.String("connection_id", p.ConnectionID),
				zap.String("reader_id", readerID),
				zap.Int64("modified", n),
			)
		}
	})
	if !started {
		h.logger.Debug("markAsRead dropped: hub stopping", zap.String("connection_id", p.ConnectionID))
	}
}
