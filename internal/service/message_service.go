package service

import (
	"Bridgeup/internal/event"
	"Bridgeup/internal/model"
	"Bridgeup/internal/repo"
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("Bridgeup/internal/service")

// Notifier pushes an event to every live connection of a user. It reports
// false when the user has none; callers treat that as best-effort delivery.
type Notifier interface {
	SendToUser(userID string, ev event.WsEvent) bool
}

type MessageService interface {
	Send(ctx context.Context, senderID, receiverID, connectionID, content string) (*model.Message, error)
	ListForConnection(ctx context.Context, connectionID, requesterID string) ([]model.Message, error)
	// MarkRead flips the reader's unread messages on a connection (all of them
	// when messageIDs is empty) and returns how many actually changed.
	MarkRead(ctx context.Context, connectionID, readerID string, messageIDs []string) (int64, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	ConversationSummary(ctx context.Context, connectionID, userID string) (*model.ConversationSummary, error)
}

type messageService struct {
	messages    repo.MessageRepository
	connections repo.ConnectionRepository
	notifier    Notifier
	logger      *zap.Logger
	now         func() time.Time

	sendLocks keyedLocks
	readLocks keyedLocks
}

func NewMessageService(messages repo.MessageRepository, connections repo.ConnectionRepository, notifier Notifier, logger *zap.Logger) MessageService {
	return &messageService{
		messages:    messages,
		connections: connections,
		notifier:    notifier,
		logger:      logger,
		now:         time.Now,
	}
}

func (s *messageService) Send(ctx context.Context, senderID, receiverID, connectionID, content string) (*model.Message, error) {
	ctx, span := tracer.Start(ctx, "MessageService.Send", trace.WithAttributes(
		attribute.String("sender_id", senderID),
		attribute.String("receiver_id", receiverID),
		attribute.String("connection_id", connectionID),
	))
	defer span.End()

	if senderID == "" || receiverID == "" || connectionID == "" || strings.TrimSpace(content) == "" {
		span.RecordError(ErrInvalidArgument)
		return nil, fmt.Errorf("%w: receiverId, connectionId and content are required", ErrInvalidArgument)
	}

	ok, err := s.connections.IsAcceptedConnection(ctx, senderID, receiverID, connectionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pairing check failed")
		return nil, fmt.Errorf("check pairing: %w", err)
	}
	if !ok {
		s.logger.Info("message send forbidden",
			zap.String("sender_id", senderID),
			zap.String("receiver_id", receiverID),
			zap.String("connection_id", connectionID),
		)
		span.SetStatus(codes.Error, "forbidden")
		return nil, ErrForbidden
	}

	// persist and push under the sender's lock so one sender's messages are
	// stored and delivered in the order they were sent
	unlock := s.sendLocks.lock(senderID)
	defer unlock()

	msg := &model.Message{
		SenderID:     senderID,
		ReceiverID:   receiverID,
		ConnectionID: connectionID,
		Content:      content,
		CreatedAt:    s.now(),
		IsRead:       false,
	}
	if _, err := s.messages.InsertMessage(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return nil, fmt.Errorf("persist message: %w", err)
	}

	delivered := s.notifier.SendToUser(receiverID, event.New(event.EventNewMessage, msg))
	span.SetAttributes(attribute.Bool("delivered", delivered))
	if !delivered {
		s.logger.Debug("receiver offline, message stored only",
			zap.String("message_id", msg.ID.Hex()),
			zap.String("receiver_id", receiverID),
		)
	}
	span.SetStatus(codes.Ok, "sent")
	return msg, nil
}

func (s *messageService) ListForConnection(ctx context.Context, connectionID, requesterID string) ([]model.Message, error) {
	ctx, span := tracer.Start(ctx, "MessageService.ListForConnection", trace.WithAttributes(
		attribute.String("connection_id", connectionID),
		attribute.String("requester_id", requesterID),
	))
	defer span.End()

	if err := s.authorize(ctx, connectionID, requesterID); err != nil {
		span.RecordError(err)
		return nil, err
	}

	messages, err := s.messages.ListByConnection(ctx, connectionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		return nil, fmt.Errorf("list messages: %w", err)
	}
	span.SetAttributes(attribute.Int("count", len(messages)))
	return messages, nil
}

func (s *messageService) MarkRead(ctx context.Context, connectionID, readerID string, messageIDs []string) (int64, error) {
	ctx, span := tracer.Start(ctx, "MessageService.MarkRead", trace.WithAttributes(
		attribute.String("connection_id", connectionID),
		attribute.String("reader_id", readerID),
		attribute.Int("requested", len(messageIDs)),
	))
	defer span.End()

	if err := s.authorize(ctx, connectionID, readerID); err != nil {
		span.RecordError(err)
		return 0, err
	}

	unlock := s.readLocks.lock(connectionID + "/" + readerID)
	defer unlock()

	readAt := s.now()
	flipped, err := s.messages.MarkRead(ctx, connectionID, readerID, messageIDs, readAt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "mark read failed")
		return 0, fmt.Errorf("mark read: %w", err)
	}
	span.SetAttributes(attribute.Int("modified", len(flipped)))
	if len(flipped) == 0 {
		return 0, nil
	}

	for senderID, msgs := range GroupBy(flipped, func(m model.Message) string { return m.SenderID }) {
		ids := make([]string, 0, len(msgs))
		for _, m := range msgs {
			ids = append(ids, m.ID.Hex())
		}
		s.notifier.SendToUser(senderID, event.New(event.EventMessageRead, event.MessageRead{
			ConnectionID: connectionID,
			MessageIDs:   ids,
			ReadBy:       readerID,
			ReadAt:       readAt,
		}))
	}

	s.logger.Debug("read receipt issued",
		zap.String("connection_id", connectionID),
		zap.String("reader_id", readerID),
		zap.Int("count", len(flipped)),
	)
	return int64(len(flipped)), nil
}

func (s *messageService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, ErrInvalidArgument
	}
	count, err := s.messages.CountUnread(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

func (s *messageService) ConversationSummary(ctx context.Context, connectionID, userID string) (*model.ConversationSummary, error) {
	ctx, span := tracer.Start(ctx, "MessageService.ConversationSummary", trace.WithAttributes(
		attribute.String("connection_id", connectionID),
	))
	defer span.End()

	if err := s.authorize(ctx, connectionID, userID); err != nil {
		span.RecordError(err)
		return nil, err
	}

	last, err := s.messages.LastMessage(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("last message: %w", err)
	}
	unread, err := s.messages.CountUnreadInConnection(ctx, connectionID, userID)
	if err != nil {
		return nil, fmt.Errorf("count unread: %w", err)
	}

	return &model.ConversationSummary{
		ConnectionID: connectionID,
		LastMessage:  last,
		UnreadCount:  unread,
	}, nil
}

// authorize fails with ErrForbidden unless userID is a side of an accepted
// pairing with that id.
func (s *messageService) authorize(ctx context.Context, connectionID, userID string) error {
	if connectionID == "" || userID == "" {
		return fmt.Errorf("%w: connectionId is required", ErrInvalidArgument)
	}
	conn, err := s.connections.GetAcceptedConnection(ctx, connectionID, userID)
	if err != nil {
		return fmt.Errorf("load pairing: %w", err)
	}
	if conn == nil {
		return ErrForbidden
	}
	return nil
}
