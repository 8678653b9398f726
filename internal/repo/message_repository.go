package repo

import (
	"Bridgeup/internal/db"
	"Bridgeup/internal/model"
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type messageRepository struct {
	mongoRepo *db.Repository[model.Message]
	logger    *zap.Logger
	retrier
}

type MessageRepository interface {
	InsertMessage(ctx context.Context, msg *model.Message) (string, error)
	ListByConnection(ctx context.Context, connectionID string) ([]model.Message, error)
	// MarkRead flips unread messages addressed to readerID on connectionID and
	// returns exactly the messages that transitioned. An empty ids slice means
	// every unread message of the reader on that connection.
	MarkRead(ctx context.Context, connectionID, readerID string, ids []string, at time.Time) ([]model.Message, error)
	CountUnread(ctx context.Context, receiverID string) (int64, error)
	CountUnreadInConnection(ctx context.Context, connectionID, receiverID string) (int64, error)
	LastMessage(ctx context.Context, connectionID string) (*model.Message, error)
	EnsureIndexes(ctx context.Context) error
}

func NewMessageRepository(repo *db.Repository[model.Message], logger *zap.Logger) MessageRepository {
	return &messageRepository{
		mongoRepo: repo,
		logger:    logger,
		retrier:   retrier{logger: logger},
	}
}

// -----------------------------------------------------------------------------
// InsertMessage
// -----------------------------------------------------------------------------

func (m *messageRepository) InsertMessage(ctx context.Context, msg *model.Message) (string, error) {
	if err := m.validateMessage(msg); err != nil {
		return "", err
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	// the id is assigned up front so a retried insert after a lost ack hits
	// a duplicate key instead of writing the message twice
	if msg.ID.IsZero() {
		msg.ID = primitive.NewObjectID()
	}

	_, err := withRetry(ctx, m.retrier, "insert message", func(ctx context.Context) (*mongo.InsertOneResult, error) {
		res, err := m.mongoRepo.Create(ctx, *msg)
		if mongo.IsDuplicateKeyError(err) {
			return res, nil
		}
		return res, err
	})
	if err != nil {
		return "", err
	}

	m.logger.Info("message inserted successfully",
		zap.String("message_id", msg.ID.Hex()),
		zap.String("connection_id", msg.ConnectionID),
		zap.String("sender_id", msg.SenderID),
	)
	return msg.ID.Hex(), nil
}

// -----------------------------------------------------------------------------
// ListByConnection - oldest first
// -----------------------------------------------------------------------------

func (m *messageRepository) ListByConnection(ctx context.Context, connectionID string) ([]model.Message, error) {
	if err := m.validateConnectionID(connectionID); err != nil {
		return nil, err
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("connectionId", connectionID).Build()
	sort := bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}

	messages, err := withRetry(ctx, m.retrier, "list messages", func(ctx context.Context) ([]model.Message, error) {
		return m.mongoRepo.FindSorted(ctx, filter, sort)
	})
	if err != nil {
		return nil, err
	}

	m.logger.Debug("messages listed",
		zap.String("connection_id", connectionID),
		zap.Int("count", len(messages)),
	)
	return messages, nil
}

// -----------------------------------------------------------------------------
// MarkRead
// -----------------------------------------------------------------------------

func (m *messageRepository) MarkRead(ctx context.Context, connectionID, readerID string, ids []string, at time.Time) ([]model.Message, error) {
	if err := m.validateConnectionID(connectionID); err != nil {
		return nil, err
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	fb := db.NewFilter().
		Eq("connectionId", connectionID).
		Eq("receiver", readerID).
		Eq("isRead", false)
	if len(ids) > 0 {
		fb.ObjectIDs("_id", ids)
	}
	filter := fb.Build()

	pending, err := withRetry(ctx, m.retrier, "find unread messages", func(ctx context.Context) ([]model.Message, error) {
		return m.mongoRepo.FindSorted(ctx, filter, bson.D{{Key: "createdAt", Value: 1}})
	})
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}

	// isRead:false in every filter so a message flips at most once, and only
	// the flips this call won are reported
	flipped, err := flipEach(ctx, pending, at, func(ctx context.Context, id string) (bool, error) {
		filter := db.NewFilter().ObjectID("_id", id).Eq("isRead", false).Build()
		res, err := withRetry(ctx, m.retrier, "mark message read", func(ctx context.Context) (*mongo.UpdateResult, error) {
			return m.mongoRepo.UpdateOne(ctx, filter, bson.M{"isRead": true, "readAt": at})
		})
		if err != nil {
			return false, err
		}
		return res.ModifiedCount == 1, nil
	})
	if err != nil {
		return nil, err
	}
	if len(flipped) < len(pending) {
		m.logger.Debug("some messages were read concurrently",
			zap.String("connection_id", connectionID),
			zap.Int("found", len(pending)),
			zap.Int("flipped", len(flipped)),
		)
	}
	pending = flipped

	m.logger.Debug("messages marked read",
		zap.String("connection_id", connectionID),
		zap.String("reader_id", readerID),
		zap.Int("count", len(pending)),
	)
	return pending, nil
}

// -----------------------------------------------------------------------------
// Counters and summaries
// -----------------------------------------------------------------------------

func (m *messageRepository) CountUnread(ctx context.Context, receiverID string) (int64, error) {
	ctx, cancel := m.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("receiver", receiverID).Eq("isRead", false).Build()
	return withRetry(ctx, m.retrier, "count unread", func(ctx context.Context) (int64, error) {
		return m.mongoRepo.Count(ctx, filter)
	})
}

func (m *messageRepository) CountUnreadInConnection(ctx context.Context, connectionID, receiverID string) (int64, error) {
	if err := m.validateConnectionID(connectionID); err != nil {
		return 0, err
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().
		Eq("connectionId", connectionID).
		Eq("receiver", receiverID).
		Eq("isRead", false).
		Build()
	return withRetry(ctx, m.retrier, "count unread in connection", func(ctx context.Context) (int64, error) {
		return m.mongoRepo.Count(ctx, filter)
	})
}

// LastMessage returns nil without error for a connection with no messages.
func (m *messageRepository) LastMessage(ctx context.Context, connectionID string) (*model.Message, error) {
	if err := m.validateConnectionID(connectionID); err != nil {
		return nil, err
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("connectionId", connectionID).Build()
	sort := bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}

	msg, err := withRetry(ctx, m.retrier, "last message", func(ctx context.Context) (*model.Message, error) {
		return m.mongoRepo.FindFirst(ctx, filter, sort)
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	return msg, err
}

func (m *messageRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	return m.mongoRepo.EnsureIndexes(ctx,
		bson.D{{Key: "connectionId", Value: 1}, {Key: "createdAt", Value: 1}},
		bson.D{{Key: "receiver", Value: 1}, {Key: "isRead", Value: 1}},
	)
}

// -----------------------------------------------------------------------------
// Private Helper Methods
// -----------------------------------------------------------------------------

func (m *messageRepository) validateMessage(msg *model.Message) error {
	if msg == nil {
		return ErrInvalidMessage
	}
	return m.validateConnectionID(msg.ConnectionID)
}

func (m *messageRepository) validateConnectionID(connectionID string) error {
	if connectionID == "" {
		return ErrInvalidChannelID
	}
	return nil
}

// flipEach applies flip to every pending message in order and returns the ones
// it reports as changed, stamped with at. A failure stops the walk.
func flipEach(ctx context.Context, pending []model.Message, at time.Time, flip func(ctx context.Context, id string) (bool, error)) ([]model.Message, error) {
	out := make([]model.Message, 0, len(pending))
	for _, msg := range pending {
		ok, err := flip(ctx, msg.ID.Hex())
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		msg.IsRead = true
		msg.ReadAt = &at
		out = append(out, msg)
	}
	return out, nil
}
