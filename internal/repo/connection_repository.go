package repo

import (
	"Bridgeup/internal/db"
	"Bridgeup/internal/model"
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// ConnectionRepository reads mentor/mentee pairings. The documents are owned by
// the connections service; this side never writes them.
type ConnectionRepository interface {
	IsAcceptedConnection(ctx context.Context, userA, userB, connectionID string) (bool, error)
	// GetAcceptedConnection returns nil when no accepted pairing with that id
	// includes userID.
	GetAcceptedConnection(ctx context.Context, connectionID, userID string) (*model.Connection, error)
}

type connectionRepository struct {
	mongoRepo *db.Repository[model.Connection]
	logger    *zap.Logger
	retrier
}

func NewConnectionRepository(repo *db.Repository[model.Connection], logger *zap.Logger) ConnectionRepository {
	return &connectionRepository{
		mongoRepo: repo,
		logger:    logger,
		retrier:   retrier{logger: logger},
	}
}

func (r *connectionRepository) IsAcceptedConnection(ctx context.Context, userA, userB, connectionID string) (bool, error) {
	if userA == "" || userB == "" || userA == userB {
		return false, nil
	}

	ctx, cancel := r.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	pair := func(junior, senior string) bson.M {
		return db.NewFilter().ObjectID("junior", junior).ObjectID("senior", senior).Build()
	}
	filter := db.NewFilter().
		ObjectID("_id", connectionID).
		Eq("status", model.ConnectionAccepted).
		Or(pair(userA, userB), pair(userB, userA)).
		Build()

	ok, err := withRetry(ctx, r.retrier, "check pairing", func(ctx context.Context) (bool, error) {
		return r.mongoRepo.Exists(ctx, filter)
	})
	if err != nil {
		return false, err
	}

	r.logger.Debug("pairing checked",
		zap.String("connection_id", connectionID),
		zap.String("user_a", userA),
		zap.String("user_b", userB),
		zap.Bool("accepted", ok),
	)
	return ok, nil
}

func (r *connectionRepository) GetAcceptedConnection(ctx context.Context, connectionID, userID string) (*model.Connection, error) {
	if userID == "" {
		return nil, nil
	}

	ctx, cancel := r.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().
		ObjectID("_id", connectionID).
		Eq("status", model.ConnectionAccepted).
		Or(
			db.NewFilter().ObjectID("junior", userID).Build(),
			db.NewFilter().ObjectID("senior", userID).Build(),
		).
		Build()

	conn, err := withRetry(ctx, r.retrier, "get pairing", func(ctx context.Context) (*model.Connection, error) {
		return r.mongoRepo.FindOne(ctx, filter)
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	return conn, err
}
