package repo

import (
	"Bridgeup/internal/db"
	"Bridgeup/internal/model"
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const callHistoryPageSize = 20

// CallRepository archives finished call sessions.
type CallRepository interface {
	InsertCall(ctx context.Context, rec *model.CallRecord) error
	History(ctx context.Context, userID string, page int64) (*db.PaginatedResult[model.CallRecord], error)
}

type callRepository struct {
	mongoRepo *db.Repository[model.CallRecord]
	logger    *zap.Logger
	retrier
}

func NewCallRepository(repo *db.Repository[model.CallRecord], logger *zap.Logger) CallRepository {
	return &callRepository{
		mongoRepo: repo,
		logger:    logger,
		retrier:   retrier{logger: logger},
	}
}

func (r *callRepository) InsertCall(ctx context.Context, rec *model.CallRecord) error {
	if rec == nil || rec.CallID == "" {
		return ErrInvalidMessage
	}

	ctx, cancel := r.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	_, err := withRetry(ctx, r.retrier, "insert call", func(ctx context.Context) (*mongo.InsertOneResult, error) {
		return r.mongoRepo.Create(ctx, *rec)
	})
	if err != nil {
		return err
	}

	r.logger.Debug("call archived",
		zap.String("call_id", rec.CallID),
		zap.String("state", rec.State),
		zap.Int("duration", rec.Duration),
	)
	return nil
}

// History pages through calls userID took part in, newest first.
func (r *callRepository) History(ctx context.Context, userID string, page int64) (*db.PaginatedResult[model.CallRecord], error) {
	ctx, cancel := r.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Or(bson.M{"callerId": userID}, bson.M{"calleeId": userID}).Build()

	return withRetry(ctx, r.retrier, "call history", func(ctx context.Context) (*db.PaginatedResult[model.CallRecord], error) {
		return r.mongoRepo.FindWithPagination(ctx, filter, db.PaginationParams{
			Page:     page,
			PageSize: callHistoryPageSize,
			SortBy:   "startedAt",
			SortDesc: true,
		})
	})
}
