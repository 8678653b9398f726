package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

var (
	ErrMaxRetriesExceeded = errors.New("maximum retry attempts exceeded")
	ErrInvalidMessage     = errors.New("invalid message: message cannot be nil")
	ErrInvalidChannelID   = errors.New("invalid connection ID: cannot be empty")
	ErrOperationTimeout   = errors.New("operation timeout exceeded")
)

const (
	// Timeouts
	defaultWriteTimeout = 5 * time.Second
	defaultReadTimeout  = 10 * time.Second

	// Retry configuration
	maxRetries     = 3
	baseRetryDelay = 100 * time.Millisecond
	maxRetryDelay  = 2 * time.Second
)

// retrier carries the timeout and backoff policy shared by the Mongo repositories.
type retrier struct {
	logger *zap.Logger
}

// withRetry runs op until it succeeds, fails with a non-retryable error or
// exhausts maxRetries. Only transient Mongo errors (timeouts, network) are retried.
func withRetry[T any](ctx context.Context, r retrier, name string, op func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := r.waitForRetry(ctx, attempt); err != nil {
				return zero, err
			}
			r.logger.Warn("retrying mongo operation",
				zap.String("operation", name),
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", maxRetries),
			)
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !r.isRetryableError(err) {
			return zero, r.handleError(name, err)
		}
	}

	r.logger.Error("mongo operation failed after all retries",
		zap.String("operation", name),
		zap.Error(lastErr),
	)
	return zero, fmt.Errorf("%s: %w: %v", name, ErrMaxRetriesExceeded, lastErr)
}

func (r retrier) ensureTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hadDeadline := ctx.Deadline(); hadDeadline {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, timeout)
}

func (r retrier) waitForRetry(ctx context.Context, attempt int) error {
	delay := time.Duration(1<<uint(attempt)) * baseRetryDelay
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("retry wait cancelled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func (r retrier) isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Context errors are not retryable
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	return mongo.IsTimeout(err) || mongo.IsNetworkError(err)
}

func (r retrier) handleError(name string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		r.logger.Error("mongo operation timed out", zap.String("operation", name))
		return ErrOperationTimeout
	}
	if errors.Is(err, context.Canceled) {
		r.logger.Debug("mongo operation cancelled", zap.String("operation", name))
		return err
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return err
	}

	r.logger.Error("mongo operation failed", zap.String("operation", name), zap.Error(err))
	return fmt.Errorf("%s failed: %w", name, err)
}
