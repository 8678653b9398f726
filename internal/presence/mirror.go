package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Mirror publishes presence transitions outside the process. The in-memory
// Registry stays authoritative; mirror writes are best-effort.
type Mirror interface {
	SetOnline(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string) error
	Reset(ctx context.Context) error
}

type NopMirror struct{}

func (NopMirror) SetOnline(context.Context, string) error  { return nil }
func (NopMirror) SetOffline(context.Context, string) error { return nil }
func (NopMirror) Reset(context.Context) error              { return nil }

type RedisConfig struct {
	URL         string
	PresenceKey string
	Channel     string
	PingTimeout time.Duration
}

// RedisCommands is the subset of redis.Cmdable the mirror uses.
type RedisCommands interface {
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisMirror keeps a SET of online user IDs and publishes every transition
// on a channel as {"userId": ..., "isOnline": ...}.
type RedisMirror struct {
	rdb     RedisCommands
	key     string
	channel string
	logger  *zap.Logger
}

func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func NewRedisMirror(rdb RedisCommands, key, channel string, logger *zap.Logger) *RedisMirror {
	if key == "" {
		key = "presence:online"
	}
	if channel == "" {
		channel = "presence:events"
	}
	return &RedisMirror{rdb: rdb, key: key, channel: channel, logger: logger}
}

func (m *RedisMirror) SetOnline(ctx context.Context, userID string) error {
	if err := m.rdb.SAdd(ctx, m.key, userID).Err(); err != nil {
		return fmt.Errorf("sadd presence: %w", err)
	}
	return m.publish(ctx, userID, true)
}

func (m *RedisMirror) SetOffline(ctx context.Context, userID string) error {
	if err := m.rdb.SRem(ctx, m.key, userID).Err(); err != nil {
		return fmt.Errorf("srem presence: %w", err)
	}
	return m.publish(ctx, userID, false)
}

// Reset clears the mirrored set; called at startup since nobody is connected yet.
func (m *RedisMirror) Reset(ctx context.Context) error {
	if err := m.rdb.Del(ctx, m.key).Err(); err != nil {
		return fmt.Errorf("reset presence: %w", err)
	}
	return nil
}

func (m *RedisMirror) publish(ctx context.Context, userID string, online bool) error {
	raw, err := json.Marshal(struct {
		UserID   string `json:"userId"`
		IsOnline bool   `json:"isOnline"`
	}{userID, online})
	if err != nil {
		return err
	}
	if err := m.rdb.Publish(ctx, m.channel, raw).Err(); err != nil {
		return fmt.Errorf("publish presence: %w", err)
	}
	m.logger.Debug("presence mirrored",
		zap.String("user_id", userID),
		zap.Bool("is_online", online),
	)
	return nil
}
