package configuration

import (
	"Bridgeup/internal/db"
	"Bridgeup/internal/handler"
	"Bridgeup/internal/hub"
	"Bridgeup/internal/model"
	"Bridgeup/internal/presence"
	"Bridgeup/internal/repo"
	"Bridgeup/internal/service"
	"Bridgeup/internal/telemetry"
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Container struct {
	MessageHandler      handler.MessageHandler
	VideoCallHandler    handler.VideoCallHandler
	PresenceHandler     handler.PresenceHandler
	NotificationHandler handler.NotificationHandler
	MonitorHandler      handler.MonitorHandler
	Hub                 *hub.Hub
	Config              Config
	Logger              *zap.Logger

	// private - for cleanup
	mongoClient       *mongo.Database
	redisClient       *redis.Client
	shutdownTelemetry telemetry.ShutdownFunc
}

func BuildContainer(configPath string) (*Container, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := newLogger(config.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	c := &Container{Config: *config, Logger: logger}

	c.shutdownTelemetry, err = telemetry.Init(context.Background(), telemetry.Config{
		ServiceName:  config.Telemetry.ServiceName,
		OTLPEndpoint: config.Telemetry.OtlpEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init telemetry: %w", err)
	}

	con, err := db.OpenConnection(config.ChatDatabase.Uri, config.ChatDatabase.Database)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.mongoClient = con

	messageRepo := repo.NewMessageRepository(
		db.NewRepository[model.Message](con, config.ChatDatabase.MessagesCollection), logger)
	connectionRepo := repo.NewConnectionRepository(
		db.NewRepository[model.Connection](con, config.ChatDatabase.ConnectionsCollection), logger)
	callRepo := repo.NewCallRepository(
		db.NewRepository[model.CallRecord](con, config.ChatDatabase.CallsCollection), logger)

	indexCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := messageRepo.EnsureIndexes(indexCtx); err != nil {
		logger.Warn("failed to ensure message indexes", zap.Error(err))
	}
	cancel()

	mirror, err := c.buildMirror(config.Redis)
	if err != nil {
		c.Close()
		return nil, err
	}

	callHandler := hub.NewCallHandler(config.Calls.RingTimeout(), callRepo, logger)
	c.Hub = hub.NewHub(presence.NewRegistry(), mirror, callHandler, hub.HubConfig{
		AllowedOrigins: config.Server.AllowedOrigins,
	}, logger)

	messageService := service.NewMessageService(messageRepo, connectionRepo, c.Hub, logger)
	c.Hub.SetReadMarker(messageService)

	c.MessageHandler = handler.NewMessageHandler(messageService, logger)
	c.VideoCallHandler = handler.NewVideoCallHandler(callHandler, callRepo, logger)
	c.PresenceHandler = handler.NewPresenceHandler(c.Hub)
	c.NotificationHandler = handler.NewNotificationHandler(c.Hub, logger)
	c.MonitorHandler = handler.NewMonitorHandler(hub.NewMonitorService(c.Hub))

	logger.Info("container built",
		zap.String("database", config.ChatDatabase.Database),
		zap.Bool("presence_mirror", c.redisClient != nil),
		zap.Duration("ring_timeout", config.Calls.RingTimeout()),
	)
	return c, nil
}

// buildMirror connects the Redis presence mirror when a URL is configured.
func (c *Container) buildMirror(cfg RedisConfig) (presence.Mirror, error) {
	if cfg.Url == "" {
		return presence.NopMirror{}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rdb, err := presence.NewRedisClient(ctx, presence.RedisConfig{URL: cfg.Url})
	if err != nil {
		return nil, fmt.Errorf("failed to connect redis: %w", err)
	}
	c.redisClient = rdb

	mirror := presence.NewRedisMirror(rdb, cfg.PresenceKey, cfg.Channel, c.Logger)
	// nobody is connected to a fresh process
	if err := mirror.Reset(ctx); err != nil {
		c.Logger.Warn("failed to reset presence mirror", zap.Error(err))
	}
	return mirror, nil
}

func newLogger(cfg LoggerConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = zap.NewAtomicLevelAt(level)
	}
	return zc.Build()
}

// Close gracefully shuts down all connections
func (c *Container) Close() error {
	// Stop the hub first (closes all WebSocket connections)
	if c.Hub != nil {
		c.Hub.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if c.shutdownTelemetry != nil {
		if err := c.shutdownTelemetry(ctx); err != nil {
			c.Logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}

	if c.redisClient != nil {
		_ = c.redisClient.Close()
	}

	// Sync logger
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}

	// Close MongoDB connection pool
	if c.mongoClient != nil {
		if err := c.mongoClient.Client().Disconnect(ctx); err != nil {
			return fmt.Errorf("failed to close MongoDB connection: %w", err)
		}
	}

	return nil
}
