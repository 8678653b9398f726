package configuration

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type MongoConfig struct {
	Uri                   string `mapstructure:"uri"`
	Database              string `mapstructure:"database"`
	MessagesCollection    string `mapstructure:"messagesCollection"`
	ConnectionsCollection string `mapstructure:"connectionsCollection"`
	CallsCollection       string `mapstructure:"callsCollection"`
	SocketRoute           string `mapstructure:"socketRoute"`
}

type ServerConfig struct {
	AppPort        int      `mapstructure:"app_port"`
	SocketPort     int      `mapstructure:"socket_port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type AuthConfig struct {
	JwtSecret string `mapstructure:"jwt_secret"`
}

type RedisConfig struct {
	Url         string `mapstructure:"url"` // empty disables the presence mirror
	PresenceKey string `mapstructure:"presence_key"`
	Channel     string `mapstructure:"channel"`
}

type CallsConfig struct {
	RingTimeoutSeconds int `mapstructure:"ring_timeout_seconds"`
}

func (c CallsConfig) RingTimeout() time.Duration {
	return time.Duration(c.RingTimeoutSeconds) * time.Second
}

type LoggerConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type TelemetryConfig struct {
	ServiceName  string `mapstructure:"service_name"`
	OtlpEndpoint string `mapstructure:"otlp_endpoint"`
}

type Config struct {
	ChatDatabase MongoConfig     `mapstructure:"mongo"`
	Server       ServerConfig    `mapstructure:"server"`
	Auth         AuthConfig      `mapstructure:"auth"`
	Redis        RedisConfig     `mapstructure:"redis"`
	Calls        CallsConfig     `mapstructure:"calls"`
	Logger       LoggerConfig    `mapstructure:"logger"`
	Telemetry    TelemetryConfig `mapstructure:"telemetry"`
}

// LoadConfig reads a JSON config file; every key can be overridden from the
// environment as BRIDGEUP_<SECTION>_<KEY>. A missing file falls back to
// defaults and env vars.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// 1. Set default values
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "bridgeup")
	v.SetDefault("mongo.messagesCollection", "messages")
	v.SetDefault("mongo.connectionsCollection", "connectionrequests")
	v.SetDefault("mongo.callsCollection", "calls")
	v.SetDefault("mongo.socketRoute", "ws")
	v.SetDefault("server.app_port", 4444)
	v.SetDefault("server.socket_port", 4445)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173", "http://localhost:3000"})
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.presence_key", "presence:online")
	v.SetDefault("redis.channel", "presence:events")
	v.SetDefault("calls.ring_timeout_seconds", 60)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.development", false)
	v.SetDefault("telemetry.service_name", "bridgeup-realtime")
	v.SetDefault("telemetry.otlp_endpoint", "")

	// 2. Set config file details
	v.SetConfigFile(configPath)
	v.SetConfigType(strings.TrimPrefix(filepath.Ext(configPath), "."))
	if filepath.Ext(configPath) == "" {
		v.SetConfigType("json")
	}

	// 3. Set up environment variable handling
	v.SetEnvPrefix("BRIDGEUP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Read the configuration file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	// 5. Unmarshal the configuration into our struct
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if config.Auth.JwtSecret == "" {
		return nil, errors.New("auth.jwt_secret is required (set BRIDGEUP_AUTH_JWT_SECRET)")
	}

	return &config, nil
}
