package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full runtime configuration. Values resolve in
// precedence order: config file, then SIGNALHUB_* environment
// variables, then defaults.
type Config struct {
	Server    ServerConfig
	Auth      AuthConfig
	Database  DatabaseConfig
	WebSocket WebSocketConfig
	Call      CallConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type AuthConfig struct {
	// Secret signs and verifies handshake tokens. Required.
	Secret string
}

type DatabaseConfig struct {
	// Path of the SQLite call archive.
	Path string
}

type WebSocketConfig struct {
	PingInterval       time.Duration
	ReadTimeout        time.Duration
	RateLimitPerMinute int
}

type CallConfig struct {
	// PendingTimeout is how long an unanswered call may ring before it
	// expires as missed. Zero disables expiry.
	PendingTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Pretty bool
}

// Load reads configuration from config.yaml (if present), the
// environment and built-in defaults, then validates the result.
// A .env file in the working directory is honored for development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("auth.secret", "")
	v.SetDefault("database.path", "./signalhub.db")
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.read_timeout", "60s")
	v.SetDefault("websocket.rate_limit_per_minute", 100)
	v.SetDefault("call.pending_timeout", "0s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetEnvPrefix("SIGNALHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Port:            v.GetInt("server.port"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Auth: AuthConfig{
			Secret: v.GetString("auth.secret"),
		},
		Database: DatabaseConfig{
			Path: v.GetString("database.path"),
		},
		WebSocket: WebSocketConfig{
			PingInterval:       v.GetDuration("websocket.ping_interval"),
			ReadTimeout:        v.GetDuration("websocket.read_timeout"),
			RateLimitPerMinute: v.GetInt("websocket.rate_limit_per_minute"),
		},
		Call: CallConfig{
			PendingTimeout: v.GetDuration("call.pending_timeout"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Pretty: v.GetBool("log.pretty"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535")
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("auth secret is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("websocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("websocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.RateLimitPerMinute <= 0 {
		return fmt.Errorf("websocket rate limit must be positive")
	}
	if c.Call.PendingTimeout < 0 {
		return fmt.Errorf("call pending timeout cannot be negative")
	}
	return nil
}

// Addr returns the host:port the HTTP server binds.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
