package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`

	Chat      ChatConfig      `mapstructure:"chat" yaml:"chat"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit" yaml:"ratelimit"`
}

// ChatConfig tunes room and session behaviour.
type ChatConfig struct {
	DefaultRoom      string `mapstructure:"default_room" yaml:"default_room"`
	SessionQueueSize int    `mapstructure:"session_queue_size" yaml:"session_queue_size"`
	HistoryLimit     int    `mapstructure:"history_limit" yaml:"history_limit"`
	MaxMessageLength int    `mapstructure:"max_message_length" yaml:"max_message_length"`
	EchoToSender     bool   `mapstructure:"echo_to_sender" yaml:"echo_to_sender"`
	TrustPayloadRoom bool   `mapstructure:"trust_payload_room" yaml:"trust_payload_room"`
	// Timezone is an IANA name used to render message timestamps, or "Local".
	Timezone string `mapstructure:"timezone" yaml:"timezone"`
}

// RateLimitConfig throttles inbound WebSocket events per session.
// With RedisAddr empty the limiter is kept in process memory.
type RateLimitConfig struct {
	MessagesPerMinute int    `mapstructure:"messages_per_minute" yaml:"messages_per_minute"`
	RedisAddr         string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword     string `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB           int    `mapstructure:"redis_db" yaml:"redis_db"`
	KeyPrefix         string `mapstructure:"key_prefix" yaml:"key_prefix"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		DatabasePath:      "roomchat.db",
		LogLevel:          "info",
		JWTSecret:         "change-me",
		JWTIssuer:         "roomchat",
		JWTTTL:            24 * time.Hour,
		Chat: ChatConfig{
			DefaultRoom:      "general",
			SessionQueueSize: 64,
			HistoryLimit:     50,
			MaxMessageLength: 4000,
			EchoToSender:     true,
			TrustPayloadRoom: false,
			Timezone:         "Local",
		},
		RateLimit: RateLimitConfig{
			MessagesPerMinute: 120,
			KeyPrefix:         "roomchat:ratelimit:",
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// Only the fields exposed as command line flags are considered.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
}

// Location resolves Chat.Timezone.
func (c *Config) Location() (*time.Location, error) {
	switch c.Chat.Timezone {
	case "", "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Chat.Timezone)
	if err != nil {
		return nil, fmt.Errorf("chat.timezone: %w", err)
	}
	return loc, nil
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("database_path is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret is required"))
	}
	if c.JWTTTL <= 0 {
		errs = append(errs, errors.New("jwt_ttl must be positive"))
	}
	if c.Chat.SessionQueueSize < 0 {
		errs = append(errs, errors.New("chat.session_queue_size must not be negative"))
	}
	if c.Chat.HistoryLimit < 0 {
		errs = append(errs, errors.New("chat.history_limit must not be negative"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
