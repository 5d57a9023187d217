// Package config loads server settings from the environment.
package config

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"
)

var (
	ErrMissingDSN       = errors.New("DB_DSN is not set")
	ErrMissingJWTSecret = errors.New("JWT_SECRET is not set")
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	AMQP       AMQPConfig
	Translator TranslatorConfig
	Relay      RelayConfig
	Log        LogConfig
}

type ServerConfig struct {
	Addr           string
	JWTSecret      string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	DSN string
}

type RedisConfig struct {
	Addr string
}

type AMQPConfig struct {
	URL      string
	Exchange string
}

type TranslatorConfig struct {
	// RemoteURL points at the scraper service; empty disables the remote strategy.
	RemoteURL    string
	Timeout      time.Duration
	CacheTTL     time.Duration
	BaseLanguage string
}

type RelayConfig struct {
	BranchTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           GetEnv("ADDR", ":8080"),
			JWTSecret:      os.Getenv("JWT_SECRET"),
			AllowedOrigins: GetEnvSlice("ALLOWED_ORIGINS", nil),
		},
		Database: DatabaseConfig{
			DSN: os.Getenv("DB_DSN"),
		},
		Redis: RedisConfig{
			Addr: GetEnv("REDIS_ADDR", "localhost:6379"),
		},
		AMQP: AMQPConfig{
			URL:      os.Getenv("AMQP_URL"),
			Exchange: GetEnv("AMQP_EXCHANGE", "chat.events"),
		},
		Translator: TranslatorConfig{
			RemoteURL:    os.Getenv("TRANSLATOR_URL"),
			Timeout:      GetEnvDuration("TRANSLATOR_TIMEOUT", 60*time.Second),
			CacheTTL:     GetEnvDuration("TRANSLATION_CACHE_TTL", 24*time.Hour),
			BaseLanguage: GetEnv("BASE_LANGUAGE", "eng"),
		},
		Relay: RelayConfig{
			BranchTimeout: GetEnvDuration("RELAY_BRANCH_TIMEOUT", 90*time.Second),
		},
		Log: LogConfig{
			Level:  GetEnv("LOG_LEVEL", "info"),
			Format: GetEnv("LOG_FORMAT", "text"),
		},
	}
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return ErrMissingDSN
	}
	if c.Server.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	return nil
}

func (c *Config) IsAMQPConfigured() bool {
	return c.AMQP.URL != ""
}

func (c *Config) IsRemoteTranslatorConfigured() bool {
	return c.Translator.RemoteURL != ""
}

// NewLogger builds the process logger from the log settings.
func (c *Config) NewLogger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
