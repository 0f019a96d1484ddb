// Package config provides centralized configuration management.
//
// Every setting has a default in its struct tag; environment variables
// override it. Load is the only entry point the binaries use.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// =============================================================================
// GAME CONFIGURATION
// =============================================================================

// GameConfig holds board and spawner settings.
type GameConfig struct {
	Width   int   `env:"BLOCKFALL_BOARD_WIDTH"  envDefault:"10"`
	Height  int   `env:"BLOCKFALL_BOARD_HEIGHT" envDefault:"20"`
	Seed    int64 `env:"BLOCKFALL_SEED"         envDefault:"0"`    // 0 = fresh seed per session
	Gravity bool  `env:"BLOCKFALL_GRAVITY"      envDefault:"true"` // false leaves falling to clients
}

// DefaultGame returns the classic 10x20 board.
func DefaultGame() GameConfig {
	var cfg GameConfig
	mustDefaults(&cfg)
	return cfg
}

// GameFromEnv returns game configuration with environment overrides.
func GameFromEnv() (GameConfig, error) {
	var cfg GameConfig
	if err := parse(&cfg); err != nil {
		return cfg, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return cfg, fmt.Errorf("%w: board must be positive, got %dx%d", ErrInvalidConfig, cfg.Width, cfg.Height)
	}
	return cfg, nil
}

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `env:"PORT"                      envDefault:"3000"`
	MaxSessions     int           `env:"BLOCKFALL_MAX_SESSIONS"    envDefault:"100"`
	AllowedOrigins  []string      `env:"BLOCKFALL_ALLOWED_ORIGINS" envSeparator:","`
	ShutdownTimeout time.Duration `env:"BLOCKFALL_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Abandoned sessions are reaped so they stop counting against MaxSessions.
	SessionIdleTTL     time.Duration `env:"BLOCKFALL_SESSION_IDLE_TTL"     envDefault:"15m"`
	SessionGameOverTTL time.Duration `env:"BLOCKFALL_SESSION_GAMEOVER_TTL" envDefault:"5m"`
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	var cfg ServerConfig
	mustDefaults(&cfg)
	return cfg
}

// ServerFromEnv returns server configuration with environment overrides.
func ServerFromEnv() (ServerConfig, error) {
	var cfg ServerConfig
	if err := parse(&cfg); err != nil {
		return cfg, err
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return cfg, fmt.Errorf("%w: port %d", ErrInvalidConfig, cfg.Port)
	}
	if cfg.MaxSessions <= 0 {
		return cfg, fmt.Errorf("%w: max sessions must be positive", ErrInvalidConfig)
	}
	if cfg.SessionIdleTTL <= 0 || cfg.SessionGameOverTTL <= 0 {
		return cfg, fmt.Errorf("%w: session TTLs must be positive", ErrInvalidConfig)
	}
	return cfg, nil
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// =============================================================================
// HIGH SCORE CONFIGURATION
// =============================================================================

// HighScoreConfig sizes the high-score list.
type HighScoreConfig struct {
	Capacity int `env:"BLOCKFALL_HIGHSCORE_CAPACITY"  envDefault:"10"`
	MinScore int `env:"BLOCKFALL_HIGHSCORE_MIN_SCORE" envDefault:"100"`
}

// DefaultHighScore returns a top-10 list with a 100 point minimum.
func DefaultHighScore() HighScoreConfig {
	var cfg HighScoreConfig
	mustDefaults(&cfg)
	return cfg
}

// =============================================================================
// EVENT LOG CONFIGURATION
// =============================================================================

// EventLogConfig controls the session event log.
type EventLogConfig struct {
	Path                string `env:"BLOCKFALL_EVENT_LOG_PATH"   envDefault:"events.jsonl"` // empty keeps events in memory
	BufferSize          int    `env:"BLOCKFALL_EVENT_BUFFER"     envDefault:"1024"`
	MaxEventsPerSec     int    `env:"BLOCKFALL_EVENTS_PER_SEC"   envDefault:"1000"`
	MaxEventsPerSession int    `env:"BLOCKFALL_EVENTS_PER_SESSION" envDefault:"50"`
}

// DefaultEventLog returns the default event log configuration.
func DefaultEventLog() EventLogConfig {
	var cfg EventLogConfig
	mustDefaults(&cfg)
	return cfg
}

// =============================================================================
// OBSERVABILITY CONFIGURATION
// =============================================================================

// ObservabilityConfig controls the localhost debug server.
type ObservabilityConfig struct {
	Enabled       bool   `env:"BLOCKFALL_DEBUG_ENABLED" envDefault:"true"`
	ListenAddr    string `env:"BLOCKFALL_DEBUG_ADDR"    envDefault:"127.0.0.1:6060"`
	BasicAuthUser string `env:"BLOCKFALL_DEBUG_USER"`
	BasicAuthPass string `env:"BLOCKFALL_DEBUG_PASS"`
}

// DefaultObservability returns the default debug server configuration.
func DefaultObservability() ObservabilityConfig {
	var cfg ObservabilityConfig
	mustDefaults(&cfg)
	return cfg
}

// =============================================================================
// RATE LIMIT CONFIGURATION
// =============================================================================

// RateLimitConfig holds DoS protection limits.
type RateLimitConfig struct {
	RequestsPerSecond float64 `env:"BLOCKFALL_RATE_LIMIT_RPS"   envDefault:"20"`
	Burst             int     `env:"BLOCKFALL_RATE_LIMIT_BURST" envDefault:"40"`
	MaxWSPerIP        int     `env:"BLOCKFALL_WS_MAX_PER_IP"    envDefault:"10"`
	MaxWSTotal        int     `env:"BLOCKFALL_WS_MAX_TOTAL"     envDefault:"500"`
	WSMessagesPerSec  float64 `env:"BLOCKFALL_WS_MSG_PER_SEC"   envDefault:"30"`
}

// DefaultRateLimit returns the default limits.
func DefaultRateLimit() RateLimitConfig {
	var cfg RateLimitConfig
	mustDefaults(&cfg)
	return cfg
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Game          GameConfig
	Server        ServerConfig
	HighScore     HighScoreConfig
	EventLog      EventLogConfig
	Observability ObservabilityConfig
	RateLimit     RateLimitConfig
}

// Load returns the complete configuration with environment overrides.
func Load() (AppConfig, error) {
	var cfg AppConfig
	var err error

	if cfg.Game, err = GameFromEnv(); err != nil {
		return cfg, err
	}
	if cfg.Server, err = ServerFromEnv(); err != nil {
		return cfg, err
	}
	if err = parse(&cfg.HighScore); err != nil {
		return cfg, err
	}
	if err = parse(&cfg.EventLog); err != nil {
		return cfg, err
	}
	if err = parse(&cfg.Observability); err != nil {
		return cfg, err
	}
	if err = parse(&cfg.RateLimit); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func parse(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// mustDefaults fills target from its envDefault tags alone.
func mustDefaults(target any) {
	if err := env.ParseWithOptions(target, env.Options{Environment: map[string]string{}}); err != nil {
		panic(fmt.Sprintf("config: bad default tags: %v", err))
	}
}
