// Package config defines the top-level configuration for the up/down game
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by UPDOWN_* environment variables.
type Config struct {
	Game     GameConfig     `toml:"game"`
	Binance  BinanceConfig  `toml:"binance"`
	Feed     FeedConfig     `toml:"feed"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// GameConfig holds the round lifecycle and money parameters. FeeRate and
// MinBet are decimal strings so no money value ever passes through a float.
type GameConfig struct {
	Symbol          string   `toml:"symbol"`
	BettingDuration duration `toml:"betting_duration"`
	WaitingDuration duration `toml:"waiting_duration"`
	SettleDuration  duration `toml:"settle_duration"`
	FeeRate         string   `toml:"fee_rate"`
	MinBet          string   `toml:"min_bet"`
	TickInterval    duration `toml:"tick_interval"`
	DebitTimeout    duration `toml:"debit_timeout"`
}

// FeeRateDecimal parses the configured fee rate. Validate has already
// checked it, so errors here mean Validate was skipped.
func (g GameConfig) FeeRateDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(g.FeeRate)
}

// MinBetDecimal parses the configured minimum bet.
func (g GameConfig) MinBetDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(g.MinBet)
}

// BinanceConfig holds the exchange endpoints.
type BinanceConfig struct {
	StreamURL string `toml:"stream_url"`
	RestURL   string `toml:"rest_url"`
}

// FeedConfig holds the stream supervision parameters.
type FeedConfig struct {
	StaleThreshold    duration `toml:"stale_threshold"`
	HealthInterval    duration `toml:"health_interval"`
	KeepAliveInterval duration `toml:"keep_alive_interval"`
	ReconnectWait     duration `toml:"reconnect_wait"`
	ReplayBuffer      int      `toml:"replay_buffer"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls the settled-round archiver.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Game: GameConfig{
			Symbol:          "BTCUSDT",
			BettingDuration: duration{30 * time.Second},
			WaitingDuration: duration{10 * time.Second},
			SettleDuration:  duration{10 * time.Second},
			FeeRate:         "0.03",
			MinBet:          "1",
			TickInterval:    duration{500 * time.Millisecond},
			DebitTimeout:    duration{5 * time.Second},
		},
		Binance: BinanceConfig{
			StreamURL: "wss://stream.binance.com:9443",
			RestURL:   "https://api.binance.com",
		},
		Feed: FeedConfig{
			StaleThreshold:    duration{5 * time.Second},
			HealthInterval:    duration{2 * time.Second},
			KeepAliveInterval: duration{4 * time.Minute},
			ReconnectWait:     duration{2 * time.Second},
			ReplayBuffer:      256,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "updown",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "updown-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   20,
			RateWindow:  duration{time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"round_voided", "settlement_failed", "credit_failed"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"game":     true,
	"observer": true,
	"full":     true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: game, observer, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Game
	if strings.TrimSpace(c.Game.Symbol) == "" {
		errs = append(errs, "game: symbol must not be empty")
	}
	if c.Game.BettingDuration.Duration <= 0 {
		errs = append(errs, "game: betting_duration must be positive")
	}
	if c.Game.WaitingDuration.Duration <= 0 {
		errs = append(errs, "game: waiting_duration must be positive")
	}
	if c.Game.SettleDuration.Duration <= 0 {
		errs = append(errs, "game: settle_duration must be positive")
	}
	if fee, err := decimal.NewFromString(c.Game.FeeRate); err != nil {
		errs = append(errs, fmt.Sprintf("game: fee_rate %q is not a decimal", c.Game.FeeRate))
	} else if fee.IsNegative() || fee.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, fmt.Sprintf("game: fee_rate must be in [0, 1), got %s", fee))
	}
	if minBet, err := decimal.NewFromString(c.Game.MinBet); err != nil {
		errs = append(errs, fmt.Sprintf("game: min_bet %q is not a decimal", c.Game.MinBet))
	} else if minBet.Sign() <= 0 {
		errs = append(errs, fmt.Sprintf("game: min_bet must be positive, got %s", minBet))
	}

	// Binance
	if c.Binance.StreamURL == "" {
		errs = append(errs, "binance: stream_url must not be empty")
	}
	if c.Binance.RestURL == "" {
		errs = append(errs, "binance: rest_url must not be empty")
	}

	// Feed
	if c.Feed.StaleThreshold.Duration <= c.Feed.HealthInterval.Duration {
		errs = append(errs, "feed: stale_threshold must exceed health_interval")
	}
	if c.Feed.ReplayBuffer < 1 {
		errs = append(errs, "feed: replay_buffer must be >= 1")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Archive depends on S3.
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be positive")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be positive when rate_limit is set")
		}
	}

	// Notify — token and chat id must be set together.
	tg := c.Notify.TelegramToken != ""
	tc := c.Notify.TelegramChatID != ""
	if tg != tc {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
