package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Defaults() should validate, got: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad mode", func(c *Config) { c.Mode = "turbo" }, "unknown mode"},
		{"bad fee rate", func(c *Config) { c.Game.FeeRate = "3%" }, "fee_rate"},
		{"fee rate too high", func(c *Config) { c.Game.FeeRate = "1.5" }, "fee_rate must be in [0, 1)"},
		{"zero min bet", func(c *Config) { c.Game.MinBet = "0" }, "min_bet must be positive"},
		{"zero betting window", func(c *Config) { c.Game.BettingDuration.Duration = 0 }, "betting_duration"},
		{"stale below health", func(c *Config) { c.Feed.StaleThreshold.Duration = time.Second }, "stale_threshold"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server: port"},
		{"telegram half configured", func(c *Config) { c.Notify.TelegramToken = "tok" }, "telegram"},
		{"archive without bucket", func(c *Config) { c.Archive.Enabled = true; c.S3.Bucket = "" }, "bucket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
mode = "game"

[game]
symbol = "ethusdt"
betting_duration = "1m"
fee_rate = "0.05"

[server]
port = 9100
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("UPDOWN_GAME_SYMBOL", "BTCUSDT")
	t.Setenv("UPDOWN_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("UPDOWN_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	// Env beats file, file beats defaults.
	if cfg.Game.Symbol != "BTCUSDT" {
		t.Errorf("Symbol = %q, want env override BTCUSDT", cfg.Game.Symbol)
	}
	if cfg.Game.BettingDuration.Duration != time.Minute {
		t.Errorf("BettingDuration = %v, want 1m from file", cfg.Game.BettingDuration.Duration)
	}
	if cfg.Game.FeeRate != "0.05" {
		t.Errorf("FeeRate = %q, want 0.05 from file", cfg.Game.FeeRate)
	}
	if cfg.Game.WaitingDuration.Duration != 10*time.Second {
		t.Errorf("WaitingDuration = %v, want default 10s", cfg.Game.WaitingDuration.Duration)
	}
	if cfg.Redis.Addr != "redis.internal:6380" {
		t.Errorf("Redis.Addr = %q, want env override", cfg.Redis.Addr)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("Server.Port = %d, want 9100 from file", cfg.Server.Port)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("CORSOrigins = %v, want two trimmed env values", cfg.Server.CORSOrigins)
	}
	if cfg.Mode != "game" {
		t.Errorf("Mode = %q, want game from file", cfg.Mode)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("merged config should validate: %v", err)
	}
}

func TestFeeRateAndMinBetDecimals(t *testing.T) {
	g := GameConfig{FeeRate: "0.03", MinBet: "2.50"}

	fee, err := g.FeeRateDecimal()
	if err != nil {
		t.Fatalf("FeeRateDecimal: %v", err)
	}
	if fee.String() != "0.03" {
		t.Errorf("fee = %s, want 0.03", fee)
	}

	minBet, err := g.MinBetDecimal()
	if err != nil {
		t.Fatalf("MinBetDecimal: %v", err)
	}
	if !minBet.Equal(minBet.Truncate(2)) || minBet.String() != "2.5" {
		t.Errorf("min bet = %s, want 2.5", minBet)
	}
}
