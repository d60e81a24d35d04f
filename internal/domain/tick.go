package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceTick is a single index-price observation from the external feed.
// Ticks are immutable; the core never persists them.
type PriceTick struct {
	Symbol    string
	Price     decimal.Decimal
	EventTime time.Time
}

// Candle is one historical OHLCV bar returned by the feed's REST read path.
type Candle struct {
	OpenTime  time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	CloseTime time.Time
}

// FeedStatus describes the health of the price feed connection.
type FeedStatus struct {
	Connected   bool      `json:"connected"`
	LastTickAt  time.Time `json:"last_tick_at"`
	Subscribers int       `json:"subscribers"`
	Reconnects  int64     `json:"reconnects"`
}
