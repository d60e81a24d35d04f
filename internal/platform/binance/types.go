// Package binance provides thin clients for the Binance market-data surface:
// the aggTrade WebSocket stream and the klines REST endpoint. It knows
// nothing about rounds or betting; it only parses wire messages into domain
// price types.
package binance

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/updowngame/updown/internal/domain"
)

// TradeEvent is the aggTrade stream message. Only the fields the game needs
// are decoded; prices stay strings until parsed into decimals.
type TradeEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"` // ms since epoch
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"` // ms since epoch
}

// streamEnvelope is the combined-stream wrapper used when connecting through
// /stream?streams=...; raw /ws/ connections deliver the event unwrapped.
type streamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// ParseTick decodes a stream frame into a domain.PriceTick. It accepts both
// the raw and the combined-stream envelope formats and returns an error for
// frames that are not aggTrade events (subscription acks, unknown types).
func ParseTick(raw []byte) (domain.PriceTick, error) {
	payload := raw

	var env streamEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Data) > 0 {
		payload = env.Data
	}

	var ev TradeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return domain.PriceTick{}, fmt.Errorf("binance: decode frame: %w", err)
	}
	if ev.EventType != "aggTrade" {
		return domain.PriceTick{}, fmt.Errorf("binance: unexpected event type %q", ev.EventType)
	}

	price, err := decimal.NewFromString(ev.Price)
	if err != nil {
		return domain.PriceTick{}, fmt.Errorf("binance: parse price %q: %w", ev.Price, err)
	}

	eventTime := ev.TradeTime
	if eventTime == 0 {
		eventTime = ev.EventTime
	}

	return domain.PriceTick{
		Symbol:    strings.ToUpper(ev.Symbol),
		Price:     price,
		EventTime: time.UnixMilli(eventTime),
	}, nil
}

// StreamName returns the aggTrade stream name for a symbol, e.g.
// "btcusdt@aggTrade".
func StreamName(symbol string) string {
	return strings.ToLower(symbol) + "@aggTrade"
}

// parseKline decodes one klines REST row. Binance encodes each bar as a
// heterogeneous JSON array:
// [openTime, open, high, low, close, volume, closeTime, ...].
func parseKline(row []json.RawMessage) (domain.Candle, error) {
	if len(row) < 7 {
		return domain.Candle{}, fmt.Errorf("binance: kline row has %d fields, want >= 7", len(row))
	}

	var openTime, closeTime int64
	if err := json.Unmarshal(row[0], &openTime); err != nil {
		return domain.Candle{}, fmt.Errorf("binance: kline open time: %w", err)
	}
	if err := json.Unmarshal(row[6], &closeTime); err != nil {
		return domain.Candle{}, fmt.Errorf("binance: kline close time: %w", err)
	}

	fields := make([]decimal.Decimal, 5)
	for i := 0; i < 5; i++ {
		var s string
		if err := json.Unmarshal(row[i+1], &s); err != nil {
			return domain.Candle{}, fmt.Errorf("binance: kline field %d: %w", i+1, err)
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return domain.Candle{}, fmt.Errorf("binance: kline field %d %q: %w", i+1, s, err)
		}
		fields[i] = d
	}

	return domain.Candle{
		OpenTime:  time.UnixMilli(openTime),
		Open:      fields[0],
		High:      fields[1],
		Low:       fields[2],
		Close:     fields[3],
		Volume:    fields[4],
		CloseTime: time.UnixMilli(closeTime),
	}, nil
}
