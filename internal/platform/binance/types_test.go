package binance

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseTick(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantErr   bool
		wantSym   string
		wantPrice string
		wantTime  int64
	}{
		{
			name:      "raw aggTrade frame",
			raw:       `{"e":"aggTrade","E":1700000000500,"s":"BTCUSDT","p":"42123.50","q":"0.12","T":1700000000499}`,
			wantSym:   "BTCUSDT",
			wantPrice: "42123.50",
			wantTime:  1700000000499,
		},
		{
			name:      "combined stream envelope",
			raw:       `{"stream":"btcusdt@aggTrade","data":{"e":"aggTrade","E":1700000001000,"s":"btcusdt","p":"42124","q":"1","T":1700000000999}}`,
			wantSym:   "BTCUSDT",
			wantPrice: "42124",
			wantTime:  1700000000999,
		},
		{
			name:      "falls back to event time",
			raw:       `{"e":"aggTrade","E":1700000002000,"s":"BTCUSDT","p":"42125","q":"1"}`,
			wantSym:   "BTCUSDT",
			wantPrice: "42125",
			wantTime:  1700000002000,
		},
		{
			name:    "subscription ack dropped",
			raw:     `{"result":null,"id":1}`,
			wantErr: true,
		},
		{
			name:    "unknown event type",
			raw:     `{"e":"kline","E":1700000000000,"s":"BTCUSDT"}`,
			wantErr: true,
		},
		{
			name:    "malformed price",
			raw:     `{"e":"aggTrade","E":1700000000000,"s":"BTCUSDT","p":"not-a-number","T":1700000000000}`,
			wantErr: true,
		},
		{
			name:    "not json",
			raw:     `garbage`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tick, err := ParseTick([]byte(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseTick = %+v, want error", tick)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTick: %v", err)
			}
			if tick.Symbol != tt.wantSym {
				t.Errorf("symbol = %q, want %q", tick.Symbol, tt.wantSym)
			}
			want := decimal.RequireFromString(tt.wantPrice)
			if !tick.Price.Equal(want) {
				t.Errorf("price = %s, want %s", tick.Price, want)
			}
			if got := tick.EventTime.UnixMilli(); got != tt.wantTime {
				t.Errorf("event time = %d, want %d", got, tt.wantTime)
			}
		})
	}
}

func TestStreamName(t *testing.T) {
	if got := StreamName("BTCUSDT"); got != "btcusdt@aggTrade" {
		t.Errorf("StreamName = %q", got)
	}
}

func TestParseKline(t *testing.T) {
	raw := `[1700000000000,"42000.1","42100.9","41900.0","42050.5","123.456",1700000059999,"0",0,"0","0","0"]`
	var row []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &row); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}

	candle, err := parseKline(row)
	if err != nil {
		t.Fatalf("parseKline: %v", err)
	}
	if candle.OpenTime != time.UnixMilli(1700000000000) {
		t.Errorf("open time = %v", candle.OpenTime)
	}
	if !candle.Close.Equal(decimal.RequireFromString("42050.5")) {
		t.Errorf("close = %s, want 42050.5", candle.Close)
	}
	if !candle.Volume.Equal(decimal.RequireFromString("123.456")) {
		t.Errorf("volume = %s, want 123.456", candle.Volume)
	}

	t.Run("short row rejected", func(t *testing.T) {
		if _, err := parseKline(row[:3]); err == nil {
			t.Error("expected error for short row")
		}
	})
}
