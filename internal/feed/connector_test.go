package feed

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/updowngame/updown/internal/domain"
	"github.com/shopspring/decimal"
)

func testConnector(t *testing.T, replay int) *Connector {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewConnector(Config{
		Symbol:       "BTCUSDT",
		ReplayBuffer: replay,
	}, logger)
}

func tickAt(price string, ts time.Time) domain.PriceTick {
	return domain.PriceTick{
		Symbol:    "BTCUSDT",
		Price:     decimal.RequireFromString(price),
		EventTime: ts,
	}
}

func TestDispatchOrderAndLatest(t *testing.T) {
	c := testConnector(t, 8)

	var got []string
	c.Subscribe(func(_ context.Context, tick domain.PriceTick) {
		got = append(got, tick.Price.String())
	})

	base := time.Now()
	for i, p := range []string{"100", "101.5", "99.25"} {
		c.dispatch(tickAt(p, base.Add(time.Duration(i)*time.Second)))
	}

	want := []string{"100", "101.5", "99.25"}
	if len(got) != len(want) {
		t.Fatalf("handler saw %d ticks, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tick %d: got %s, want %s", i, got[i], want[i])
		}
	}

	last, ok := c.LatestTick()
	if !ok || last.Price.String() != "99.25" {
		t.Errorf("LatestTick = %v, %v; want 99.25, true", last.Price, ok)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	c := testConnector(t, 8)

	var a, b int
	idA := c.Subscribe(func(context.Context, domain.PriceTick) { a++ })
	c.Subscribe(func(context.Context, domain.PriceTick) { b++ })

	c.dispatch(tickAt("100", time.Now()))
	c.Unsubscribe(idA)
	c.dispatch(tickAt("101", time.Now()))

	if a != 1 {
		t.Errorf("unsubscribed handler got %d ticks, want 1", a)
	}
	if b != 2 {
		t.Errorf("remaining handler got %d ticks, want 2", b)
	}
	if st := c.Status(); st.Subscribers != 1 {
		t.Errorf("Subscribers = %d, want 1", st.Subscribers)
	}
}

func TestRecentTicksRingBuffer(t *testing.T) {
	c := testConnector(t, 4)
	base := time.Now()

	// Nothing buffered yet.
	if got := c.RecentTicks(4); got != nil {
		t.Fatalf("RecentTicks on empty buffer = %v, want nil", got)
	}

	for i := 0; i < 6; i++ {
		c.dispatch(tickAt(decimal.NewFromInt(int64(100+i)).String(), base.Add(time.Duration(i)*time.Second)))
	}

	// Buffer holds the 4 newest; oldest two were evicted.
	got := c.RecentTicks(10)
	want := []string{"102", "103", "104", "105"}
	if len(got) != len(want) {
		t.Fatalf("RecentTicks returned %d ticks, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Price.String() != want[i] {
			t.Errorf("tick %d: got %s, want %s", i, got[i].Price, want[i])
		}
	}

	// A smaller window returns the newest slice of the buffer.
	got = c.RecentTicks(2)
	if len(got) != 2 || got[0].Price.String() != "104" || got[1].Price.String() != "105" {
		t.Errorf("RecentTicks(2) = %v", got)
	}
}

func TestHandleFrameDropsMalformed(t *testing.T) {
	c := testConnector(t, 4)

	var calls int
	c.Subscribe(func(context.Context, domain.PriceTick) { calls++ })

	c.handleFrame([]byte(`not json`))
	c.handleFrame([]byte(`{"result":null,"id":1}`))
	c.handleFrame([]byte(`{"e":"aggTrade","E":1700000000000,"s":"BTCUSDT","p":"100.5","q":"1","T":1700000000000}`))

	if calls != 1 {
		t.Errorf("handler called %d times, want 1 (malformed frames dropped)", calls)
	}
	if _, ok := c.LatestTick(); !ok {
		t.Error("valid frame did not update latest tick")
	}
}

func TestStatusReflectsFrames(t *testing.T) {
	c := testConnector(t, 4)

	st := c.Status()
	if st.Connected || st.Reconnects != 0 {
		t.Fatalf("fresh connector status = %+v", st)
	}

	before := time.Now()
	c.handleFrame([]byte(`{"e":"aggTrade","E":1700000000000,"s":"BTCUSDT","p":"100.5","q":"1","T":1700000000000}`))

	st = c.Status()
	if st.LastTickAt.Before(before) {
		t.Errorf("LastTickAt = %v, want >= %v", st.LastTickAt, before)
	}
}

func TestStopWithoutStart(t *testing.T) {
	c := testConnector(t, 4)
	c.Stop()
	c.Stop()
}
