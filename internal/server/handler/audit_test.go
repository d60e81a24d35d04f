package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/updowngame/updown/internal/domain"
)

type fakeAuditStore struct {
	entries []domain.AuditEntry
	opts    domain.ListOpts
	err     error
}

func (f *fakeAuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	f.opts = opts
	return f.entries, f.err
}

func TestListAuditReturnsEntries(t *testing.T) {
	store := &fakeAuditStore{entries: []domain.AuditEntry{
		{
			ID:        7,
			Event:     "round_price_degraded",
			Detail:    map[string]any{"boundary": "betting_end"},
			CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	}}
	h := NewAuditHandler(store, slog.Default())

	req := httptest.NewRequest(http.MethodGet, "/api/audit", nil)
	rr := httptest.NewRecorder()
	h.ListAudit(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var body struct {
		Entries []struct {
			ID    int64  `json:"id"`
			Event string `json:"event"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Entries) != 1 || body.Entries[0].Event != "round_price_degraded" {
		t.Errorf("entries = %+v", body.Entries)
	}
	if store.opts.Limit != 50 {
		t.Errorf("default limit = %d, want 50", store.opts.Limit)
	}
}

func TestListAuditParsesTimeFilters(t *testing.T) {
	store := &fakeAuditStore{}
	h := NewAuditHandler(store, slog.Default())

	req := httptest.NewRequest(http.MethodGet,
		"/api/audit?since=2026-03-01T00:00:00Z&until=2026-03-02T00:00:00Z&limit=10", nil)
	rr := httptest.NewRecorder()
	h.ListAudit(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if store.opts.Since == nil || !store.opts.Since.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("since = %v", store.opts.Since)
	}
	if store.opts.Until == nil || !store.opts.Until.Equal(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("until = %v", store.opts.Until)
	}
	if store.opts.Limit != 10 {
		t.Errorf("limit = %d, want 10", store.opts.Limit)
	}
}

func TestListAuditRejectsBadTimestamp(t *testing.T) {
	h := NewAuditHandler(&fakeAuditStore{}, slog.Default())

	req := httptest.NewRequest(http.MethodGet, "/api/audit?since=yesterday", nil)
	rr := httptest.NewRecorder()
	h.ListAudit(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}
