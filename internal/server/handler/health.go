package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/updowngame/updown/internal/domain"
)

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	feedStatus func() domain.FeedStatus
	logger     *slog.Logger
}

// NewHealthHandler creates a HealthHandler. feedStatus may be nil when the
// process does not own a price feed.
func NewHealthHandler(feedStatus func() domain.FeedStatus, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{feedStatus: feedStatus, logger: logger}
}

// HealthCheck responds with a JSON status including the feed connection
// state when this process owns the feed.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if h.feedStatus != nil {
		st := h.feedStatus()
		body["feed"] = map[string]any{
			"connected":    st.Connected,
			"last_tick_at": st.LastTickAt.UTC().Format(time.RFC3339Nano),
			"subscribers":  st.Subscribers,
			"reconnects":   st.Reconnects,
		}
	}

	writeJSON(w, http.StatusOK, body)
}
