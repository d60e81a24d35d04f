package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/updowngame/updown/internal/domain"
)

// RoundService defines the methods the round handler requires from the
// service layer. It is declared locally so the handler package does not
// depend on the concrete service implementation.
type RoundService interface {
	CurrentSnapshot(ctx context.Context, symbol string) (domain.RoundSnapshot, error)
	GetRound(ctx context.Context, id uuid.UUID) (domain.Round, error)
	ListSettled(ctx context.Context, opts domain.ListOpts) ([]domain.Round, error)
	CountRounds(ctx context.Context) (int64, error)
	RoundBets(ctx context.Context, roundID uuid.UUID) ([]domain.Bet, error)
}

// RoundHandler serves round-related HTTP endpoints.
type RoundHandler struct {
	rounds RoundService
	symbol string
	logger *slog.Logger
}

// NewRoundHandler creates a RoundHandler for the given symbol.
func NewRoundHandler(rounds RoundService, symbol string, logger *slog.Logger) *RoundHandler {
	return &RoundHandler{
		rounds: rounds,
		symbol: symbol,
		logger: logger,
	}
}

// CurrentRound returns the live round snapshot.
// GET /api/round
func (h *RoundHandler) CurrentRound(w http.ResponseWriter, r *http.Request) {
	snap, err := h.rounds.CurrentSnapshot(r.Context(), h.symbol)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no active round")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: current round failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get current round")
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// listRoundsResponse wraps the history endpoint output with metadata.
type listRoundsResponse struct {
	Rounds []roundView `json:"rounds"`
	Total  int64       `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// roundView is the JSON shape of a settled round.
type roundView struct {
	ID            uuid.UUID      `json:"id"`
	Symbol        string         `json:"symbol"`
	Outcome       domain.Outcome `json:"outcome"`
	PriceDegraded bool           `json:"price_degraded,omitempty"`
	LockedPrice   string         `json:"locked_price,omitempty"`
	ClosedPrice   string         `json:"closed_price,omitempty"`
	UpTotal       string         `json:"up_total"`
	DownTotal     string         `json:"down_total"`
	TotalPool     string         `json:"total_pool"`
	TotalPayout   string         `json:"total_payout"`
	PlatformFee   string         `json:"platform_fee"`
	NetProfit     string         `json:"net_profit"`
	StartTime     string         `json:"start_time"`
	SettledAt     string         `json:"settled_at,omitempty"`
}

func toRoundView(r domain.Round) roundView {
	v := roundView{
		ID:            r.ID,
		Symbol:        r.Symbol,
		Outcome:       r.Outcome,
		PriceDegraded: r.PriceDegraded,
		UpTotal:       r.Pool.UpTotal.String(),
		DownTotal:     r.Pool.DownTotal.String(),
		TotalPool:     r.Pool.TotalPool.String(),
		TotalPayout:   r.TotalPayout.String(),
		PlatformFee:   r.PlatformFee.String(),
		NetProfit:     r.NetProfit.String(),
		StartTime:     r.StartTime.UTC().Format(timeLayout),
	}
	if r.LockedPrice != nil {
		v.LockedPrice = r.LockedPrice.String()
	}
	if r.ClosedPrice != nil {
		v.ClosedPrice = r.ClosedPrice.String()
	}
	if r.SettledAt != nil {
		v.SettledAt = r.SettledAt.UTC().Format(timeLayout)
	}
	return v
}

// ListRounds returns settled round history with pagination.
// GET /api/rounds?limit=50&offset=0
func (h *RoundHandler) ListRounds(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	rounds, err := h.rounds.ListSettled(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list rounds failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list rounds")
		return
	}

	total, err := h.rounds.CountRounds(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: count rounds failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to count rounds")
		return
	}

	views := make([]roundView, 0, len(rounds))
	for _, round := range rounds {
		views = append(views, toRoundView(round))
	}

	writeJSON(w, http.StatusOK, listRoundsResponse{
		Rounds: views,
		Total:  total,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// GetRound returns a single round with its bets.
// GET /api/rounds/{id}
func (h *RoundHandler) GetRound(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(pathParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid round id")
		return
	}

	round, err := h.rounds.GetRound(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "round not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get round failed",
			slog.String("round_id", id.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get round")
		return
	}

	bets, err := h.rounds.RoundBets(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: round bets failed",
			slog.String("round_id", id.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get round bets")
		return
	}

	betViews := make([]betView, 0, len(bets))
	for _, b := range bets {
		betViews = append(betViews, toBetView(b))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"round": toRoundView(round),
		"bets":  betViews,
	})
}
