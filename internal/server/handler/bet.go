package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/updowngame/updown/internal/domain"
)

// BetService defines the methods the bet handler requires from the service
// layer.
type BetService interface {
	PlaceBet(ctx context.Context, userID string, dir domain.Direction, amount decimal.Decimal) (domain.Bet, error)
	UserBets(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Bet, error)
}

// BetHandler serves bet-related HTTP endpoints.
type BetHandler struct {
	bets   BetService
	logger *slog.Logger
}

// NewBetHandler creates a BetHandler.
func NewBetHandler(bets BetService, logger *slog.Logger) *BetHandler {
	return &BetHandler{bets: bets, logger: logger}
}

// placeBetRequest is the JSON body of POST /api/bets.
type placeBetRequest struct {
	UserID    string `json:"user_id"`
	Direction string `json:"direction"`
	Amount    string `json:"amount"`
}

// betView is the JSON shape of a bet.
type betView struct {
	ID        uuid.UUID        `json:"id"`
	RoundID   uuid.UUID        `json:"round_id"`
	UserID    string           `json:"user_id"`
	Direction domain.Direction `json:"direction"`
	Amount    string           `json:"amount"`
	PlacedAt  string           `json:"placed_at"`
}

func toBetView(b domain.Bet) betView {
	return betView{
		ID:        b.ID,
		RoundID:   b.RoundID,
		UserID:    b.UserID,
		Direction: b.Direction,
		Amount:    b.Amount.String(),
		PlacedAt:  b.PlacedAt.UTC().Format(time.RFC3339Nano),
	}
}

// PlaceBet places a bet on the active round.
// POST /api/bets
func (h *BetHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	var req placeBetRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "missing user_id")
		return
	}
	dir := domain.Direction(req.Direction)
	if !dir.Valid() {
		writeError(w, http.StatusBadRequest, "direction must be \"up\" or \"down\"")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.Sign() <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be a positive decimal string")
		return
	}

	bet, err := h.bets.PlaceBet(r.Context(), req.UserID, dir, amount)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidPhase):
			writeError(w, http.StatusConflict, "betting is closed for the current round")
		case errors.Is(err, domain.ErrDuplicateBet):
			writeError(w, http.StatusConflict, "user already bet in this round")
		case errors.Is(err, domain.ErrBelowMinimum):
			writeError(w, http.StatusBadRequest, "amount is below the minimum bet")
		case errors.Is(err, domain.ErrInsufficientBalance):
			writeError(w, http.StatusPaymentRequired, "insufficient balance")
		default:
			h.logger.ErrorContext(r.Context(), "handler: place bet failed",
				slog.String("user_id", req.UserID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to place bet")
		}
		return
	}

	writeJSON(w, http.StatusCreated, toBetView(bet))
}

// ListUserBets returns a user's bet history with pagination.
// GET /api/bets/{userId}?limit=50&offset=0
func (h *BetHandler) ListUserBets(w http.ResponseWriter, r *http.Request) {
	userID := pathParam(r, "userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing user id")
		return
	}

	opts := parseListOpts(r)
	bets, err := h.bets.UserBets(r.Context(), userID, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list user bets failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list bets")
		return
	}

	views := make([]betView, 0, len(bets))
	for _, b := range bets {
		views = append(views, toBetView(b))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"bets":   views,
		"limit":  opts.Limit,
		"offset": opts.Offset,
	})
}
