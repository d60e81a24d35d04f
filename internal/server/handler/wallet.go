package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"
)

// WalletService defines the methods the wallet handler requires from the
// service layer.
type WalletService interface {
	Balance(ctx context.Context, userID string) (decimal.Decimal, error)
	Deposit(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error)
}

// WalletHandler serves wallet-related HTTP endpoints.
type WalletHandler struct {
	wallets WalletService
	logger  *slog.Logger
}

// NewWalletHandler creates a WalletHandler.
func NewWalletHandler(wallets WalletService, logger *slog.Logger) *WalletHandler {
	return &WalletHandler{wallets: wallets, logger: logger}
}

// GetBalance returns a user's wallet balance.
// GET /api/wallet/{userId}
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := pathParam(r, "userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing user id")
		return
	}

	balance, err := h.wallets.Balance(r.Context(), userID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: get balance failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get balance")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"user_id": userID,
		"balance": balance.String(),
	})
}

// depositRequest is the JSON body of POST /api/wallet/{userId}/deposit.
type depositRequest struct {
	Amount string `json:"amount"`
}

// Deposit credits a user's wallet.
// POST /api/wallet/{userId}/deposit
func (h *WalletHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	userID := pathParam(r, "userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing user id")
		return
	}

	var req depositRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.Sign() <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be a positive decimal string")
		return
	}

	balance, err := h.wallets.Deposit(r.Context(), userID, amount)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: deposit failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to deposit")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"user_id": userID,
		"balance": balance.String(),
	})
}
