package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrInvalidPhase        = errors.New("round is not accepting bets")
	ErrBelowMinimum        = errors.New("bet amount below minimum")
	ErrDuplicateBet        = errors.New("user already has a bet in this round")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrDebitFailed         = errors.New("ledger debit failed")
	ErrNoPrice             = errors.New("no live price available")
	ErrRoundDegraded       = errors.New("round is price-degraded")
	ErrWSDisconnect        = errors.New("websocket disconnected")
	ErrLockHeld            = errors.New("lock already held")
	ErrRateLimited         = errors.New("rate limited")
)
