package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Direction is the side of the pool a bet backs.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Valid reports whether d is one of the two supported directions.
func (d Direction) Valid() bool {
	return d == DirectionUp || d == DirectionDown
}

// Bet is a single user stake. Bets are created only during the Betting phase
// and are immutable afterwards. At most one bet per user per round.
type Bet struct {
	ID        uuid.UUID
	RoundID   uuid.UUID
	UserID    string
	Direction Direction
	Amount    decimal.Decimal
	PlacedAt  time.Time
}
