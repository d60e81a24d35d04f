package domain

// Pub/sub channels shared between the game machine, the price feed wiring,
// and the client-facing WebSocket hub.
const (
	ChannelRound      = "round"
	ChannelPrice      = "price"
	ChannelSettlement = "settlement"
)
