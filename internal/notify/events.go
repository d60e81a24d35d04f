package notify

// Event names raised by the game machine. Config files list these under
// notify.events to choose which alerts reach the senders.
const (
	EventRoundVoided      = "round_voided"
	EventSettlementFailed = "settlement_failed"
	EventCreditFailed     = "credit_failed"
)
