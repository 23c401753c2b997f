package domain

import "time"

// TradeStatus tracks the trade record lifecycle.
type TradeStatus string

const (
	TradeStatusPending  TradeStatus = "pending"
	TradeStatusExecuted TradeStatus = "executed"
	TradeStatusFailed   TradeStatus = "failed"
	TradeStatusClosed   TradeStatus = "closed"
)

// Trade is an append-only record of a completed entry or exit. Exactly one
// closed Trade row is written per position close, inside the same transaction
// that flips the position's status.
type Trade struct {
	ID           string
	TokenAddress string
	SignalID     string // originating buy signal; opaque outside this core
	EntryPrice   float64
	ExitPrice    *float64
	PositionSize float64
	EntryTime    time.Time
	ExitTime     *time.Time
	ProfitLoss   float64
	Status       TradeStatus
	TxID         string
}
