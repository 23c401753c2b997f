package domain

import "time"

// PositionStatus tracks the lifecycle of a position. Transitions are one-way:
// an active position becomes closed or liquidated and never reopens.
type PositionStatus string

const (
	PositionStatusActive     PositionStatus = "active"
	PositionStatusClosed     PositionStatus = "closed"
	PositionStatusLiquidated PositionStatus = "liquidated"
)

// DefaultTrailingStopPct is the per-position trailing-stop distance applied
// when a buy signal does not specify one.
const DefaultTrailingStopPct = 20.0

// Position represents an open (or formerly open) stake in a token, tracked
// from entry to exit.
//
// Amount is the raw on-chain unit count for the token, NOT normalized by the
// token's decimals. Trigger math works on percentages, which are
// scale-invariant, so normalization happens only at display and aggregation
// boundaries.
type Position struct {
	ID              string
	TokenAddress    string
	Amount          float64
	EntryPrice      float64
	CurrentPrice    *float64 // nil until the first price refresh
	HighestPrice    float64  // running peak, never decreases; >= EntryPrice
	LastUpdated     time.Time
	ProfitLoss      float64
	Status          PositionStatus
	TrailingStopPct float64
	ExitTime        *time.Time
}

// Active reports whether the position is still open.
func (p Position) Active() bool {
	return p.Status == PositionStatusActive
}

// LastPct returns the last cached profit/loss percentage for the position.
// The second return value is false when no price has been observed yet.
func (p Position) LastPct() (float64, bool) {
	if p.CurrentPrice == nil {
		return 0, false
	}
	entryValue := p.Amount * p.EntryPrice
	if entryValue == 0 {
		return 0, true
	}
	currentValue := p.Amount * *p.CurrentPrice
	return (currentValue - entryValue) / entryValue * 100, true
}
