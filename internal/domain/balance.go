package domain

import "time"

// BalanceSnapshot is an append-only portfolio valuation: the sum of priced
// active positions, the wallet's native-currency value, and cumulative
// realized profit/loss from closed trades. Snapshots are written on an
// independent (longer) period than position polling and are never mutated.
type BalanceSnapshot struct {
	ID                   int64
	Timestamp            time.Time
	TotalValue           float64
	ActivePositionsValue float64
	ProfitLoss           float64
	ProfitLossPct        float64
}
