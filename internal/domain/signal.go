package domain

import "time"

// SignalType indicates the direction a signal requests.
type SignalType string

const (
	SignalTypeBuy  SignalType = "buy"
	SignalTypeSell SignalType = "sell"
)

// BuySignal is produced upstream (chat ingestion, signal extraction) and
// consumed only by the executor. The core treats its contents as opaque
// beyond the fields it needs to size and place the entry.
type BuySignal struct {
	ID           string // UUID for dedup
	TokenAddress string
	Type         SignalType
	Price        float64 // price observed by the signal source, advisory only
	RiskLevel    string  // "low", "medium", "high"
	Confidence   float64 // 0..1
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// Expired reports whether the signal is past its expiry at the given time.
// Signals without an expiry never expire.
func (s BuySignal) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
