package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// PositionUpdate carries the fields refreshed on every monitor pass. The
// zero-value pointer fields are left untouched by the store.
type PositionUpdate struct {
	CurrentPrice *float64
	HighestPrice *float64
	ProfitLoss   *float64
	LastUpdated  *time.Time
}

// PositionClose describes the terminal state written by CloseAtomically.
type PositionClose struct {
	PositionID string
	Status     PositionStatus // closed or liquidated
	ExitPrice  float64
	ExitTime   time.Time
	ProfitLoss float64
}

// PositionStore persists positions. At most one active position exists per
// token address; Create enforces this and callers rely on it.
type PositionStore interface {
	Create(ctx context.Context, pos Position) error
	GetByID(ctx context.Context, id string) (Position, error)
	// GetActiveByToken returns the single active position for the token, or
	// ErrNotFound when none is open.
	GetActiveByToken(ctx context.Context, tokenAddress string) (Position, error)
	ListActive(ctx context.Context) ([]Position, error)
	Update(ctx context.Context, id string, upd PositionUpdate) error
	// SetTrailingStopPct adjusts the trailing-stop distance on an open
	// position.
	SetTrailingStopPct(ctx context.Context, id string, pct float64) error
	// CloseAtomically writes the Trade insert, the position status/exit-time
	// flip, and the final price update as one transaction. If any step fails
	// everything rolls back and the position stays active. Closing a position
	// that is no longer active returns ErrPositionClosed.
	CloseAtomically(ctx context.Context, close PositionClose, trade Trade) error
	ListHistory(ctx context.Context, opts ListOpts) ([]Position, error)
}

// TradeStore persists the append-only trade history.
type TradeStore interface {
	Create(ctx context.Context, trade Trade) error
	ListByToken(ctx context.Context, tokenAddress string, opts ListOpts) ([]Trade, error)
	// SumClosedPnL returns cumulative realized profit/loss across all closed
	// trades.
	SumClosedPnL(ctx context.Context) (float64, error)
	ListClosedBefore(ctx context.Context, before time.Time) ([]Trade, error)
	DeleteClosedBefore(ctx context.Context, before time.Time) (int64, error)
}

// BalanceStore persists portfolio valuation snapshots.
type BalanceStore interface {
	Append(ctx context.Context, snap BalanceSnapshot) error
	ListRange(ctx context.Context, since, until time.Time) ([]BalanceSnapshot, error)
	ListBefore(ctx context.Context, before time.Time) ([]BalanceSnapshot, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
