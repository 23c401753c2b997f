package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest observed prices. Entries
// expire after the configured TTL so a stale price is indistinguishable from
// a missing one.
type PriceCache interface {
	SetPrice(ctx context.Context, tokenAddress string, price float64, ts time.Time) error
	// GetPrice returns ErrNotFound for unknown or expired tokens.
	GetPrice(ctx context.Context, tokenAddress string) (float64, time.Time, error)
	GetPrices(ctx context.Context, tokenAddresses []string) (map[string]float64, error)
}

// TokenInfo is the cached metadata for a token mint.
type TokenInfo struct {
	Address  string
	Symbol   string
	Name     string
	Decimals int
}

// TokenInfoCache caches token metadata looked up from the venue.
type TokenInfoCache interface {
	Set(ctx context.Context, info TokenInfo) error
	Get(ctx context.Context, tokenAddress string) (TokenInfo, error)
	Invalidate(ctx context.Context, tokenAddress string) error
}

// LockManager provides distributed locking. The monitor loop and any manual
// close request serialize on a per-token lock so a position can never be sold
// twice.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams. Buy signals arrive on it
// and position lifecycle events are published back out.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
