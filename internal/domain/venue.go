package domain

import "context"

// Quote is a priced, executable route for swapping one asset for another,
// obtained before executing a swap.
type Quote struct {
	InputMint  string
	OutputMint string
	InAmount   float64 // raw units of the input mint
	OutAmount  float64 // raw units of the output mint
	PriceImpct float64 // price impact in percent
	RoutePlan  string  // opaque serialized route, passed back on execution
}

// SwapResult is the outcome of an executed swap.
type SwapResult struct {
	TxID         string
	InputAmount  float64
	OutputAmount float64
}

// PriceOracle is the venue-side price and swap service. Every method may fail
// transiently; callers treat that as "retry next cycle" and never coerce a
// missing price to zero.
type PriceOracle interface {
	// CurrentPrice returns the live price for a token in base currency, or
	// ErrPriceUnavailable when the venue has no quote for it right now.
	CurrentPrice(ctx context.Context, tokenAddress string) (float64, error)
	Quote(ctx context.Context, inputMint, outputMint string, amount float64) (Quote, error)
	// ExecuteSwap signs and submits the quoted route. Stale-blockhash style
	// failures are reported wrapped in ErrStaleTransaction so callers can
	// back off longer before retrying.
	ExecuteSwap(ctx context.Context, quote Quote) (SwapResult, error)
}

// TokenInfoSource resolves token metadata from the venue's token registry.
type TokenInfoSource interface {
	// TokenInfo returns ErrNotFound for mints the registry does not know.
	TokenInfo(ctx context.Context, tokenAddress string) (TokenInfo, error)
}

// WalletClient exposes the wallet operations the core depends on. The
// on-chain balance is the source of truth at close time; the stored position
// amount can drift from it through external transfers or partial fills.
type WalletClient interface {
	Address() string
	// TokenBalance returns the wallet's raw-unit balance for the given mint.
	TokenBalance(ctx context.Context, mint string) (float64, error)
	// NativeBalance returns the wallet's base-currency balance.
	NativeBalance(ctx context.Context) (float64, error)
	SendTransaction(ctx context.Context, signedTx []byte) (string, error)
}
