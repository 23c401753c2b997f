// Package executor turns decisions into trades: it consumes buy signals,
// opens positions, and runs the swap pipeline that closes them.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/soltraderbot/internal/domain"
)

// CloseReason records why a position is being sold.
type CloseReason string

const (
	ReasonStopLoss     CloseReason = "stop_loss"
	ReasonTrailingStop CloseReason = "trailing_stop"
	ReasonManual       CloseReason = "manual"
)

// Notifier delivers operator alerts for position lifecycle events.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config holds the executor's trading parameters.
type Config struct {
	// BaseMint is the mint swaps are priced against (wrapped SOL).
	BaseMint string
	// PositionSize is the raw base-unit amount spent per entry.
	PositionSize float64
	// MaxRetries bounds swap attempts per close. Defaults to 3.
	MaxRetries int
	// RetryDelay is the per-attempt backoff unit for ordinary swap failures.
	// Defaults to 2s; attempt N waits N times this.
	RetryDelay time.Duration
	// StaleRetryDelay is the backoff unit when the transaction's blockhash
	// expired before landing. Defaults to 5s; the longer wait lets the chain
	// advance before re-submitting.
	StaleRetryDelay time.Duration
	// LockTTL caps how long a per-token close lock is held. Defaults to 60s.
	LockTTL time.Duration
	// SignalTTL is the fallback expiry applied to signals that carry none.
	// Zero means such signals never expire.
	SignalTTL time.Duration
	// TrailingStopPct is the trailing-stop distance given to new positions.
	// Defaults to domain.DefaultTrailingStopPct.
	TrailingStopPct float64
}

func (c *Config) applyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.StaleRetryDelay == 0 {
		c.StaleRetryDelay = 5 * time.Second
	}
	if c.LockTTL == 0 {
		c.LockTTL = 60 * time.Second
	}
	if c.TrailingStopPct <= 0 {
		c.TrailingStopPct = domain.DefaultTrailingStopPct
	}
}

// Executor reads buy signals from a channel, applies deduplication and expiry
// checks, and opens positions. It also owns the close pipeline used by the
// position manager and the manual close endpoint.
type Executor struct {
	cfg       Config
	positions domain.PositionStore
	trades    domain.TradeStore
	oracle    domain.PriceOracle
	wallet    domain.WalletClient
	prices    domain.PriceCache
	locks     domain.LockManager
	notifier  Notifier
	signalCh  <-chan domain.BuySignal
	dedup     *Dedup
	logger    *slog.Logger

	cleanupInterval time.Duration
}

// New creates an Executor. notifier may be nil; signalCh may be nil when the
// executor is used only for closing (monitor mode).
func New(
	cfg Config,
	positions domain.PositionStore,
	trades domain.TradeStore,
	oracle domain.PriceOracle,
	wallet domain.WalletClient,
	prices domain.PriceCache,
	locks domain.LockManager,
	notifier Notifier,
	signalCh <-chan domain.BuySignal,
	logger *slog.Logger,
) *Executor {
	cfg.applyDefaults()
	return &Executor{
		cfg:             cfg,
		positions:       positions,
		trades:          trades,
		oracle:          oracle,
		wallet:          wallet,
		prices:          prices,
		locks:           locks,
		notifier:        notifier,
		signalCh:        signalCh,
		dedup:           NewDedup(2 * time.Minute),
		logger:          logger.With(slog.String("component", "executor")),
		cleanupInterval: 30 * time.Second,
	}
}

// Run starts the executor's signal loop. It processes signals until the
// context is cancelled, at which point it drains any remaining signals from
// the channel and returns.
func (e *Executor) Run(ctx context.Context) error {
	e.logger.Info("executor started")
	defer e.logger.Info("executor stopped")

	cleanupTicker := time.NewTicker(e.cleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.drain()
			return ctx.Err()

		case sig, ok := <-e.signalCh:
			if !ok {
				return nil
			}
			e.process(ctx, sig)

		case <-cleanupTicker.C:
			e.dedup.Cleanup()
		}
	}
}

// process handles a single buy signal. Errors are logged, never propagated;
// one bad signal must not take down the loop.
func (e *Executor) process(ctx context.Context, sig domain.BuySignal) {
	log := e.logger.With(
		slog.String("signal_id", sig.ID),
		slog.String("token", sig.TokenAddress),
	)

	if sig.Type != domain.SignalTypeBuy {
		log.Debug("ignoring non-buy signal", slog.String("type", string(sig.Type)))
		return
	}

	if e.dedup.IsDuplicate(sig.ID) {
		log.Debug("signal deduplicated, skipping")
		return
	}

	now := time.Now().UTC()
	if sig.ExpiresAt.IsZero() && e.cfg.SignalTTL > 0 && !sig.CreatedAt.IsZero() {
		sig.ExpiresAt = sig.CreatedAt.Add(e.cfg.SignalTTL)
	}
	if sig.Expired(now) {
		log.Warn("signal expired, skipping", slog.Time("expires_at", sig.ExpiresAt))
		return
	}

	if _, err := e.ExecuteBuy(ctx, sig); err != nil {
		log.Error("buy failed", slog.String("error", err.Error()))
	}
}

// drain discards signals still queued at shutdown so upstream senders do not
// block.
func (e *Executor) drain() {
	dropped := 0
	for {
		select {
		case _, ok := <-e.signalCh:
			if !ok {
				return
			}
			dropped++
		default:
			if dropped > 0 {
				e.logger.Warn("dropped queued signals at shutdown", slog.Int("count", dropped))
			}
			return
		}
	}
}

// ExecuteBuy opens a position for a buy signal: quote the configured position
// size against the token, execute the swap, and record the position and trade.
// A token that already has an active position is skipped.
func (e *Executor) ExecuteBuy(ctx context.Context, sig domain.BuySignal) (domain.Position, error) {
	log := e.logger.With(
		slog.String("signal_id", sig.ID),
		slog.String("token", sig.TokenAddress),
	)

	_, err := e.positions.GetActiveByToken(ctx, sig.TokenAddress)
	if err == nil {
		log.Info("active position exists, skipping buy")
		return domain.Position{}, domain.ErrAlreadyExists
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Position{}, fmt.Errorf("executor: check active position: %w", err)
	}

	quote, err := e.oracle.Quote(ctx, e.cfg.BaseMint, sig.TokenAddress, e.cfg.PositionSize)
	if err != nil {
		return domain.Position{}, fmt.Errorf("executor: quote buy: %w", err)
	}

	result, err := e.executeSwapWithRetry(ctx, quote, log)
	if err != nil {
		e.notify(ctx, "swap_failed", "Buy failed",
			fmt.Sprintf("token %s: %v", sig.TokenAddress, err))
		return domain.Position{}, err
	}

	// The fill itself is the execution price; the oracle is only a fallback
	// for fills that report no output amount.
	now := time.Now().UTC()
	var entryPrice float64
	if result.OutputAmount > 0 {
		entryPrice = result.InputAmount / result.OutputAmount
	} else {
		entryPrice, err = e.oracle.CurrentPrice(ctx, sig.TokenAddress)
		if err != nil {
			return domain.Position{}, fmt.Errorf("executor: no entry price for %s: %w", sig.TokenAddress, err)
		}
	}

	pos := domain.Position{
		ID:              uuid.New().String(),
		TokenAddress:    sig.TokenAddress,
		Amount:          result.OutputAmount,
		EntryPrice:      entryPrice,
		CurrentPrice:    &entryPrice,
		HighestPrice:    entryPrice,
		LastUpdated:     now,
		Status:          domain.PositionStatusActive,
		TrailingStopPct: e.cfg.TrailingStopPct,
	}
	if err := e.positions.Create(ctx, pos); err != nil {
		return domain.Position{}, fmt.Errorf("executor: create position: %w", err)
	}

	trade := domain.Trade{
		ID:           uuid.New().String(),
		TokenAddress: sig.TokenAddress,
		SignalID:     sig.ID,
		EntryPrice:   entryPrice,
		PositionSize: result.OutputAmount,
		EntryTime:    now,
		Status:       domain.TradeStatusExecuted,
		TxID:         result.TxID,
	}
	if err := e.trades.Create(ctx, trade); err != nil {
		// The position exists; the trade row is bookkeeping.
		log.Error("record buy trade failed", slog.String("error", err.Error()))
	}

	if e.prices != nil {
		if err := e.prices.SetPrice(ctx, sig.TokenAddress, entryPrice, now); err != nil {
			log.Warn("cache entry price failed", slog.String("error", err.Error()))
		}
	}

	log.Info("position opened",
		slog.String("position_id", pos.ID),
		slog.Float64("amount", pos.Amount),
		slog.Float64("entry_price", entryPrice),
		slog.String("tx_id", result.TxID),
	)
	e.notify(ctx, "position_opened", "Position opened",
		fmt.Sprintf("token %s amount %.0f entry %.8f", sig.TokenAddress, pos.Amount, entryPrice))

	return pos, nil
}

// ClosePosition sells a position back to the base mint and records the exit.
//
// The pipeline re-reads the position under a per-token lock, fetches a live
// price, reads the on-chain balance (the source of truth for how much can
// actually be sold), quotes exactly that balance, executes the swap with
// bounded retries, and commits the trade and status flip in one transaction.
// A position that is no longer active returns domain.ErrPositionClosed; the
// caller can treat that as an already-done close.
func (e *Executor) ClosePosition(ctx context.Context, positionID string, reason CloseReason) (domain.Trade, error) {
	pos, err := e.positions.GetByID(ctx, positionID)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("executor: load position %s: %w", positionID, err)
	}

	unlock, err := e.locks.Acquire(ctx, "close:"+pos.TokenAddress, e.cfg.LockTTL)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("executor: close %s: %w", positionID, err)
	}
	defer unlock()

	// Re-read under the lock: a concurrent close may have won the race.
	pos, err = e.positions.GetByID(ctx, positionID)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("executor: reload position %s: %w", positionID, err)
	}
	if !pos.Active() {
		return domain.Trade{}, domain.ErrPositionClosed
	}

	log := e.logger.With(
		slog.String("position_id", pos.ID),
		slog.String("token", pos.TokenAddress),
		slog.String("reason", string(reason)),
	)

	price, err := e.oracle.CurrentPrice(ctx, pos.TokenAddress)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("executor: close price %s: %w", pos.TokenAddress, err)
	}

	// The wallet, not the stored amount, decides how much can be sold; the
	// two drift through external transfers and partial fills.
	balance, err := e.wallet.TokenBalance(ctx, pos.TokenAddress)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("executor: on-chain balance %s: %w", pos.TokenAddress, err)
	}
	if balance <= 0 {
		log.Error("no on-chain balance to sell", slog.Float64("stored_amount", pos.Amount))
		return domain.Trade{}, fmt.Errorf("executor: close %s: %w", positionID, domain.ErrInsufficientBalance)
	}

	quote, err := e.oracle.Quote(ctx, pos.TokenAddress, e.cfg.BaseMint, balance)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("executor: quote close: %w", err)
	}

	result, err := e.executeSwapWithRetry(ctx, quote, log)
	if err != nil {
		e.notify(ctx, "swap_failed", "Close failed",
			fmt.Sprintf("position %s token %s: %v", pos.ID, pos.TokenAddress, err))
		return domain.Trade{}, err
	}

	// Realized P&L compares what the swap actually returned against what the
	// sold balance cost at entry.
	profitLoss := result.OutputAmount - balance*pos.EntryPrice
	now := time.Now().UTC()

	trade := domain.Trade{
		ID:           uuid.New().String(),
		TokenAddress: pos.TokenAddress,
		EntryPrice:   pos.EntryPrice,
		ExitPrice:    &price,
		PositionSize: balance,
		EntryTime:    pos.LastUpdated,
		ExitTime:     &now,
		ProfitLoss:   profitLoss,
		Status:       domain.TradeStatusClosed,
		TxID:         result.TxID,
	}
	close := domain.PositionClose{
		PositionID: pos.ID,
		Status:     domain.PositionStatusClosed,
		ExitPrice:  price,
		ExitTime:   now,
		ProfitLoss: profitLoss,
	}

	if err := e.positions.CloseAtomically(ctx, close, trade); err != nil {
		if errors.Is(err, domain.ErrPositionClosed) {
			return domain.Trade{}, err
		}
		return domain.Trade{}, fmt.Errorf("executor: commit close %s: %w", pos.ID, err)
	}

	log.Info("position closed",
		slog.Float64("exit_price", price),
		slog.Float64("profit_loss", profitLoss),
		slog.String("tx_id", result.TxID),
	)
	e.notify(ctx, string(reason), "Position closed",
		fmt.Sprintf("token %s reason %s pnl %.4f", pos.TokenAddress, reason, profitLoss))

	return trade, nil
}

// executeSwapWithRetry runs a swap with bounded retries. Stale-transaction
// failures wait longer between attempts than ordinary ones; both back off
// linearly with the attempt number.
func (e *Executor) executeSwapWithRetry(ctx context.Context, quote domain.Quote, log *slog.Logger) (domain.SwapResult, error) {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxRetries; attempt++ {
		result, err := e.oracle.ExecuteSwap(ctx, quote)
		if err == nil {
			return result, nil
		}
		lastErr = err

		log.Warn("swap attempt failed",
			slog.Int("attempt", attempt),
			slog.Int("max_retries", e.cfg.MaxRetries),
			slog.String("error", err.Error()),
		)

		if attempt == e.cfg.MaxRetries {
			break
		}

		delay := e.cfg.RetryDelay * time.Duration(attempt)
		if errors.Is(err, domain.ErrStaleTransaction) {
			delay = e.cfg.StaleRetryDelay * time.Duration(attempt)
		}
		select {
		case <-ctx.Done():
			return domain.SwapResult{}, ctx.Err()
		case <-time.After(delay):
		}
	}

	return domain.SwapResult{}, fmt.Errorf("executor: swap failed after %d attempts: %w: %w",
		e.cfg.MaxRetries, domain.ErrSwapFailed, lastErr)
}

func (e *Executor) notify(ctx context.Context, event, title, message string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, event, title, message); err != nil {
		e.logger.Warn("notify failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
