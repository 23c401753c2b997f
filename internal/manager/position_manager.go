// Package manager runs the monitoring loops: periodic position refresh with
// exit-trigger evaluation, and independent balance snapshots.
package manager

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/soltraderbot/internal/domain"
	"github.com/alanyoungcy/soltraderbot/internal/executor"
	"github.com/alanyoungcy/soltraderbot/internal/risk"
)

// Closer executes position closes. Implemented by the executor.
type Closer interface {
	ClosePosition(ctx context.Context, positionID string, reason executor.CloseReason) (domain.Trade, error)
}

// Manager drives the monitor and snapshot loops over all active positions.
type Manager struct {
	positions domain.PositionStore
	trades    domain.TradeStore
	balances  domain.BalanceStore
	prices    domain.PriceCache
	oracle    domain.PriceOracle
	wallet    domain.WalletClient
	closer    Closer
	bus       domain.SignalBus

	pollDur     time.Duration
	snapshotDur time.Duration
	logger      *slog.Logger
}

// New creates a Manager. bus may be nil to disable event publishing.
func New(
	positions domain.PositionStore,
	trades domain.TradeStore,
	balances domain.BalanceStore,
	prices domain.PriceCache,
	oracle domain.PriceOracle,
	wallet domain.WalletClient,
	closer Closer,
	bus domain.SignalBus,
	pollInterval, snapshotInterval time.Duration,
	logger *slog.Logger,
) *Manager {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Minute
	}
	if snapshotInterval <= 0 {
		snapshotInterval = time.Hour
	}
	return &Manager{
		positions:   positions,
		trades:      trades,
		balances:    balances,
		prices:      prices,
		oracle:      oracle,
		wallet:      wallet,
		closer:      closer,
		bus:         bus,
		pollDur:     pollInterval,
		snapshotDur: snapshotInterval,
		logger:      logger.With(slog.String("component", "position_manager")),
	}
}

// Run polls active positions on the configured interval until the context is
// cancelled. Call in a goroutine.
func (m *Manager) Run(ctx context.Context) error {
	m.logger.Info("position monitor started", slog.Duration("interval", m.pollDur))
	defer m.logger.Info("position monitor stopped")

	ticker := time.NewTicker(m.pollDur)
	defer ticker.Stop()

	// First pass runs immediately; waiting a full interval after startup
	// would leave triggers unchecked for that long.
	if err := m.monitorPass(ctx); err != nil {
		m.logger.ErrorContext(ctx, "monitor pass failed", slog.String("error", err.Error()))
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.monitorPass(ctx); err != nil {
				m.logger.ErrorContext(ctx, "monitor pass failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RunSnapshots writes balance snapshots on its own timer, independent of the
// position polling cadence. Call in a goroutine.
func (m *Manager) RunSnapshots(ctx context.Context) error {
	m.logger.Info("balance snapshots started", slog.Duration("interval", m.snapshotDur))
	defer m.logger.Info("balance snapshots stopped")

	ticker := time.NewTicker(m.snapshotDur)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.snapshotPass(ctx); err != nil {
				m.logger.ErrorContext(ctx, "snapshot failed", slog.String("error", err.Error()))
			}
		}
	}
}

// monitorPass refreshes every active position once. High-priority positions
// (near a threshold, or never priced) go first; within each band processing
// is strictly sequential so one pass never races itself.
func (m *Manager) monitorPass(ctx context.Context) error {
	active, err := m.positions.ListActive(ctx)
	if err != nil {
		return err
	}
	if len(active) == 0 {
		return nil
	}

	tokens := make([]string, 0, len(active))
	for _, pos := range active {
		tokens = append(tokens, pos.TokenAddress)
	}
	cached, err := m.prices.GetPrices(ctx, tokens)
	if err != nil {
		m.logger.WarnContext(ctx, "price cache read failed", slog.String("error", err.Error()))
		cached = map[string]float64{}
	}

	var high, regular []domain.Position
	for _, pos := range active {
		if risk.Classify(pos) == risk.PriorityHigh {
			high = append(high, pos)
		} else {
			regular = append(regular, pos)
		}
	}

	for _, pos := range append(high, regular...) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.refreshPosition(ctx, pos, cached)
	}
	return nil
}

// refreshPosition observes one price, persists the refreshed state, and fires
// the close pipeline when a trigger trips. Failures are logged and isolated;
// a broken position never blocks the rest of the pass.
func (m *Manager) refreshPosition(ctx context.Context, pos domain.Position, cached map[string]float64) {
	log := m.logger.With(
		slog.String("position_id", pos.ID),
		slog.String("token", pos.TokenAddress),
	)

	price, ok := cached[pos.TokenAddress]
	if !ok {
		live, err := m.oracle.CurrentPrice(ctx, pos.TokenAddress)
		if err != nil {
			// No observation this pass. The position keeps its previous
			// state untouched; a missing price is never treated as zero.
			log.WarnContext(ctx, "price unavailable, skipping",
				slog.String("error", err.Error()),
			)
			return
		}
		price = live
		if err := m.prices.SetPrice(ctx, pos.TokenAddress, price, time.Now().UTC()); err != nil {
			log.WarnContext(ctx, "price cache write failed", slog.String("error", err.Error()))
		}
	}

	trigger, highest := risk.Evaluate(pos, price)
	pl, pct := risk.ProfitLoss(pos.Amount, pos.EntryPrice, price)
	now := time.Now().UTC()

	upd := domain.PositionUpdate{
		CurrentPrice: &price,
		HighestPrice: &highest,
		ProfitLoss:   &pl,
		LastUpdated:  &now,
	}
	if err := m.positions.Update(ctx, pos.ID, upd); err != nil {
		log.ErrorContext(ctx, "position update failed", slog.String("error", err.Error()))
		return
	}

	log.DebugContext(ctx, "position refreshed",
		slog.Float64("price", price),
		slog.Float64("pct", pct),
		slog.String("trigger", trigger.String()),
	)

	if trigger == risk.TriggerNone {
		return
	}

	reason := executor.ReasonTrailingStop
	if trigger == risk.TriggerStopLoss {
		reason = executor.ReasonStopLoss
	}

	trade, err := m.closer.ClosePosition(ctx, pos.ID, reason)
	if err != nil {
		if errors.Is(err, domain.ErrPositionClosed) || errors.Is(err, domain.ErrLockHeld) {
			log.InfoContext(ctx, "close already in progress", slog.String("error", err.Error()))
			return
		}
		log.ErrorContext(ctx, "triggered close failed",
			slog.String("reason", string(reason)),
			slog.String("error", err.Error()),
		)
		return
	}

	m.publishEvent(ctx, "position_closed", map[string]any{
		"position_id": pos.ID,
		"token":       pos.TokenAddress,
		"reason":      string(reason),
		"exit_price":  trade.ExitPrice,
		"profit_loss": trade.ProfitLoss,
	})
}

// snapshotPass values the portfolio and appends one balance snapshot.
func (m *Manager) snapshotPass(ctx context.Context) error {
	active, err := m.positions.ListActive(ctx)
	if err != nil {
		return err
	}

	tokens := make([]string, 0, len(active))
	for _, pos := range active {
		tokens = append(tokens, pos.TokenAddress)
	}
	cached, err := m.prices.GetPrices(ctx, tokens)
	if err != nil {
		cached = map[string]float64{}
	}

	var positionsValue, unrealized float64
	for _, pos := range active {
		price, ok := cached[pos.TokenAddress]
		if !ok {
			if pos.CurrentPrice == nil {
				// Never priced: contributes nothing rather than a fake zero.
				continue
			}
			price = *pos.CurrentPrice
		}
		positionsValue += pos.Amount * price
		pl, _ := risk.ProfitLoss(pos.Amount, pos.EntryPrice, price)
		unrealized += pl
	}

	native, err := m.wallet.NativeBalance(ctx)
	if err != nil {
		return err
	}

	realized, err := m.trades.SumClosedPnL(ctx)
	if err != nil {
		return err
	}

	total := native + positionsValue
	profitLoss := realized + unrealized
	pct := 0.0
	if base := total - profitLoss; base > 0 {
		pct = profitLoss / base * 100
	}

	snap := domain.BalanceSnapshot{
		Timestamp:            time.Now().UTC(),
		TotalValue:           total,
		ActivePositionsValue: positionsValue,
		ProfitLoss:           profitLoss,
		ProfitLossPct:        pct,
	}
	if err := m.balances.Append(ctx, snap); err != nil {
		return err
	}

	m.logger.InfoContext(ctx, "balance snapshot recorded",
		slog.Float64("total_value", total),
		slog.Float64("positions_value", positionsValue),
		slog.Float64("profit_loss", profitLoss),
	)
	return nil
}

func (m *Manager) publishEvent(ctx context.Context, event string, fields map[string]any) {
	if m.bus == nil {
		return
	}
	fields["event"] = event
	payload, err := json.Marshal(fields)
	if err != nil {
		return
	}
	if err := m.bus.Publish(ctx, "events:positions", payload); err != nil {
		m.logger.WarnContext(ctx, "event publish failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
	_ = m.bus.StreamAppend(ctx, "stream:events", payload)
}
