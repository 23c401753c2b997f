package manager

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/soltraderbot/internal/domain"
	"github.com/alanyoungcy/soltraderbot/internal/executor"
)

type memPositionStore struct {
	mu          sync.Mutex
	positions   map[string]domain.Position
	updateOrder []string
}

func newMemPositionStore() *memPositionStore {
	return &memPositionStore{positions: make(map[string]domain.Position)}
}

func (m *memPositionStore) Create(_ context.Context, pos domain.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[pos.ID] = pos
	return nil
}

func (m *memPositionStore) GetByID(_ context.Context, id string) (domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return pos, nil
}

func (m *memPositionStore) GetActiveByToken(_ context.Context, token string) (domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pos := range m.positions {
		if pos.TokenAddress == token && pos.Active() {
			return pos, nil
		}
	}
	return domain.Position{}, domain.ErrNotFound
}

func (m *memPositionStore) ListActive(_ context.Context) ([]domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Deterministic order for the priority tests.
	var out []domain.Position
	for _, id := range sortedKeys(m.positions) {
		if pos := m.positions[id]; pos.Active() {
			out = append(out, pos)
		}
	}
	return out, nil
}

func sortedKeys(m map[string]domain.Position) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 0; i < len(keys); i++ {
		for j := i + 1; j < len(keys); j++ {
			if keys[j] < keys[i] {
				keys[i], keys[j] = keys[j], keys[i]
			}
		}
	}
	return keys
}

func (m *memPositionStore) Update(_ context.Context, id string, upd domain.PositionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[id]
	if !ok {
		return domain.ErrNotFound
	}
	if upd.CurrentPrice != nil {
		v := *upd.CurrentPrice
		pos.CurrentPrice = &v
	}
	if upd.HighestPrice != nil {
		pos.HighestPrice = *upd.HighestPrice
	}
	if upd.ProfitLoss != nil {
		pos.ProfitLoss = *upd.ProfitLoss
	}
	if upd.LastUpdated != nil {
		pos.LastUpdated = *upd.LastUpdated
	}
	m.positions[id] = pos
	m.updateOrder = append(m.updateOrder, id)
	return nil
}

func (m *memPositionStore) SetTrailingStopPct(_ context.Context, id string, pct float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[id]
	if !ok {
		return domain.ErrNotFound
	}
	pos.TrailingStopPct = pct
	m.positions[id] = pos
	return nil
}

func (m *memPositionStore) CloseAtomically(_ context.Context, close domain.PositionClose, _ domain.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[close.PositionID]
	if !ok {
		return domain.ErrNotFound
	}
	if !pos.Active() {
		return domain.ErrPositionClosed
	}
	pos.Status = close.Status
	m.positions[close.PositionID] = pos
	return nil
}

func (m *memPositionStore) ListHistory(_ context.Context, _ domain.ListOpts) ([]domain.Position, error) {
	return nil, nil
}

type memTradeStore struct{ realized float64 }

func (m *memTradeStore) Create(_ context.Context, _ domain.Trade) error { return nil }
func (m *memTradeStore) ListByToken(_ context.Context, _ string, _ domain.ListOpts) ([]domain.Trade, error) {
	return nil, nil
}
func (m *memTradeStore) SumClosedPnL(_ context.Context) (float64, error) { return m.realized, nil }
func (m *memTradeStore) ListClosedBefore(_ context.Context, _ time.Time) ([]domain.Trade, error) {
	return nil, nil
}
func (m *memTradeStore) DeleteClosedBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

type memBalanceStore struct {
	mu    sync.Mutex
	snaps []domain.BalanceSnapshot
}

func (m *memBalanceStore) Append(_ context.Context, snap domain.BalanceSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps = append(m.snaps, snap)
	return nil
}
func (m *memBalanceStore) ListRange(_ context.Context, _, _ time.Time) ([]domain.BalanceSnapshot, error) {
	return nil, nil
}
func (m *memBalanceStore) ListBefore(_ context.Context, _ time.Time) ([]domain.BalanceSnapshot, error) {
	return nil, nil
}
func (m *memBalanceStore) DeleteBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

type mapPriceCache struct {
	mu     sync.Mutex
	prices map[string]float64
}

func (m *mapPriceCache) SetPrice(_ context.Context, token string, price float64, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.prices == nil {
		m.prices = map[string]float64{}
	}
	m.prices[token] = price
	return nil
}

func (m *mapPriceCache) GetPrice(_ context.Context, token string) (float64, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	price, ok := m.prices[token]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return price, time.Now(), nil
}

func (m *mapPriceCache) GetPrices(_ context.Context, tokens []string) (map[string]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]float64{}
	for _, tok := range tokens {
		if price, ok := m.prices[tok]; ok {
			out[tok] = price
		}
	}
	return out, nil
}

type stubOracle struct {
	prices map[string]float64
}

func (s *stubOracle) CurrentPrice(_ context.Context, token string) (float64, error) {
	price, ok := s.prices[token]
	if !ok {
		return 0, domain.ErrPriceUnavailable
	}
	return price, nil
}
func (s *stubOracle) Quote(_ context.Context, _, _ string, _ float64) (domain.Quote, error) {
	return domain.Quote{}, nil
}
func (s *stubOracle) ExecuteSwap(_ context.Context, _ domain.Quote) (domain.SwapResult, error) {
	return domain.SwapResult{}, nil
}

type stubWallet struct{ native float64 }

func (s *stubWallet) Address() string                                        { return "wallet" }
func (s *stubWallet) TokenBalance(_ context.Context, _ string) (float64, error) { return 0, nil }
func (s *stubWallet) NativeBalance(_ context.Context) (float64, error)       { return s.native, nil }
func (s *stubWallet) SendTransaction(_ context.Context, _ []byte) (string, error) {
	return "", nil
}

type closeCall struct {
	positionID string
	reason     executor.CloseReason
}

type recordingCloser struct {
	mu    sync.Mutex
	store *memPositionStore
	calls []closeCall
	err   error
}

func (r *recordingCloser) ClosePosition(ctx context.Context, positionID string, reason executor.CloseReason) (domain.Trade, error) {
	r.mu.Lock()
	r.calls = append(r.calls, closeCall{positionID, reason})
	err := r.err
	r.mu.Unlock()
	if err != nil {
		return domain.Trade{}, err
	}
	if r.store != nil {
		_ = r.store.CloseAtomically(ctx, domain.PositionClose{
			PositionID: positionID,
			Status:     domain.PositionStatusClosed,
			ExitTime:   time.Now().UTC(),
		}, domain.Trade{})
	}
	return domain.Trade{ProfitLoss: -1}, nil
}

type managerFixture struct {
	mgr    *Manager
	store  *memPositionStore
	trades *memTradeStore
	bals   *memBalanceStore
	cache  *mapPriceCache
	oracle *stubOracle
	wallet *stubWallet
	closer *recordingCloser
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	f := &managerFixture{
		store:  newMemPositionStore(),
		trades: &memTradeStore{},
		bals:   &memBalanceStore{},
		cache:  &mapPriceCache{prices: map[string]float64{}},
		oracle: &stubOracle{prices: map[string]float64{}},
		wallet: &stubWallet{},
	}
	f.closer = &recordingCloser{store: f.store}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.mgr = New(f.store, f.trades, f.bals, f.cache, f.oracle, f.wallet,
		f.closer, nil, time.Minute, time.Hour, logger)
	return f
}

func activePos(id, token string, entry, highest float64, current *float64) domain.Position {
	return domain.Position{
		ID:              id,
		TokenAddress:    token,
		Amount:          1000,
		EntryPrice:      entry,
		CurrentPrice:    current,
		HighestPrice:    highest,
		LastUpdated:     time.Now().UTC().Add(-time.Hour),
		Status:          domain.PositionStatusActive,
		TrailingStopPct: domain.DefaultTrailingStopPct,
	}
}

func ptr(v float64) *float64 { return &v }

func TestMonitorPassStopLossFiresCloseOnce(t *testing.T) {
	f := newManagerFixture(t)
	pos := activePos("p1", "tokA", 1.0, 1.0, ptr(1.0))
	require.NoError(t, f.store.Create(context.Background(), pos))
	f.cache.prices["tokA"] = 0.79 // -21%

	require.NoError(t, f.mgr.monitorPass(context.Background()))

	require.Len(t, f.closer.calls, 1)
	assert.Equal(t, "p1", f.closer.calls[0].positionID)
	assert.Equal(t, executor.ReasonStopLoss, f.closer.calls[0].reason)

	// A second pass sees the closed position and does nothing.
	require.NoError(t, f.mgr.monitorPass(context.Background()))
	assert.Len(t, f.closer.calls, 1)
}

func TestMonitorPassTrailingStop(t *testing.T) {
	f := newManagerFixture(t)
	pos := activePos("p1", "tokA", 1.0, 2.0, ptr(2.0))
	require.NoError(t, f.store.Create(context.Background(), pos))
	f.cache.prices["tokA"] = 1.5 // 25% off the peak, still +50% overall

	require.NoError(t, f.mgr.monitorPass(context.Background()))

	require.Len(t, f.closer.calls, 1)
	assert.Equal(t, executor.ReasonTrailingStop, f.closer.calls[0].reason)
}

func TestMonitorPassMissingPriceSkipsPosition(t *testing.T) {
	f := newManagerFixture(t)
	pos := activePos("p1", "tokA", 1.0, 1.4, ptr(1.4))
	require.NoError(t, f.store.Create(context.Background(), pos))
	// No cached price and the oracle has nothing either.

	require.NoError(t, f.mgr.monitorPass(context.Background()))

	assert.Empty(t, f.closer.calls)
	got, err := f.store.GetByID(context.Background(), "p1")
	require.NoError(t, err)
	// Completely untouched: price, peak, and timestamp all keep their
	// previous values.
	assert.Equal(t, 1.4, *got.CurrentPrice)
	assert.Equal(t, 1.4, got.HighestPrice)
	assert.Equal(t, pos.LastUpdated, got.LastUpdated)
}

func TestMonitorPassFallsBackToOracle(t *testing.T) {
	f := newManagerFixture(t)
	pos := activePos("p1", "tokA", 1.0, 1.0, ptr(1.0))
	require.NoError(t, f.store.Create(context.Background(), pos))
	f.oracle.prices["tokA"] = 1.3

	require.NoError(t, f.mgr.monitorPass(context.Background()))

	got, err := f.store.GetByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 1.3, *got.CurrentPrice)
	assert.Equal(t, 1.3, got.HighestPrice)
	// The oracle price lands in the cache for the next pass.
	assert.Equal(t, 1.3, f.cache.prices["tokA"])
}

func TestMonitorPassFaultIsolation(t *testing.T) {
	f := newManagerFixture(t)
	require.NoError(t, f.store.Create(context.Background(), activePos("p1", "tokA", 1.0, 1.0, ptr(1.0))))
	require.NoError(t, f.store.Create(context.Background(), activePos("p2", "tokB", 1.0, 1.0, ptr(1.0))))
	// tokA has no price anywhere; tokB is deep underwater.
	f.cache.prices["tokB"] = 0.5

	require.NoError(t, f.mgr.monitorPass(context.Background()))

	require.Len(t, f.closer.calls, 1)
	assert.Equal(t, "p2", f.closer.calls[0].positionID)
}

func TestMonitorPassRaisesPeakWithoutTrigger(t *testing.T) {
	f := newManagerFixture(t)
	pos := activePos("p1", "tokA", 1.0, 1.2, ptr(1.2))
	require.NoError(t, f.store.Create(context.Background(), pos))
	f.cache.prices["tokA"] = 1.6

	require.NoError(t, f.mgr.monitorPass(context.Background()))

	assert.Empty(t, f.closer.calls)
	got, err := f.store.GetByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 1.6, got.HighestPrice)

	// The peak never comes back down.
	f.cache.prices["tokA"] = 1.5
	require.NoError(t, f.mgr.monitorPass(context.Background()))
	got, err = f.store.GetByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 1.6, got.HighestPrice)
}

func TestMonitorPassHighPriorityFirst(t *testing.T) {
	f := newManagerFixture(t)
	// p1 sorts first but is comfortably flat; p2 is in the danger band
	// (-15%) and must be refreshed first anyway.
	require.NoError(t, f.store.Create(context.Background(), activePos("p1", "tokA", 1.0, 1.0, ptr(1.0))))
	require.NoError(t, f.store.Create(context.Background(), activePos("p2", "tokB", 1.0, 1.0, ptr(0.85))))
	f.cache.prices["tokA"] = 1.0
	f.cache.prices["tokB"] = 0.85

	require.NoError(t, f.mgr.monitorPass(context.Background()))

	require.Len(t, f.store.updateOrder, 2)
	assert.Equal(t, []string{"p2", "p1"}, f.store.updateOrder)
}

func TestSnapshotPass(t *testing.T) {
	f := newManagerFixture(t)
	require.NoError(t, f.store.Create(context.Background(), activePos("p1", "tokA", 1.0, 1.2, ptr(1.0))))
	f.cache.prices["tokA"] = 1.2
	f.wallet.native = 10
	f.trades.realized = 5

	require.NoError(t, f.mgr.snapshotPass(context.Background()))

	require.Len(t, f.bals.snaps, 1)
	snap := f.bals.snaps[0]
	assert.InDelta(t, 1200.0, snap.ActivePositionsValue, 1e-9)
	assert.InDelta(t, 1210.0, snap.TotalValue, 1e-9)
	// 200 unrealized plus 5 realized.
	assert.InDelta(t, 205.0, snap.ProfitLoss, 1e-9)
	assert.False(t, snap.Timestamp.IsZero())
}

func TestSnapshotPassUnpricedPositionContributesNothing(t *testing.T) {
	f := newManagerFixture(t)
	require.NoError(t, f.store.Create(context.Background(), activePos("p1", "tokA", 1.0, 0, nil)))
	f.wallet.native = 7

	require.NoError(t, f.mgr.snapshotPass(context.Background()))

	require.Len(t, f.bals.snaps, 1)
	assert.Equal(t, 0.0, f.bals.snaps[0].ActivePositionsValue)
	assert.InDelta(t, 7.0, f.bals.snaps[0].TotalValue, 1e-9)
}
