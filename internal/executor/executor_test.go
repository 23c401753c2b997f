package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/soltraderbot/internal/domain"
)

const baseMint = "So11111111111111111111111111111111111111112"

type fakePositionStore struct {
	mu        sync.Mutex
	positions map[string]domain.Position
	trades    []domain.Trade
	closeErr  error
}

func newFakePositionStore() *fakePositionStore {
	return &fakePositionStore{positions: make(map[string]domain.Position)}
}

func (f *fakePositionStore) Create(_ context.Context, pos domain.Position) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.positions[pos.ID]; ok {
		return domain.ErrAlreadyExists
	}
	f.positions[pos.ID] = pos
	return nil
}

func (f *fakePositionStore) GetByID(_ context.Context, id string) (domain.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pos, ok := f.positions[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return pos, nil
}

func (f *fakePositionStore) GetActiveByToken(_ context.Context, token string) (domain.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, pos := range f.positions {
		if pos.TokenAddress == token && pos.Active() {
			return pos, nil
		}
	}
	return domain.Position{}, domain.ErrNotFound
}

func (f *fakePositionStore) ListActive(_ context.Context) ([]domain.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Position
	for _, pos := range f.positions {
		if pos.Active() {
			out = append(out, pos)
		}
	}
	return out, nil
}

func (f *fakePositionStore) Update(_ context.Context, id string, upd domain.PositionUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	pos, ok := f.positions[id]
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
	f.positions[id] = pos
	return nil
}

func (f *fakePositionStore) SetTrailingStopPct(_ context.Context, id string, pct float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	pos, ok := f.positions[id]
	if !ok || !pos.Active() {
		return domain.ErrNotFound
	}
	pos.TrailingStopPct = pct
	f.positions[id] = pos
	return nil
}

func (f *fakePositionStore) CloseAtomically(_ context.Context, close domain.PositionClose, trade domain.Trade) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closeErr != nil {
		return f.closeErr
	}
	pos, ok := f.positions[close.PositionID]
	if !ok {
		return domain.ErrNotFound
	}
	if !pos.Active() {
		return domain.ErrPositionClosed
	}
	pos.Status = close.Status
	price := close.ExitPrice
	pos.CurrentPrice = &price
	pos.ProfitLoss = close.ProfitLoss
	exit := close.ExitTime
	pos.ExitTime = &exit
	f.positions[close.PositionID] = pos
	f.trades = append(f.trades, trade)
	return nil
}

func (f *fakePositionStore) ListHistory(_ context.Context, _ domain.ListOpts) ([]domain.Position, error) {
	return nil, nil
}

type fakeTradeStore struct {
	mu     sync.Mutex
	trades []domain.Trade
}

func (f *fakeTradeStore) Create(_ context.Context, t domain.Trade) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trades = append(f.trades, t)
	return nil
}

func (f *fakeTradeStore) ListByToken(_ context.Context, _ string, _ domain.ListOpts) ([]domain.Trade, error) {
	return nil, nil
}
func (f *fakeTradeStore) SumClosedPnL(_ context.Context) (float64, error) { return 0, nil }
func (f *fakeTradeStore) ListClosedBefore(_ context.Context, _ time.Time) ([]domain.Trade, error) {
	return nil, nil
}
func (f *fakeTradeStore) DeleteClosedBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

type fakeOracle struct {
	mu         sync.Mutex
	price      float64
	priceErr   error
	quoteOut   float64
	quoteErr   error
	swapErrs   []error // consumed one per ExecuteSwap call; nil entry = success
	swapCalls  int
	quoteCalls int
}

func (f *fakeOracle) CurrentPrice(_ context.Context, _ string) (float64, error) {
	if f.priceErr != nil {
		return 0, f.priceErr
	}
	return f.price, nil
}

func (f *fakeOracle) Quote(_ context.Context, inputMint, outputMint string, amount float64) (domain.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quoteCalls++
	if f.quoteErr != nil {
		return domain.Quote{}, f.quoteErr
	}
	return domain.Quote{
		InputMint:  inputMint,
		OutputMint: outputMint,
		InAmount:   amount,
		OutAmount:  f.quoteOut,
	}, nil
}

func (f *fakeOracle) ExecuteSwap(_ context.Context, quote domain.Quote) (domain.SwapResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.swapCalls++
	if len(f.swapErrs) > 0 {
		err := f.swapErrs[0]
		f.swapErrs = f.swapErrs[1:]
		if err != nil {
			return domain.SwapResult{}, err
		}
	}
	return domain.SwapResult{
		TxID:         fmt.Sprintf("tx-%d", f.swapCalls),
		InputAmount:  quote.InAmount,
		OutputAmount: quote.OutAmount,
	}, nil
}

type fakeWallet struct {
	balance float64
	err     error
}

func (f *fakeWallet) Address() string { return "wallet" }
func (f *fakeWallet) TokenBalance(_ context.Context, _ string) (float64, error) {
	return f.balance, f.err
}
func (f *fakeWallet) NativeBalance(_ context.Context) (float64, error) { return 0, nil }
func (f *fakeWallet) SendTransaction(_ context.Context, _ []byte) (string, error) {
	return "", nil
}

type fakeLocks struct {
	mu       sync.Mutex
	err      error
	acquired int
}

func (f *fakeLocks) Acquire(_ context.Context, _ string, _ time.Duration) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.acquired++
	return func() {}, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeNotifier) Notify(_ context.Context, event, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

type noopPriceCache struct{}

func (noopPriceCache) SetPrice(_ context.Context, _ string, _ float64, _ time.Time) error {
	return nil
}
func (noopPriceCache) GetPrice(_ context.Context, _ string) (float64, time.Time, error) {
	return 0, time.Time{}, domain.ErrNotFound
}
func (noopPriceCache) GetPrices(_ context.Context, _ []string) (map[string]float64, error) {
	return map[string]float64{}, nil
}

type fixture struct {
	exec      *Executor
	positions *fakePositionStore
	trades    *fakeTradeStore
	oracle    *fakeOracle
	wallet    *fakeWallet
	locks     *fakeLocks
	notifier  *fakeNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		positions: newFakePositionStore(),
		trades:    &fakeTradeStore{},
		oracle:    &fakeOracle{price: 1.0, quoteOut: 100},
		wallet:    &fakeWallet{balance: 1000},
		locks:     &fakeLocks{},
		notifier:  &fakeNotifier{},
	}
	cfg := Config{
		BaseMint:        baseMint,
		PositionSize:    1_000_000,
		RetryDelay:      time.Millisecond,
		StaleRetryDelay: time.Millisecond,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.exec = New(cfg, f.positions, f.trades, f.oracle, f.wallet, noopPriceCache{},
		f.locks, f.notifier, nil, logger)
	return f
}

func (f *fixture) addActivePosition(t *testing.T, entryPrice float64) domain.Position {
	t.Helper()
	pos := domain.Position{
		ID:              "pos-1",
		TokenAddress:    "TokenMint1111111111111111111111111111111111",
		Amount:          1000,
		EntryPrice:      entryPrice,
		HighestPrice:    entryPrice,
		LastUpdated:     time.Now().UTC(),
		Status:          domain.PositionStatusActive,
		TrailingStopPct: domain.DefaultTrailingStopPct,
	}
	require.NoError(t, f.positions.Create(context.Background(), pos))
	return pos
}

func TestClosePositionHappyPath(t *testing.T) {
	f := newFixture(t)
	pos := f.addActivePosition(t, 1.0)
	f.wallet.balance = 900 // drifted below the stored amount
	f.oracle.price = 1.5
	f.oracle.quoteOut = 1350

	trade, err := f.exec.ClosePosition(context.Background(), pos.ID, ReasonTrailingStop)
	require.NoError(t, err)

	// P&L is swap proceeds minus what the sold balance cost at entry.
	assert.InDelta(t, 1350-900*1.0, trade.ProfitLoss, 1e-9)
	assert.Equal(t, domain.TradeStatusClosed, trade.Status)
	require.NotNil(t, trade.ExitPrice)
	assert.Equal(t, 1.5, *trade.ExitPrice)
	assert.Equal(t, 900.0, trade.PositionSize)

	got, err := f.positions.GetByID(context.Background(), pos.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusClosed, got.Status)
	assert.NotNil(t, got.ExitTime)

	assert.Equal(t, 1, f.locks.acquired)
	assert.Contains(t, f.notifier.events, string(ReasonTrailingStop))
}

func TestClosePositionStopLossRecordsClosed(t *testing.T) {
	f := newFixture(t)
	pos := f.addActivePosition(t, 1.0)

	_, err := f.exec.ClosePosition(context.Background(), pos.ID, ReasonStopLoss)
	require.NoError(t, err)

	// Every sell ends in CLOSED regardless of what triggered it.
	got, err := f.positions.GetByID(context.Background(), pos.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusClosed, got.Status)
	assert.Contains(t, f.notifier.events, string(ReasonStopLoss))
}

func TestClosePositionCommitFailureLeavesPositionActive(t *testing.T) {
	f := newFixture(t)
	pos := f.addActivePosition(t, 1.0)
	f.positions.closeErr = errors.New("connection reset")

	_, err := f.exec.ClosePosition(context.Background(), pos.ID, ReasonTrailingStop)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit close")

	// The swap went through but the commit did not: no trade row is visible
	// and the position is still active.
	assert.Equal(t, 1, f.oracle.swapCalls)
	assert.Empty(t, f.positions.trades)
	got, err := f.positions.GetByID(context.Background(), pos.ID)
	require.NoError(t, err)
	assert.True(t, got.Active())
	assert.Nil(t, got.ExitTime)
}

func TestClosePositionZeroBalanceAborts(t *testing.T) {
	f := newFixture(t)
	pos := f.addActivePosition(t, 1.0)
	f.wallet.balance = 0

	_, err := f.exec.ClosePosition(context.Background(), pos.ID, ReasonManual)
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	// Nothing was swapped and the position stays active.
	assert.Equal(t, 0, f.oracle.swapCalls)
	got, err := f.positions.GetByID(context.Background(), pos.ID)
	require.NoError(t, err)
	assert.True(t, got.Active())
}

func TestClosePositionAlreadyClosed(t *testing.T) {
	f := newFixture(t)
	pos := f.addActivePosition(t, 1.0)

	_, err := f.exec.ClosePosition(context.Background(), pos.ID, ReasonManual)
	require.NoError(t, err)

	_, err = f.exec.ClosePosition(context.Background(), pos.ID, ReasonManual)
	require.ErrorIs(t, err, domain.ErrPositionClosed)
	assert.Equal(t, 1, f.oracle.swapCalls)
}

func TestClosePositionLockHeld(t *testing.T) {
	f := newFixture(t)
	pos := f.addActivePosition(t, 1.0)
	f.locks.err = domain.ErrLockHeld

	_, err := f.exec.ClosePosition(context.Background(), pos.ID, ReasonManual)
	require.ErrorIs(t, err, domain.ErrLockHeld)
	assert.Equal(t, 0, f.oracle.swapCalls)
}

func TestClosePositionRetriesThenSucceeds(t *testing.T) {
	f := newFixture(t)
	pos := f.addActivePosition(t, 1.0)
	f.oracle.swapErrs = []error{
		errors.New("rpc timeout"),
		fmt.Errorf("send: %w", domain.ErrStaleTransaction),
		nil,
	}

	_, err := f.exec.ClosePosition(context.Background(), pos.ID, ReasonTrailingStop)
	require.NoError(t, err)
	assert.Equal(t, 3, f.oracle.swapCalls)

	got, err := f.positions.GetByID(context.Background(), pos.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusClosed, got.Status)
}

func TestClosePositionRetriesExhausted(t *testing.T) {
	f := newFixture(t)
	pos := f.addActivePosition(t, 1.0)
	f.oracle.swapErrs = []error{
		errors.New("boom"),
		errors.New("boom"),
		errors.New("boom"),
	}

	_, err := f.exec.ClosePosition(context.Background(), pos.ID, ReasonTrailingStop)
	require.ErrorIs(t, err, domain.ErrSwapFailed)
	assert.Equal(t, 3, f.oracle.swapCalls)

	// Position survives a failed close untouched.
	got, err := f.positions.GetByID(context.Background(), pos.ID)
	require.NoError(t, err)
	assert.True(t, got.Active())
	assert.Contains(t, f.notifier.events, "swap_failed")
}

func TestClosePositionPriceUnavailable(t *testing.T) {
	f := newFixture(t)
	pos := f.addActivePosition(t, 1.0)
	f.oracle.priceErr = domain.ErrPriceUnavailable

	_, err := f.exec.ClosePosition(context.Background(), pos.ID, ReasonManual)
	require.ErrorIs(t, err, domain.ErrPriceUnavailable)
	assert.Equal(t, 0, f.oracle.swapCalls)
}

func TestExecuteBuyCreatesPosition(t *testing.T) {
	f := newFixture(t)
	// The oracle quotes higher than the fill; the entry must come from the
	// fill itself (1,000,000 spent for 2,000,000 received).
	f.oracle.price = 0.7
	f.oracle.quoteOut = 2_000_000

	sig := domain.BuySignal{
		ID:           "sig-1",
		TokenAddress: "TokenMint1111111111111111111111111111111111",
		Type:         domain.SignalTypeBuy,
		CreatedAt:    time.Now().UTC(),
	}
	pos, err := f.exec.ExecuteBuy(context.Background(), sig)
	require.NoError(t, err)

	assert.Equal(t, sig.TokenAddress, pos.TokenAddress)
	assert.Equal(t, 2_000_000.0, pos.Amount)
	assert.Equal(t, 0.5, pos.EntryPrice)
	assert.Equal(t, 0.5, pos.HighestPrice)
	assert.True(t, pos.Active())

	require.Len(t, f.trades.trades, 1)
	assert.Equal(t, domain.TradeStatusExecuted, f.trades.trades[0].Status)
	assert.Equal(t, "sig-1", f.trades.trades[0].SignalID)
	assert.Contains(t, f.notifier.events, "position_opened")
}

func TestExecuteBuyEntryPriceFallsBackToOracle(t *testing.T) {
	f := newFixture(t)
	f.oracle.price = 0.25
	f.oracle.quoteOut = 0 // fill reports no output, so no implied price

	sig := domain.BuySignal{
		ID:           "sig-3",
		TokenAddress: "TokenMint2111111111111111111111111111111111",
		Type:         domain.SignalTypeBuy,
	}
	pos, err := f.exec.ExecuteBuy(context.Background(), sig)
	require.NoError(t, err)
	assert.Equal(t, 0.25, pos.EntryPrice)
}

func TestExecuteBuySkipsExistingPosition(t *testing.T) {
	f := newFixture(t)
	pos := f.addActivePosition(t, 1.0)

	sig := domain.BuySignal{
		ID:           "sig-2",
		TokenAddress: pos.TokenAddress,
		Type:         domain.SignalTypeBuy,
	}
	_, err := f.exec.ExecuteBuy(context.Background(), sig)
	require.ErrorIs(t, err, domain.ErrAlreadyExists)
	assert.Equal(t, 0, f.oracle.swapCalls)
}

func TestProcessDeduplicatesSignals(t *testing.T) {
	f := newFixture(t)
	f.oracle.quoteOut = 100

	sig := domain.BuySignal{
		ID:           "sig-dup",
		TokenAddress: "TokenMintA111111111111111111111111111111111",
		Type:         domain.SignalTypeBuy,
	}
	f.exec.process(context.Background(), sig)

	// Second delivery of the same signal is a no-op even after the first
	// position closed.
	f.exec.process(context.Background(), sig)
	assert.Equal(t, 1, f.oracle.quoteCalls)
}

func TestProcessSkipsExpiredSignal(t *testing.T) {
	f := newFixture(t)

	sig := domain.BuySignal{
		ID:           "sig-old",
		TokenAddress: "TokenMintB111111111111111111111111111111111",
		Type:         domain.SignalTypeBuy,
		ExpiresAt:    time.Now().UTC().Add(-time.Minute),
	}
	f.exec.process(context.Background(), sig)
	assert.Equal(t, 0, f.oracle.quoteCalls)
}
