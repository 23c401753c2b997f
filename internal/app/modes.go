package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/soltraderbot/internal/domain"
	"github.com/alanyoungcy/soltraderbot/internal/executor"
	"github.com/alanyoungcy/soltraderbot/internal/feed"
	"github.com/alanyoungcy/soltraderbot/internal/manager"
	"github.com/alanyoungcy/soltraderbot/internal/server"
	"github.com/alanyoungcy/soltraderbot/internal/server/handler"
	"github.com/alanyoungcy/soltraderbot/internal/service"
)

// TradeMode starts the full trading loop: signal consumption, order entry,
// position monitoring, balance snapshots, and the status API.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")

	g, ctx := errgroup.WithContext(ctx)

	var signalCh <-chan domain.BuySignal
	if a.cfg.Trading.AutoExecute {
		feeder := feed.NewSignalFeeder(deps.SignalBus, 64, a.logger)
		signalCh = feeder.Signals()
		g.Go(func() error {
			return feeder.Run(ctx)
		})
	} else {
		a.logger.InfoContext(ctx, "trading.auto_execute is false; incoming signals will be ignored")
	}

	exec := a.buildExecutor(deps, signalCh)
	if signalCh != nil {
		g.Go(func() error {
			return exec.Run(ctx)
		})
	}

	mgr := a.buildManager(deps, exec)
	g.Go(func() error {
		return mgr.Run(ctx)
	})
	g.Go(func() error {
		return mgr.RunSnapshots(ctx)
	})

	// Streaming prices keep monitor passes off the REST price endpoint for
	// tokens we hold.
	if a.cfg.Venue.PriceWsHost != "" {
		priceFeed := feed.NewPriceFeed(a.cfg.Venue.PriceWsHost, deps.PriceCache, a.logger)
		a.subscribeHeldTokens(ctx, priceFeed, deps.PositionStore)
		g.Go(func() error {
			return priceFeed.Run(ctx)
		})
	}

	a.startArchiver(ctx, g, deps)
	a.startServer(ctx, g, deps, exec)

	return g.Wait()
}

// MonitorMode runs position monitoring and snapshots without consuming buy
// signals. Exit triggers still close positions; the executor is used for its
// close pipeline only.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	exec := a.buildExecutor(deps, nil)

	mgr := a.buildManager(deps, exec)
	g.Go(func() error {
		return mgr.Run(ctx)
	})
	g.Go(func() error {
		return mgr.RunSnapshots(ctx)
	})

	if a.cfg.Venue.PriceWsHost != "" {
		priceFeed := feed.NewPriceFeed(a.cfg.Venue.PriceWsHost, deps.PriceCache, a.logger)
		a.subscribeHeldTokens(ctx, priceFeed, deps.PositionStore)
		g.Go(func() error {
			return priceFeed.Run(ctx)
		})
	}

	a.startArchiver(ctx, g, deps)
	a.startServer(ctx, g, deps, exec)

	return g.Wait()
}

// buildExecutor assembles the order executor. signalCh may be nil when only
// the close pipeline is needed.
func (a *App) buildExecutor(deps *Dependencies, signalCh <-chan domain.BuySignal) *executor.Executor {
	return executor.New(
		executor.Config{
			BaseMint:        a.cfg.Venue.BaseMint,
			PositionSize:    a.cfg.Trading.BuyAmount,
			LockTTL:         a.cfg.Monitor.CloseLockTTL.Duration,
			SignalTTL:       a.cfg.Trading.SignalTTL.Duration,
			TrailingStopPct: a.cfg.Trading.TrailingStopPct,
		},
		deps.PositionStore,
		deps.TradeStore,
		deps.Oracle,
		deps.Wallet,
		deps.PriceCache,
		deps.LockManager,
		deps.Notifier,
		signalCh,
		a.logger,
	)
}

// buildManager assembles the position monitor.
func (a *App) buildManager(deps *Dependencies, closer manager.Closer) *manager.Manager {
	return manager.New(
		deps.PositionStore,
		deps.TradeStore,
		deps.BalanceStore,
		deps.PriceCache,
		deps.Oracle,
		deps.Wallet,
		closer,
		deps.SignalBus,
		a.cfg.Monitor.PollInterval.Duration,
		a.cfg.Monitor.SnapshotInterval.Duration,
		a.logger,
	)
}

// subscribeHeldTokens subscribes the price feed to every token with an open
// position. Failures are non-fatal; the monitor falls back to REST prices.
func (a *App) subscribeHeldTokens(ctx context.Context, priceFeed *feed.PriceFeed, positions domain.PositionStore) {
	active, err := positions.ListActive(ctx)
	if err != nil {
		a.logger.WarnContext(ctx, "could not list positions for price feed subscription",
			slog.String("error", err.Error()),
		)
		return
	}
	mints := make([]string, 0, len(active))
	for _, pos := range active {
		mints = append(mints, pos.TokenAddress)
	}
	if len(mints) == 0 {
		return
	}
	if err := priceFeed.Subscribe(mints...); err != nil {
		a.logger.WarnContext(ctx, "price feed subscription failed",
			slog.Int("mints", len(mints)),
			slog.String("error", err.Error()),
		)
	}
}

// startArchiver launches the cold-storage archival loop when blob storage is
// configured.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		return
	}
	retention := time.Duration(a.cfg.S3.RetentionDays) * 24 * time.Hour
	archiver := deps.Archiver
	g.Go(func() error {
		return archiver.Run(ctx, 24*time.Hour, retention)
	})
}

// startServer launches the HTTP API when enabled, including its graceful
// shutdown on context cancellation.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, exec *executor.Executor) {
	if !a.cfg.Server.Enabled {
		return
	}

	tokens := service.NewTokenService(deps.Tokens, deps.TokenCache, a.logger)

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.logger),
		Status:    handler.NewStatusHandler(deps.PositionStore, deps.TradeStore, deps.Wallet, a.logger),
		Positions: handler.NewPositionHandler(deps.PositionStore, exec, tokens, a.logger),
		Trades:    handler.NewTradeHandler(deps.TradeStore, a.logger),
		Balance:   handler.NewBalanceHandler(deps.BalanceStore, a.logger),
		Events:    handler.NewEventHandler(deps.SignalBus, a.logger),
	}
	if deps.BlobReader != nil {
		handlers.Archives = handler.NewArchiveHandler(deps.BlobReader, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("server shutdown failed", slog.String("error", err.Error()))
		}
		return ctx.Err()
	})
}
