package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/soltraderbot/internal/blob/s3"
	"github.com/alanyoungcy/soltraderbot/internal/cache/redis"
	"github.com/alanyoungcy/soltraderbot/internal/config"
	"github.com/alanyoungcy/soltraderbot/internal/crypto"
	"github.com/alanyoungcy/soltraderbot/internal/domain"
	"github.com/alanyoungcy/soltraderbot/internal/notify"
	"github.com/alanyoungcy/soltraderbot/internal/platform/jupiter"
	"github.com/alanyoungcy/soltraderbot/internal/platform/solana"
	"github.com/alanyoungcy/soltraderbot/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	PositionStore domain.PositionStore
	TradeStore    domain.TradeStore
	BalanceStore  domain.BalanceStore

	// Caches
	PriceCache  domain.PriceCache
	TokenCache  domain.TokenInfoCache
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Wallet and venue
	KeyManager *crypto.KeyManager
	Wallet     domain.WalletClient
	Oracle     domain.PriceOracle
	Tokens     domain.TokenInfoSource

	// Blob storage (nil unless s3.enabled)
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   *s3blob.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	deps.PositionStore = postgres.NewPositionStore(pgClient)
	deps.TradeStore = postgres.NewTradeStore(pgClient)
	deps.BalanceStore = postgres.NewBalanceStore(pgClient)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	priceTTL := time.Duration(0)
	if cfg.Redis.CacheTTLMinutes > 0 {
		priceTTL = time.Duration(cfg.Redis.CacheTTLMinutes) * time.Minute
	}
	deps.PriceCache = redis.NewPriceCache(redisClient, priceTTL)
	deps.TokenCache = redis.NewTokenInfoCache(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBusWithMaxLen(redisClient, int64(cfg.Redis.StreamMaxLen))

	// --- Wallet key, chain RPC, and swap aggregator ---
	keyManager, err := crypto.LoadKeyManager(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: wallet key: %w", err)
	}
	deps.KeyManager = keyManager

	deps.Wallet = solana.NewClient(
		cfg.Venue.RPCEndpoint,
		keyManager.PublicKey(),
		cfg.Venue.HTTPTimeout.Duration,
	)

	venueClient := jupiter.NewClient(jupiter.Config{
		PriceURL:    cfg.Venue.PriceHost,
		QuoteURL:    cfg.Venue.QuoteHost,
		TokenURL:    cfg.Venue.TokenHost,
		SlippageBps: cfg.Venue.SlippageBps,
		Timeout:     cfg.Venue.HTTPTimeout.Duration,
	}, keyManager, deps.Wallet)
	deps.Oracle = venueClient
	deps.Tokens = venueClient

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.TradeStore, deps.BalanceStore, logger)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
