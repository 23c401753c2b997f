package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SOLTRADER_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SOLTRADER_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "SOLTRADER_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "SOLTRADER_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "SOLTRADER_WALLET_KEY_PASSWORD")

	// ── Venue ──
	setStr(&cfg.Venue.PriceHost, "SOLTRADER_VENUE_PRICE_HOST")
	setStr(&cfg.Venue.QuoteHost, "SOLTRADER_VENUE_QUOTE_HOST")
	setStr(&cfg.Venue.PriceWsHost, "SOLTRADER_VENUE_PRICE_WS_HOST")
	setStr(&cfg.Venue.RPCEndpoint, "SOLTRADER_VENUE_RPC_ENDPOINT")
	setStr(&cfg.Venue.BaseMint, "SOLTRADER_VENUE_BASE_MINT")
	setInt(&cfg.Venue.SlippageBps, "SOLTRADER_VENUE_SLIPPAGE_BPS")
	setDuration(&cfg.Venue.HTTPTimeout, "SOLTRADER_VENUE_HTTP_TIMEOUT")

	// ── Database ──
	setStr(&cfg.Database.DSN, "SOLTRADER_DATABASE_DSN")
	setStr(&cfg.Database.Host, "SOLTRADER_DATABASE_HOST")
	setInt(&cfg.Database.Port, "SOLTRADER_DATABASE_PORT")
	setStr(&cfg.Database.Database, "SOLTRADER_DATABASE_NAME")
	setStr(&cfg.Database.User, "SOLTRADER_DATABASE_USER")
	setStr(&cfg.Database.Password, "SOLTRADER_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "SOLTRADER_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "SOLTRADER_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "SOLTRADER_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "SOLTRADER_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SOLTRADER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SOLTRADER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SOLTRADER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SOLTRADER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SOLTRADER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SOLTRADER_REDIS_TLS_ENABLED")
	setInt(&cfg.Redis.CacheTTLMinutes, "SOLTRADER_REDIS_CACHE_TTL_MINUTES")
	setInt(&cfg.Redis.StreamMaxLen, "SOLTRADER_REDIS_STREAM_MAX_LEN")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "SOLTRADER_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "SOLTRADER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SOLTRADER_S3_REGION")
	setStr(&cfg.S3.Bucket, "SOLTRADER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SOLTRADER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SOLTRADER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SOLTRADER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SOLTRADER_S3_FORCE_PATH_STYLE")
	setInt(&cfg.S3.RetentionDays, "SOLTRADER_S3_RETENTION_DAYS")

	// ── Monitor ──
	setDuration(&cfg.Monitor.PollInterval, "SOLTRADER_MONITOR_POLL_INTERVAL")
	setDuration(&cfg.Monitor.SnapshotInterval, "SOLTRADER_MONITOR_SNAPSHOT_INTERVAL")
	setDuration(&cfg.Monitor.CloseLockTTL, "SOLTRADER_MONITOR_CLOSE_LOCK_TTL")

	// ── Trading ──
	setFloat64(&cfg.Trading.BuyAmount, "SOLTRADER_TRADING_BUY_AMOUNT")
	setFloat64(&cfg.Trading.TrailingStopPct, "SOLTRADER_TRADING_TRAILING_STOP_PCT")
	setBool(&cfg.Trading.AutoExecute, "SOLTRADER_TRADING_AUTO_EXECUTE")
	setDuration(&cfg.Trading.SignalTTL, "SOLTRADER_TRADING_SIGNAL_TTL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SOLTRADER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SOLTRADER_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "SOLTRADER_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "SOLTRADER_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SOLTRADER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SOLTRADER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SOLTRADER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SOLTRADER_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SOLTRADER_MODE")
	setStr(&cfg.LogLevel, "SOLTRADER_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
