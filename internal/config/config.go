// Package config defines the top-level configuration for the solana trading
// bot and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SOLTRADER_* environment variables.
type Config struct {
	Wallet   WalletConfig   `toml:"wallet"`
	Venue    VenueConfig    `toml:"venue"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Monitor  MonitorConfig  `toml:"monitor"`
	Trading  TradingConfig  `toml:"trading"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// WalletConfig holds wallet credentials. PrivateKey accepts any of the
// supported encodings (hex, base58, base64, JSON byte array).
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// VenueConfig holds the swap-aggregator and chain RPC endpoints.
type VenueConfig struct {
	PriceHost    string   `toml:"price_host"`
	QuoteHost    string   `toml:"quote_host"`
	TokenHost    string   `toml:"token_host"`
	PriceWsHost  string   `toml:"price_ws_host"`
	RPCEndpoint  string   `toml:"rpc_endpoint"`
	BaseMint     string   `toml:"base_mint"`
	SlippageBps  int      `toml:"slippage_bps"`
	HTTPTimeout  duration `toml:"http_timeout"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr            string `toml:"addr"`
	Password        string `toml:"password"`
	DB              int    `toml:"db"`
	PoolSize        int    `toml:"pool_size"`
	MaxRetries      int    `toml:"max_retries"`
	TLSEnabled      bool   `toml:"tls_enabled"`
	CacheTTLMinutes int    `toml:"cache_ttl_minutes"`
	StreamMaxLen    int    `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters for cold-storage
// archival.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	RetentionDays  int    `toml:"retention_days"`
}

// MonitorConfig holds the position monitor loop parameters.
type MonitorConfig struct {
	// PollInterval is the period of the position monitor loop.
	PollInterval duration `toml:"poll_interval"`
	// SnapshotInterval is the period of the balance-history snapshot loop.
	SnapshotInterval duration `toml:"snapshot_interval"`
	// CloseLockTTL bounds how long the per-token close lock is held.
	CloseLockTTL duration `toml:"close_lock_ttl"`
}

// TradingConfig holds order-entry parameters.
type TradingConfig struct {
	// BuyAmount is the base-currency amount spent per buy signal, in raw
	// base-mint units.
	BuyAmount float64 `toml:"buy_amount"`
	// TrailingStopPct is the default per-position trailing-stop distance.
	TrailingStopPct float64 `toml:"trailing_stop_pct"`
	// AutoExecute disables order placement when false; signals are logged
	// and dropped.
	AutoExecute bool `toml:"auto_execute"`
	// SignalTTL discards buy signals older than this at execution time.
	SignalTTL duration `toml:"signal_ttl"`
}

// ServerConfig holds HTTP status-API parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Venue: VenueConfig{
			PriceHost:   "https://price.jup.ag/v6",
			QuoteHost:   "https://quote-api.jup.ag/v6",
			TokenHost:   "https://tokens.jup.ag",
			RPCEndpoint: "https://api.mainnet-beta.solana.com",
			BaseMint:    "So11111111111111111111111111111111111111112",
			SlippageBps: 100,
			HTTPTimeout: duration{30 * time.Second},
		},
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "soltrader",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:            "localhost:6379",
			DB:              0,
			PoolSize:        20,
			MaxRetries:      3,
			CacheTTLMinutes: 1,
			StreamMaxLen:    10000,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "soltrader-data",
			ForcePathStyle: true,
			RetentionDays:  90,
		},
		Monitor: MonitorConfig{
			PollInterval:     duration{5 * time.Minute},
			SnapshotInterval: duration{time.Hour},
			CloseLockTTL:     duration{time.Minute},
		},
		Trading: TradingConfig{
			BuyAmount:       100_000_000, // 0.1 in 9-decimal base units
			TrailingStopPct: 20,
			AutoExecute:     true,
			SignalTTL:       duration{2 * time.Minute},
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Mode:     "trade",
		LogLevel: "info",
	}
}

// Validate checks the configuration for inconsistencies that would prevent
// the application from operating. It returns a descriptive error for the
// first problem found.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Mode) {
	case "trade", "monitor":
	default:
		return fmt.Errorf("config: unsupported mode %q", c.Mode)
	}

	if c.Venue.QuoteHost == "" {
		return fmt.Errorf("config: venue.quote_host is required")
	}
	if c.Venue.RPCEndpoint == "" {
		return fmt.Errorf("config: venue.rpc_endpoint is required")
	}
	if c.Venue.BaseMint == "" {
		return fmt.Errorf("config: venue.base_mint is required")
	}

	if c.Database.DSN == "" && c.Database.Host == "" {
		return fmt.Errorf("config: database.dsn or database.host is required")
	}

	if c.Monitor.PollInterval.Duration <= 0 {
		return fmt.Errorf("config: monitor.poll_interval must be positive")
	}
	if c.Monitor.SnapshotInterval.Duration <= 0 {
		return fmt.Errorf("config: monitor.snapshot_interval must be positive")
	}

	if c.Trading.TrailingStopPct <= 0 || c.Trading.TrailingStopPct >= 100 {
		return fmt.Errorf("config: trading.trailing_stop_pct must be in (0, 100)")
	}
	if strings.ToLower(c.Mode) == "trade" && c.Trading.BuyAmount <= 0 {
		return fmt.Errorf("config: trading.buy_amount must be positive in trade mode")
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			return fmt.Errorf("config: s3.bucket is required when s3 is enabled")
		}
		if c.S3.RetentionDays <= 0 {
			return fmt.Errorf("config: s3.retention_days must be positive when s3 is enabled")
		}
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}

	return nil
}
