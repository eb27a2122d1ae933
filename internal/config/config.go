// Package config defines the top-level configuration for spotbot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SPOTBOT_* environment variables.
type Config struct {
	Mode     string `toml:"mode"`
	LogLevel string `toml:"log_level"`
	Symbol   string `toml:"symbol"`

	Exchange ExchangeConfig `toml:"exchange"`
	Strategy StrategyConfig `toml:"strategy"`
	Trader   TraderConfig   `toml:"trader"`
	Backtest BacktestConfig `toml:"backtest"`
	State    StateConfig    `toml:"state"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	S3       S3Config       `toml:"s3"`
	Notify   NotifyConfig   `toml:"notify"`
}

// ExchangeConfig holds Binance endpoints and credentials.
type ExchangeConfig struct {
	BaseURL     string `toml:"base_url"`
	TestBaseURL string `toml:"test_base_url"`
	WSURL       string `toml:"ws_url"`
	TestWSURL   string `toml:"test_ws_url"`
	TestMode    bool   `toml:"test_mode"`

	APIKey              string `toml:"api_key"`
	APISecret           string `toml:"api_secret"`
	EncryptedSecretPath string `toml:"encrypted_secret_path"`
	SecretPassword      string `toml:"secret_password"`

	RecvWindow duration `toml:"recv_window"`
	Timeout    duration `toml:"timeout"`

	// OrderRateLimit caps orders per OrderRateWindow across every trader
	// sharing the Redis instance. Zero disables the limiter.
	OrderRateLimit  int      `toml:"order_rate_limit"`
	OrderRateWindow duration `toml:"order_rate_window"`
}

// RESTURL returns the REST root for the configured environment.
func (e ExchangeConfig) RESTURL() string {
	if e.TestMode {
		return e.TestBaseURL
	}
	return e.BaseURL
}

// StreamURL returns the websocket root for the configured environment.
func (e ExchangeConfig) StreamURL() string {
	if e.TestMode {
		return e.TestWSURL
	}
	return e.WSURL
}

// StrategyConfig holds the trading rules. Decimal values are best written
// as TOML strings so they are read exactly.
type StrategyConfig struct {
	Enabled bool   `toml:"enabled"`
	Type    string `toml:"type"`

	Step             decimal.Decimal `toml:"step"`
	AvgRateSellLimit decimal.Decimal `toml:"avg_rate_sell_limit"`
	FloatStepsPath   string          `toml:"float_steps_path"`

	InitBuyAmount     int             `toml:"init_buy_amount"`
	ContinueBuyAmount decimal.Decimal `toml:"continue_buy_amount"`
	GlobalStopLoss    decimal.Decimal `toml:"global_stop_loss"`
	TicksAmountLimit  int64           `toml:"ticks_amount_limit"`
	HoldPositionLimit int             `toml:"hold_position_limit"`

	MultipleSellOnTick bool            `toml:"multiple_sell_on_tick"`
	BuyPriceDiscount   decimal.Decimal `toml:"buy_price_discount"`
	SellPriceDiscount  decimal.Decimal `toml:"sell_price_discount"`
	PriceDigits        int32           `toml:"price_digits"`
	AmountDigits       int32           `toml:"amount_digits"`

	ContinueBuyEveryNTicks  int64 `toml:"continue_buy_every_n_ticks"`
	UseLastOpenPositionRate bool  `toml:"use_last_open_position_rate"`
	WarmupTicks             int   `toml:"warmup_ticks"`

	FeePercent       decimal.Decimal `toml:"fee_percent"`
	SymbolToUSDTRate decimal.Decimal `toml:"symbol_to_usdt_rate"`
}

// TraderConfig holds live-loop pacing and failure handling.
type TraderConfig struct {
	DryRun bool `toml:"dry_run"`
	// Feed selects the live tick source: "rest" polls, "ws" streams.
	Feed string `toml:"feed"`

	ThrottlingTime        duration `toml:"throttling_time"`
	ThrottlingFailureTime duration `toml:"throttling_failure_time"`
	FailureLimit          int      `toml:"failure_limit"`
	ShowStatsEveryTicks   int64    `toml:"show_stats_every_ticks"`
	LogsPath              string   `toml:"logs_path"`

	// StreamMaxAge is how old the last streamed quote may be before the
	// websocket feed reports a fetch failure.
	StreamMaxAge duration `toml:"stream_max_age"`
}

// BacktestConfig locates historical rate files.
type BacktestConfig struct {
	// RatesPath is a local directory or an s3:// prefix.
	RatesPath     string `toml:"rates_path"`
	RatesFilename string `toml:"rates_filename"`
}

// FromS3 reports whether rate files are read from object storage.
func (b BacktestConfig) FromS3() bool {
	return strings.HasPrefix(b.RatesPath, "s3://")
}

// S3Prefix returns the key prefix of an s3:// rates path; the bucket comes
// from the [s3] section.
func (b BacktestConfig) S3Prefix() string {
	rest := strings.TrimPrefix(b.RatesPath, "s3://")
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return rest[i+1:]
	}
	return ""
}

// StateConfig selects where run state is persisted.
type StateConfig struct {
	Backend    string   `toml:"backend"`
	SQLitePath string   `toml:"sqlite_path"`
	LockTTL    duration `toml:"lock_ttl"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds position-journal database parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
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

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
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

// Defaults returns a Config populated with the values a fresh checkout
// runs with: dry-run trading on SOLUSDT against production market data.
func Defaults() Config {
	return Config{
		Mode:     "trade",
		LogLevel: "info",
		Symbol:   "SOLUSDT",
		Exchange: ExchangeConfig{
			BaseURL:         "https://api.binance.com",
			TestBaseURL:     "https://testnet.binance.vision",
			WSURL:           "wss://stream.binance.com:9443",
			TestWSURL:       "wss://stream.testnet.binance.vision",
			RecvWindow:      duration{15 * time.Second},
			Timeout:         duration{10 * time.Second},
			OrderRateWindow: duration{10 * time.Second},
		},
		Strategy: StrategyConfig{
			Enabled:           true,
			Type:              "basic",
			Step:              decimal.RequireFromString("0.02"),
			AvgRateSellLimit:  decimal.RequireFromString("1.05"),
			FloatStepsPath:    "etc/float_strategy.csv",
			InitBuyAmount:     3,
			ContinueBuyAmount: decimal.NewFromInt(1),
			TicksAmountLimit:  100500,
			BuyPriceDiscount:  decimal.NewFromInt(1),
			SellPriceDiscount: decimal.NewFromInt(1),
			PriceDigits:       2,
			AmountDigits:      2,
			FeePercent:        decimal.RequireFromString("0.1"),
			SymbolToUSDTRate:  decimal.NewFromInt(1),
		},
		Trader: TraderConfig{
			DryRun:                true,
			Feed:                  "rest",
			ThrottlingTime:        duration{5 * time.Second},
			ThrottlingFailureTime: duration{10 * time.Second},
			FailureLimit:          15,
			ShowStatsEveryTicks:   1,
			LogsPath:              "logs",
			StreamMaxAge:          duration{30 * time.Second},
		},
		Backtest: BacktestConfig{
			RatesPath:     "rates",
			RatesFilename: "BINANCE_SOLUSDT, 60.csv",
		},
		State: StateConfig{
			Backend:    "redis",
			SQLitePath: "spotbot.db",
			LockTTL:    duration{time.Minute},
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         4,
			PoolSize:   10,
			MaxRetries: 3,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "spotbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  4,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		S3: S3Config{
			Region:         "us-east-1",
			Bucket:         "spotbot",
			ForcePathStyle: true,
		},
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":    true,
	"backtest": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var (
	validStrategyTypes = map[string]bool{"basic": true, "floating": true}
	validFeeds         = map[string]bool{"rest": true, "ws": true}
	validBackends      = map[string]bool{"redis": true, "sqlite": true, "none": true}
)

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, backtest)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if strings.TrimSpace(c.Symbol) == "" {
		errs = append(errs, "symbol must not be empty")
	}

	// Exchange credentials are only needed when real orders are placed.
	if c.Mode == "trade" && !c.Trader.DryRun {
		if c.Exchange.APIKey == "" {
			errs = append(errs, "exchange: api_key is required when trader.dry_run is false")
		}
		if c.Exchange.APISecret == "" && c.Exchange.EncryptedSecretPath == "" {
			errs = append(errs, "exchange: either api_secret or encrypted_secret_path must be set when trader.dry_run is false")
		}
	}
	if c.Exchange.EncryptedSecretPath != "" && c.Exchange.SecretPassword == "" {
		errs = append(errs, "exchange: secret_password is required when encrypted_secret_path is set")
	}
	if c.Exchange.RESTURL() == "" {
		errs = append(errs, "exchange: base_url must not be empty")
	}
	if c.Exchange.OrderRateLimit < 0 {
		errs = append(errs, "exchange: order_rate_limit must be >= 0")
	}
	if c.Exchange.OrderRateLimit > 0 && c.Exchange.OrderRateWindow.Duration <= 0 {
		errs = append(errs, "exchange: order_rate_window must be > 0 when order_rate_limit is set")
	}

	errs = append(errs, c.Strategy.validate()...)

	if c.Mode == "trade" {
		if !validFeeds[c.Trader.Feed] {
			errs = append(errs, fmt.Sprintf("trader: unknown feed %q (valid: rest, ws)", c.Trader.Feed))
		}
		if c.Trader.ThrottlingTime.Duration < 0 {
			errs = append(errs, "trader: throttling_time must be >= 0")
		}
		if c.Trader.ThrottlingFailureTime.Duration < 0 {
			errs = append(errs, "trader: throttling_failure_time must be >= 0")
		}
		if c.Trader.FailureLimit < 1 {
			errs = append(errs, "trader: failure_limit must be >= 1")
		}
		if c.Trader.ShowStatsEveryTicks < 1 {
			errs = append(errs, "trader: show_stats_every_ticks must be >= 1")
		}
	}

	if c.Mode == "backtest" {
		if c.Backtest.RatesFilename == "" {
			errs = append(errs, "backtest: rates_filename must not be empty")
		}
		if c.Backtest.FromS3() && !c.S3.Enabled {
			errs = append(errs, "backtest: an s3:// rates_path requires s3.enabled")
		}
	}

	if !validBackends[c.State.Backend] {
		errs = append(errs, fmt.Sprintf("state: unknown backend %q (valid: redis, sqlite, none)", c.State.Backend))
	}
	if c.State.Backend == "sqlite" && c.State.SQLitePath == "" {
		errs = append(errs, "state: sqlite_path must not be empty for the sqlite backend")
	}
	if c.State.Backend == "redis" {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.State.LockTTL.Duration < 3*time.Second {
			errs = append(errs, "state: lock_ttl must be at least 3s")
		}
	}
	if c.Exchange.OrderRateLimit > 0 && c.State.Backend != "redis" {
		errs = append(errs, "exchange: order_rate_limit needs the redis state backend")
	}

	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (s StrategyConfig) validate() []string {
	var errs []string
	if !validStrategyTypes[s.Type] {
		errs = append(errs, fmt.Sprintf("strategy: unknown type %q (valid: basic, floating)", s.Type))
	}
	if s.Type == "floating" && s.FloatStepsPath == "" {
		errs = append(errs, "strategy: float_steps_path is required for the floating type")
	}
	if s.Type == "basic" && s.AvgRateSellLimit.LessThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, "strategy: avg_rate_sell_limit must be > 1")
	}
	if s.Step.IsNegative() {
		errs = append(errs, "strategy: step must be >= 0")
	}
	if s.InitBuyAmount < 0 {
		errs = append(errs, "strategy: init_buy_amount must be >= 0")
	}
	if !s.ContinueBuyAmount.IsPositive() {
		errs = append(errs, "strategy: continue_buy_amount must be > 0")
	}
	if s.GlobalStopLoss.IsNegative() {
		errs = append(errs, "strategy: global_stop_loss must be >= 0")
	}
	if s.TicksAmountLimit < 0 {
		errs = append(errs, "strategy: ticks_amount_limit must be >= 0")
	}
	if s.HoldPositionLimit < 0 {
		errs = append(errs, "strategy: hold_position_limit must be >= 0")
	}
	if !s.BuyPriceDiscount.IsPositive() || !s.SellPriceDiscount.IsPositive() {
		errs = append(errs, "strategy: buy_price_discount and sell_price_discount must be > 0")
	}
	if s.PriceDigits < 0 || s.AmountDigits < 0 {
		errs = append(errs, "strategy: price_digits and amount_digits must be >= 0")
	}
	if s.ContinueBuyEveryNTicks < 0 {
		errs = append(errs, "strategy: continue_buy_every_n_ticks must be >= 0")
	}
	if s.WarmupTicks < 0 {
		errs = append(errs, "strategy: warmup_ticks must be >= 0")
	}
	if s.FeePercent.IsNegative() {
		errs = append(errs, "strategy: fee_percent must be >= 0")
	}
	if !s.SymbolToUSDTRate.IsPositive() {
		errs = append(errs, "strategy: symbol_to_usdt_rate must be > 0")
	}
	return errs
}
