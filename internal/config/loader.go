package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SPOTBOT_* environment variable overrides, and
// returns the final Config. An empty path or a missing file leaves the
// defaults in place. The returned Config has NOT been validated; the caller
// should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SPOTBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Exchange ──
	setStr(&cfg.Exchange.BaseURL, "SPOTBOT_EXCHANGE_BASE_URL")
	setStr(&cfg.Exchange.WSURL, "SPOTBOT_EXCHANGE_WS_URL")
	setBool(&cfg.Exchange.TestMode, "SPOTBOT_EXCHANGE_TEST_MODE")
	setStr(&cfg.Exchange.APIKey, "SPOTBOT_EXCHANGE_API_KEY")
	setStr(&cfg.Exchange.APISecret, "SPOTBOT_EXCHANGE_API_SECRET")
	setStr(&cfg.Exchange.EncryptedSecretPath, "SPOTBOT_EXCHANGE_ENCRYPTED_SECRET_PATH")
	setStr(&cfg.Exchange.SecretPassword, "SPOTBOT_EXCHANGE_SECRET_PASSWORD")
	setInt(&cfg.Exchange.OrderRateLimit, "SPOTBOT_EXCHANGE_ORDER_RATE_LIMIT")

	// ── Strategy ──
	setBool(&cfg.Strategy.Enabled, "SPOTBOT_STRATEGY_ENABLED")
	setStr(&cfg.Strategy.Type, "SPOTBOT_STRATEGY_TYPE")
	setDecimal(&cfg.Strategy.Step, "SPOTBOT_STRATEGY_STEP")
	setDecimal(&cfg.Strategy.AvgRateSellLimit, "SPOTBOT_STRATEGY_AVG_RATE_SELL_LIMIT")
	setStr(&cfg.Strategy.FloatStepsPath, "SPOTBOT_STRATEGY_FLOAT_STEPS_PATH")
	setInt(&cfg.Strategy.InitBuyAmount, "SPOTBOT_STRATEGY_INIT_BUY_AMOUNT")
	setDecimal(&cfg.Strategy.ContinueBuyAmount, "SPOTBOT_STRATEGY_CONTINUE_BUY_AMOUNT")
	setDecimal(&cfg.Strategy.GlobalStopLoss, "SPOTBOT_STRATEGY_GLOBAL_STOP_LOSS")
	setInt64(&cfg.Strategy.TicksAmountLimit, "SPOTBOT_STRATEGY_TICKS_AMOUNT_LIMIT")
	setInt(&cfg.Strategy.HoldPositionLimit, "SPOTBOT_STRATEGY_HOLD_POSITION_LIMIT")
	setDecimal(&cfg.Strategy.FeePercent, "SPOTBOT_STRATEGY_FEE_PERCENT")
	setDecimal(&cfg.Strategy.SymbolToUSDTRate, "SPOTBOT_STRATEGY_SYMBOL_TO_USDT_RATE")

	// ── Trader ──
	setBool(&cfg.Trader.DryRun, "SPOTBOT_TRADER_DRY_RUN")
	setStr(&cfg.Trader.Feed, "SPOTBOT_TRADER_FEED")
	setDuration(&cfg.Trader.ThrottlingTime, "SPOTBOT_TRADER_THROTTLING_TIME")
	setDuration(&cfg.Trader.ThrottlingFailureTime, "SPOTBOT_TRADER_THROTTLING_FAILURE_TIME")
	setInt(&cfg.Trader.FailureLimit, "SPOTBOT_TRADER_FAILURE_LIMIT")
	setInt64(&cfg.Trader.ShowStatsEveryTicks, "SPOTBOT_TRADER_SHOW_STATS_EVERY_TICKS")
	setStr(&cfg.Trader.LogsPath, "SPOTBOT_TRADER_LOGS_PATH")

	// ── Backtest ──
	setStr(&cfg.Backtest.RatesPath, "SPOTBOT_BACKTEST_RATES_PATH")
	setStr(&cfg.Backtest.RatesFilename, "SPOTBOT_BACKTEST_RATES_FILENAME")

	// ── State ──
	setStr(&cfg.State.Backend, "SPOTBOT_STATE_BACKEND")
	setStr(&cfg.State.SQLitePath, "SPOTBOT_STATE_SQLITE_PATH")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SPOTBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SPOTBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SPOTBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SPOTBOT_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "SPOTBOT_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "SPOTBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "SPOTBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SPOTBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SPOTBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SPOTBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SPOTBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SPOTBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SPOTBOT_POSTGRES_SSL_MODE")
	setBool(&cfg.Postgres.RunMigrations, "SPOTBOT_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "SPOTBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "SPOTBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SPOTBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "SPOTBOT_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "SPOTBOT_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "SPOTBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SPOTBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SPOTBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SPOTBOT_S3_FORCE_PATH_STYLE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SPOTBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SPOTBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SPOTBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SPOTBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SPOTBOT_MODE")
	setStr(&cfg.LogLevel, "SPOTBOT_LOG_LEVEL")
	setStr(&cfg.Symbol, "SPOTBOT_SYMBOL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and parses.
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setDecimal(dst *decimal.Decimal, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			*dst = d
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
