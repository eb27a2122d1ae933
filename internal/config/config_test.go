package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "https://api.binance.com", cfg.Exchange.RESTURL())

	cfg.Exchange.TestMode = true
	assert.Equal(t, "https://testnet.binance.vision", cfg.Exchange.RESTURL())
	assert.Equal(t, "wss://stream.testnet.binance.vision", cfg.Exchange.StreamURL())
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spotbot.toml")
	content := `
mode = "backtest"
symbol = "ETHUSDT"

[strategy]
type = "floating"
step = "0.5"
global_stop_loss = 1200.25
hold_position_limit = 7

[trader]
throttling_time = "2s"

[backtest]
rates_filename = "**/*.csv"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("SPOTBOT_STRATEGY_INIT_BUY_AMOUNT", "5")
	t.Setenv("SPOTBOT_EXCHANGE_API_SECRET", "s3cret")
	t.Setenv("SPOTBOT_STRATEGY_FEE_PERCENT", "0.075")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "backtest", cfg.Mode)
	assert.Equal(t, "ETHUSDT", cfg.Symbol)
	assert.Equal(t, "floating", cfg.Strategy.Type)
	assert.True(t, cfg.Strategy.Step.Equal(decimal.RequireFromString("0.5")))
	assert.True(t, cfg.Strategy.GlobalStopLoss.Equal(decimal.RequireFromString("1200.25")))
	assert.Equal(t, 7, cfg.Strategy.HoldPositionLimit)
	assert.Equal(t, 5, cfg.Strategy.InitBuyAmount)
	assert.True(t, cfg.Strategy.FeePercent.Equal(decimal.RequireFromString("0.075")))
	assert.Equal(t, 2*time.Second, cfg.Trader.ThrottlingTime.Duration)
	assert.Equal(t, "s3cret", cfg.Exchange.APISecret)
	// Untouched sections keep their defaults.
	assert.True(t, cfg.Strategy.AvgRateSellLimit.Equal(decimal.RequireFromString("1.05")))
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, "SOLUSDT", cfg.Symbol)
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "scrape"
	cfg.Trader.DryRun = false
	cfg.Strategy.Type = "random"
	cfg.Strategy.ContinueBuyAmount = decimal.Zero
	cfg.State.Backend = "etcd"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		`unknown mode "scrape"`,
		`strategy: unknown type "random"`,
		"continue_buy_amount must be > 0",
		`state: unknown backend "etcd"`,
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateLiveTradingNeedsCredentials(t *testing.T) {
	cfg := Defaults()
	cfg.Trader.DryRun = false
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key is required")

	cfg.Exchange.APIKey = "k"
	cfg.Exchange.EncryptedSecretPath = "secret.enc"
	cfg.Exchange.SecretPassword = "pw"
	assert.NoError(t, cfg.Validate())
}

func TestBacktestS3Prefix(t *testing.T) {
	b := BacktestConfig{RatesPath: "s3://bucket/history/rates"}
	assert.True(t, b.FromS3())
	assert.Equal(t, "history/rates", b.S3Prefix())
	assert.False(t, BacktestConfig{RatesPath: "rates"}.FromS3())
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Exchange.APISecret = "secret"
	cfg.Notify.Events = []string{"stop_loss"}

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Exchange.APISecret)
	assert.Equal(t, "", out.Exchange.APIKey)
	assert.Equal(t, "secret", cfg.Exchange.APISecret)

	out.Notify.Events[0] = "changed"
	assert.Equal(t, "stop_loss", cfg.Notify.Events[0])
}
