// Command spotbot trades one Binance spot symbol with a grid-style
// buy-the-dip strategy, or replays historical rates through the same engine.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/spotbot/internal/app"
	"github.com/alanyoungcy/spotbot/internal/config"
	"github.com/alanyoungcy/spotbot/internal/crypto"
	"github.com/alanyoungcy/spotbot/internal/platform/binance"
)

var (
	version    = "dev"
	configPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "spotbot",
		Short:         "Binance spot trading bot",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.toml", "path to configuration file")

	rootCmd.AddCommand(modeCmd("trade", "Run a live trading session"))
	rootCmd.AddCommand(modeCmd("backtest", "Replay historical rate files"))
	rootCmd.AddCommand(encryptSecretCmd())
	rootCmd.AddCommand(fetchRatesCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// newLogger builds the JSON logger. Logs go to stderr so stdout carries
// only the result tables.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}
	return cfg, nil
}

func modeCmd(mode, short string) *cobra.Command {
	return &cobra.Command{
		Use:   mode,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.Mode = mode
			logger := newLogger(cfg.LogLevel)

			if err := cfg.Validate(); err != nil {
				return err
			}
			redacted := config.RedactedConfig(cfg)
			logger.Info("spotbot starting",
				slog.String("version", version),
				slog.String("mode", cfg.Mode),
				slog.String("config", configPath),
				slog.Any("settings", redacted),
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			application := app.New(cfg, logger)
			defer application.Close()

			if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("spotbot stopped")
			return nil
		},
	}
}

func encryptSecretCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "encrypt-secret",
		Short: "Encrypt an API secret read from stdin (secret line, then password line)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sc := bufio.NewScanner(cmd.InOrStdin())
			var lines []string
			for len(lines) < 2 && sc.Scan() {
				lines = append(lines, strings.TrimSpace(sc.Text()))
			}
			if err := sc.Err(); err != nil {
				return err
			}
			if len(lines) < 2 || lines[0] == "" || lines[1] == "" {
				return errors.New("expected the secret and the password on two lines")
			}

			data, err := crypto.EncryptSecret(lines[0], lines[1])
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o600); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "encrypted secret written to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "secret.enc.json", "output file")
	return cmd
}

func fetchRatesCmd() *cobra.Command {
	var (
		interval string
		since    string
		count    int
		out      string
	)
	cmd := &cobra.Command{
		Use:   "fetch-rates",
		Short: "Download candles into a rate file for backtesting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.LogLevel)

			var start time.Time
			if since != "" {
				if start, err = time.Parse(time.DateOnly, since); err != nil {
					return fmt.Errorf("--since: %w", err)
				}
			}

			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()

			client := binance.NewClient(binance.ClientConfig{
				BaseURL: cfg.Exchange.RESTURL(),
				Timeout: cfg.Exchange.Timeout.Duration,
			})
			n, err := app.FetchRates(cmd.Context(), client, cfg.Symbol, interval, start, count, f, logger)
			if err != nil {
				return err
			}
			logger.Info("rates written", slog.String("path", out), slog.Int("rows", n))
			return f.Close()
		},
	}
	cmd.Flags().StringVar(&interval, "interval", "1h", "candle interval (1m, 5m, 1h, 1d, ...)")
	cmd.Flags().StringVar(&since, "since", "", "first candle date, YYYY-MM-DD (default: most recent candles)")
	cmd.Flags().IntVar(&count, "count", 1000, "number of candles")
	cmd.Flags().StringVarP(&out, "out", "o", "rates.csv", "output CSV file")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "spotbot %s\n", version)
		},
	}
}
