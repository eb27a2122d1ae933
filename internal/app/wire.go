package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/spotbot/internal/blob/s3"
	"github.com/alanyoungcy/spotbot/internal/cache/redis"
	"github.com/alanyoungcy/spotbot/internal/config"
	"github.com/alanyoungcy/spotbot/internal/crypto"
	"github.com/alanyoungcy/spotbot/internal/domain"
	"github.com/alanyoungcy/spotbot/internal/notify"
	"github.com/alanyoungcy/spotbot/internal/platform/binance"
	"github.com/alanyoungcy/spotbot/internal/store/postgres"
	"github.com/alanyoungcy/spotbot/internal/store/sqlite"
	"github.com/alanyoungcy/spotbot/internal/trader"
)

// Dependencies bundles the infrastructure the modes run on. It is built by
// Wire and torn down by the returned cleanup function. Optional members are
// nil when their backend is not configured.
type Dependencies struct {
	Exchange *binance.Client

	// Run-state persistence and session locking
	States      domain.StateStore
	Locks       domain.LockManager
	RateLimiter domain.RateLimiter

	// Position history
	Journal domain.PositionJournal

	// Blob storage
	BlobReader domain.BlobReader
	Archiver   trader.ResultArchiver

	Notifier *notify.Notifier
}

// needsState reports whether the mode persists run state.
func needsState(mode string) bool {
	return mode == "trade"
}

// Wire constructs the concrete dependencies from cfg and returns them
// together with a cleanup function that releases them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Exchange ---
	clientCfg := binance.ClientConfig{
		BaseURL:    cfg.Exchange.RESTURL(),
		RecvWindow: cfg.Exchange.RecvWindow.Duration,
		Timeout:    cfg.Exchange.Timeout.Duration,
	}
	if cfg.Mode == "trade" && !cfg.Trader.DryRun {
		secret, err := crypto.LoadSecret(crypto.SecretConfig{
			RawSecret:     cfg.Exchange.APISecret,
			EncryptedPath: cfg.Exchange.EncryptedSecretPath,
			Password:      cfg.Exchange.SecretPassword,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("wire: exchange secret: %w", err)
		}
		clientCfg.APIKey = cfg.Exchange.APIKey
		clientCfg.APISecret = secret
	}
	deps.Exchange = binance.NewClient(clientCfg)

	// --- Run state ---
	if needsState(cfg.Mode) {
		switch cfg.State.Backend {
		case "redis":
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

			deps.States = redis.NewStateStore(redisClient)
			deps.Locks = redis.NewLockManager(redisClient, logger)
			deps.RateLimiter = redis.NewRateLimiter(redisClient)

		case "sqlite":
			store, err := sqlite.Open(cfg.State.SQLitePath)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: sqlite: %w", err)
			}
			closers = append(closers, func() { _ = store.Close() })
			deps.States = store

		case "none":
			logger.WarnContext(ctx, "run state persistence disabled; a restart starts a fresh session")
		}
	}

	// --- PostgreSQL position journal ---
	if cfg.Postgres.Enabled && cfg.Mode == "trade" {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		deps.Journal = postgres.NewPositionJournal(pgClient.Pool())
	}

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
			Prefix:         cfg.S3.Prefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		if err := s3Client.Health(ctx); err != nil {
			logger.WarnContext(ctx, "s3 bucket not reachable; uploads may fail", slog.String("error", err.Error()))
		}

		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client))
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
