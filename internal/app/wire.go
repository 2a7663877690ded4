package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/quorumlabs/settled/internal/blob/s3"
	"github.com/quorumlabs/settled/internal/cache/redis"
	"github.com/quorumlabs/settled/internal/collateral"
	"github.com/quorumlabs/settled/internal/config"
	"github.com/quorumlabs/settled/internal/domain"
	"github.com/quorumlabs/settled/internal/engine"
	"github.com/quorumlabs/settled/internal/notify"
	"github.com/quorumlabs/settled/internal/oracle"
	"github.com/quorumlabs/settled/internal/store/postgres"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Settlement core
	Engine  *engine.Engine
	Vault   *collateral.Bank
	Oracles *oracle.Registry

	// Stores
	MarketStore     domain.MarketStore
	ClaimStore      domain.ClaimBalanceStore
	DisputeStore    domain.DisputeStore
	FeeStore        domain.FeeBalanceStore
	CollateralStore domain.CollateralStore
	AuditStore      domain.AuditStore

	// Caches and coordination
	MarketCache domain.MarketCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage (full mode only; nil otherwise)
	Archiver *s3blob.Archiver
	Reports  *s3blob.ReportReader

	// Notifications
	Notifier *notify.Notifier
}

// needsS3 returns true for modes that archive settlement reports.
func needsS3(mode string) bool {
	return mode == "full"
}

// engineParams converts validated configuration into engine parameters. The
// hex addresses were checked by config.Validate, so parsing cannot fail here.
func engineParams(cfg *config.Config) engine.Params {
	return engine.Params{
		DisputePeriod:        cfg.Engine.DisputePeriod.Duration,
		MinDisputeStake:      big.NewInt(cfg.Engine.MinDisputeStake),
		ProtocolFeePercent:   cfg.Engine.ProtocolFeePercent,
		ResolutionFeePercent: cfg.Engine.ResolutionFeePercent,
		DisputeRewardPercent: cfg.Engine.DisputeRewardPercent,
		Adjudicator:          common.HexToAddress(cfg.Engine.Adjudicator),
		Owner:                common.HexToAddress(cfg.Engine.Owner),
	}
}

// buildOracleRegistry registers every configured oracle. Manual oracles are
// created locally; aggregator oracles dial their JSON-RPC endpoint.
func buildOracleRegistry(ctx context.Context, cfg *config.Config) (*oracle.Registry, error) {
	reg := oracle.NewRegistry()

	for _, ref := range cfg.Oracles.Manual {
		reg.Register(oracle.NewManual(common.HexToAddress(ref)))
	}

	for _, agg := range cfg.Oracles.Aggregators {
		o, err := oracle.NewAggregator(ctx, agg.RPCURL, common.HexToAddress(agg.Contract))
		if err != nil {
			return nil, fmt.Errorf("aggregator %s: %w", agg.Contract, err)
		}
		reg.Register(o)
	}

	return reg, nil
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that must
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Oracles ---
	oracles, err := buildOracleRegistry(ctx, cfg)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: oracles: %w", err)
	}
	deps.Oracles = oracles

	// --- PostgreSQL ---
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

	pool := pgClient.Pool()
	deps.MarketStore = postgres.NewMarketStore(pool)
	deps.ClaimStore = postgres.NewClaimBalanceStore(pool)
	deps.DisputeStore = postgres.NewDisputeStore(pool)
	deps.FeeStore = postgres.NewFeeBalanceStore(pool)
	deps.CollateralStore = postgres.NewCollateralStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

	// --- Settlement engine ---
	// The vault writes every balance movement through to its store, so the
	// engine's collateral survives restarts.
	deps.Vault = collateral.NewBank(collateral.WithStore(deps.CollateralStore))
	deps.Engine = engine.New(deps.Vault, engineParams(cfg), logger)

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

	deps.MarketCache = redis.NewMarketCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- S3 blob storage (full mode only) ---
	if needsS3(cfg.Mode) {
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
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.AuditStore)
		deps.Reports = s3blob.NewReportReader(s3blob.NewReader(s3Client))
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
