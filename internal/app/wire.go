package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/basislabs/hedgerd/internal/blob/s3"
	"github.com/basislabs/hedgerd/internal/cache/redis"
	"github.com/basislabs/hedgerd/internal/config"
	"github.com/basislabs/hedgerd/internal/crypto"
	"github.com/basislabs/hedgerd/internal/domain"
	"github.com/basislabs/hedgerd/internal/engine"
	"github.com/basislabs/hedgerd/internal/ledger"
	"github.com/basislabs/hedgerd/internal/notify"
	"github.com/basislabs/hedgerd/internal/service"
	"github.com/basislabs/hedgerd/internal/store/postgres"
	"github.com/basislabs/hedgerd/internal/valuation"
	"github.com/basislabs/hedgerd/internal/venue/sim"
)

// Dependencies bundles everything the application modes need to operate. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores (nil in sim mode)
	Journal domain.LedgerJournal
	Audit   domain.AuditStore

	// Caches (nil in sim mode)
	RateCache   domain.RateCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage (nil unless s3.enabled)
	BlobWriter domain.BlobWriter
	Archiver   domain.Archiver

	// Notifications
	Notifier *notify.Notifier

	// Core
	Owner     domain.Address
	Valuer    valuation.Service
	Live      *valuation.LiveService // nil when running on the static table
	Ledger    *ledger.Ledger
	Registry  *ledger.VenueRegistry
	Engine    *engine.Engine
	Estimator *engine.Estimator
	Portfolio *service.PortfolioService
	Admin     *service.AdminService

	// Collaborator connectors
	Issuers     map[domain.AssetClass]domain.YieldIssuer
	HedgeVenue  *sim.HedgeVenue
	StableVenue *sim.StableVenue
}

// Simulated collaborator parameters. The issuer fee and APRs stand in for
// whatever the live venues would report; real connectors replace these
// behind the domain interfaces.
const (
	simIssueFeeBps = 200
	simETHYieldBps = 350
	simBTCYieldBps = 150
	simUSDYieldBps = 450
	simStableBps   = 600
	simFundingRate = 10_000 // FundingScale fixed point, 1%
)

// Placeholder identities used in sim mode and whenever the config leaves an
// address empty.
var (
	simETHAsset     = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	simBTCAsset     = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	simUSDAsset     = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	simHedgeAddr    = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	simStableAddr   = common.HexToAddress("0x00000000000000000000000000000000000000f2")
	simOwnerAddress = common.HexToAddress("0x00000000000000000000000000000000000000ad")
)

// needsPostgres returns true for modes that journal to a database.
func needsPostgres(mode string) bool {
	return mode != "sim"
}

// needsRedis returns true for modes that use the cache, bus, and locks.
func needsRedis(mode string) bool {
	return mode != "sim"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Owner identity ---
	if cfg.Mode == "sim" && cfg.Owner.Address == "" && cfg.Owner.EncryptedKeyPath == "" {
		deps.Owner = simOwnerAddress
	} else {
		owner, err := crypto.LoadOwner(crypto.KeyConfig{
			Address:          cfg.Owner.Address,
			EncryptedKeyPath: cfg.Owner.EncryptedKeyPath,
			KeyPassword:      cfg.Owner.KeyPassword,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("wire: owner: %w", err)
		}
		deps.Owner = owner
	}

	// --- PostgreSQL (journal + audit, skipped in sim mode) ---
	if needsPostgres(cfg.Mode) {
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
		deps.Journal = postgres.NewJournalStore(pool)
		deps.Audit = postgres.NewAuditStore(pool)
	}

	// --- Redis (rates, locks, bus, rate limiting; skipped in sim mode) ---
	if needsRedis(cfg.Mode) {
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

		deps.RateCache = redis.NewRateCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
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

	// --- Valuation ---
	assets := map[domain.AssetClass]domain.Address{
		domain.ClassETH: assetAddress(cfg.Assets.ETH, simETHAsset),
		domain.ClassBTC: assetAddress(cfg.Assets.BTC, simBTCAsset),
		domain.ClassUSD: assetAddress(cfg.Assets.USD, simUSDAsset),
	}
	rates := map[domain.Address]int64{
		assets[domain.ClassETH]: cfg.Assets.ETH.RateUSD,
		assets[domain.ClassBTC]: cfg.Assets.BTC.RateUSD,
		assets[domain.ClassUSD]: cfg.Assets.USD.RateUSD,
	}
	if deps.RateCache != nil {
		live := valuation.NewLive(deps.RateCache, rates, logger)
		deps.Live = live
		deps.Valuer = live
	} else {
		deps.Valuer = valuation.NewStatic(rates)
	}

	// --- Collaborator connectors ---
	deps.Issuers = map[domain.AssetClass]domain.YieldIssuer{
		domain.ClassETH: sim.NewIssuer(assets[domain.ClassETH], simIssueFeeBps, simETHYieldBps),
		domain.ClassBTC: sim.NewIssuer(assets[domain.ClassBTC], simIssueFeeBps, simBTCYieldBps),
		domain.ClassUSD: sim.NewIssuer(assets[domain.ClassUSD], simIssueFeeBps, simUSDYieldBps),
	}
	deps.HedgeVenue = sim.NewHedgeVenue()
	deps.HedgeVenue.SetFundingRate(assets[domain.ClassETH], simFundingRate)
	deps.HedgeVenue.SetFundingRate(assets[domain.ClassBTC], simFundingRate)
	deps.StableVenue = sim.NewStableVenue(simStableBps)

	// --- Ledger and venue registry ---
	deps.Registry = ledger.NewVenueRegistry(simStableAddr)
	deps.Ledger = ledger.New(deps.Valuer, assets, deps.Registry, logger)

	// --- Services ---
	admin, err := service.NewAdminService(
		deps.Owner,
		cfg.Policy.Policy(),
		deps.Registry,
		map[domain.Address]domain.HedgeVenue{simHedgeAddr: deps.HedgeVenue},
		simHedgeAddr,
		deps.Audit,
		deps.Notifier,
		logger,
	)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: admin service: %w", err)
	}
	deps.Admin = admin

	deps.Engine = engine.New(deps.Ledger, deps.Valuer, admin, admin, logger)
	deps.Estimator = engine.NewEstimator(deps.Ledger, deps.Issuers, logger)

	deps.Portfolio = service.NewPortfolioService(service.PortfolioDeps{
		Ledger:    deps.Ledger,
		Engine:    deps.Engine,
		Estimator: deps.Estimator,
		Issuers:   deps.Issuers,
		Stables:   map[domain.Address]domain.StableVenue{simStableAddr: deps.StableVenue},
		Venues:    admin,
		Guard:     service.NewGuard(),
		Journal:   deps.Journal,
		Audit:     deps.Audit,
		Bus:       deps.SignalBus,
		Notifier:  deps.Notifier,
	}, logger)

	// --- S3 archival (optional, requires the journal) ---
	if cfg.S3.Enabled && deps.Journal != nil && deps.Audit != nil {
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

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.Journal, deps.Audit)
	}

	return deps, cleanup, nil
}

// assetAddress resolves a configured asset address, falling back to the sim
// placeholder when the config leaves it empty.
func assetAddress(cfg config.AssetConfig, fallback domain.Address) domain.Address {
	if cfg.Address == "" {
		return fallback
	}
	return common.HexToAddress(cfg.Address)
}
