package bootstrap

import (
	"context"
	"fmt"
	"os"
	"time"

	"triage_server/adapter/out/browser"
	"triage_server/adapter/out/mongodb"
	"triage_server/adapter/out/persistence"
	"triage_server/adapter/out/provider"
	"triage_server/config"
	"triage_server/core/agent/llm"
	"triage_server/core/port/out"
	"triage_server/core/service/classification"
	"triage_server/core/service/ingest"
	"triage_server/core/service/summary"
	"triage_server/core/service/unsubscribe"
	"triage_server/infra/database"
	"triage_server/pkg/cache"
	"triage_server/pkg/crypto"
	"triage_server/pkg/logger"
	"triage_server/pkg/resilience"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
)

const connectTimeout = 15 * time.Second

type Dependencies struct {
	Config  *config.Config
	DB      *pgxpool.Pool
	SQLDB   *sqlx.DB
	Redis   *redis.Client
	MongoDB *mongo.Client

	AccountRepo  *persistence.AccountAdapter
	CategoryRepo *persistence.CategoryAdapter
	EmailRepo    *persistence.EmailAdapter
	AttemptRepo  *persistence.AttemptAdapter
	ContentStore out.EmailContentStore

	LLM   *llm.Client
	Gmail *provider.GmailAdapter

	IngestService      *ingest.Service
	UnsubscribeService *unsubscribe.Service
}

// NewDependencies connects the stores and wires the services. Postgres is
// required; Redis and MongoDB are optional and their features degrade to
// in-process or disabled when absent.
func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	if cfg.IsProduction() {
		zlog = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zlog = zlog.Level(lvl)
	}

	deps := &Dependencies{Config: cfg}

	pgCfg := database.DefaultPostgresConfig()
	db, err := database.NewPostgres(ctx, cfg.DatabaseURL, pgCfg)
	if err != nil {
		return fail(err)
	}
	deps.DB = db
	cleanups = append(cleanups, db.Close)

	sqlDB, err := database.NewSQLX(ctx, cfg.DatabaseURL, pgCfg)
	if err != nil {
		return fail(err)
	}
	deps.SQLDB = sqlDB
	cleanups = append(cleanups, func() { _ = sqlDB.Close() })

	if cfg.DBAutoMigrate {
		if err := database.EnsureSchema(ctx, sqlDB); err != nil {
			return fail(err)
		}
		logger.Info("Database schema applied")
	}

	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedis(ctx, cfg.RedisURL, database.DefaultRedisConfig())
		if err != nil {
			return fail(err)
		}
		deps.Redis = redisClient
		cleanups = append(cleanups, func() { _ = redisClient.Close() })
	} else {
		logger.Warn("REDIS_URL not set: sync lock and shared embedding cache disabled")
	}

	if cfg.MongoDBURL != "" {
		mongoClient, err := mongodb.NewClient(ctx, cfg.MongoDBURL)
		if err != nil {
			return fail(err)
		}
		deps.MongoDB = mongoClient
		cleanups = append(cleanups, func() {
			dctx, dcancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer dcancel()
			_ = mongoClient.Disconnect(dctx)
		})

		contents := mongodb.NewEmailContentAdapter(mongoClient.Database(cfg.MongoDBName))
		if err := contents.EnsureIndexes(ctx); err != nil {
			logger.WithError(err).Warn("Failed to create email content indexes")
		}
		deps.ContentStore = contents
	} else {
		logger.Warn("MONGODB_URL not set: full email content is not stored")
	}

	var cipher *crypto.TokenCipher
	if cfg.EncryptionKey != "" {
		cipher, err = crypto.NewTokenCipher([]byte(cfg.EncryptionKey))
		if err != nil {
			return fail(fmt.Errorf("token cipher: %w", err))
		}
	}

	deps.AccountRepo = persistence.NewAccountAdapter(sqlDB, cipher)
	deps.CategoryRepo = persistence.NewCategoryAdapter(sqlDB)
	deps.EmailRepo = persistence.NewEmailAdapter(sqlDB)
	deps.AttemptRepo = persistence.NewAttemptAdapter(sqlDB)

	deps.LLM = llm.NewClient(llm.ClientConfig{
		APIKey:         cfg.OpenAIAPIKey,
		BaseURL:        cfg.OpenAIBaseURL,
		Model:          cfg.LLMModel,
		EmbeddingModel: cfg.EmbeddingModel,
		Timeout:        cfg.LLMTimeout(),
	})
	deps.Gmail = provider.NewGmailAdapter(&provider.GmailConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})

	var embeddings out.EmbeddingStore
	ingestOpts := ingest.Options{
		Contents: deps.ContentStore,
		PageSize: cfg.SyncPageSize,
	}
	if deps.Redis != nil {
		redisCache := cache.NewRedisCache(deps.Redis, "triage:")
		embeddings = persistence.NewEmbeddingCache(redisCache)
		ingestOpts.Locker = persistence.NewSyncLock(redisCache, cfg.SyncLockTTL(), zlog.With().Str("component", "sync_lock").Logger())
	}

	classifier := classification.NewEngine(deps.LLM, embeddings, classification.Config{
		Threshold: cfg.ClassifyThreshold,
		CacheTTL:  cfg.EmbeddingCacheTTL(),
	})
	deps.IngestService = ingest.NewService(
		deps.AccountRepo,
		deps.CategoryRepo,
		deps.EmailRepo,
		deps.Gmail,
		classifier,
		summary.NewSummarizer(deps.LLM),
		ingestOpts,
	)

	guard := browser.NewNavigationGuard(cfg.BrowserAllowPrivate)
	chrome := browser.NewChromeBrowser(browser.ChromeConfig{
		ExecPath:  cfg.ChromePath,
		NoSandbox: cfg.BrowserNoSandbox,
	}, guard, zlog.With().Str("component", "browser").Logger())

	navigation := resilience.NavigationRetryConfig()
	navigation.MaxAttempts = cfg.BrowserNavAttempts
	deps.UnsubscribeService = unsubscribe.NewService(
		deps.EmailRepo,
		deps.AccountRepo,
		deps.CategoryRepo,
		deps.AttemptRepo,
		chrome,
		unsubscribe.Options{
			Contents: deps.ContentStore,
			OneClick: browser.NewOneClickClient(nil, guard),
			Config: unsubscribe.Config{
				PageTimeout:   cfg.BrowserPageTimeout(),
				ActionTimeout: cfg.BrowserActionTimeout(),
				Navigation:    navigation,
			},
			Logger: zlog.With().Str("component", "unsubscribe").Logger(),
		},
	)

	return deps, cleanup, nil
}
