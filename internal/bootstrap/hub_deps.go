package bootstrap

import (
	"context"
	"strings"
	"time"

	"kitchenhub_server/adapter/out/persistence"
	"kitchenhub_server/config"
	"kitchenhub_server/core/port/out"
	syncservice "kitchenhub_server/core/service/sync"
	"kitchenhub_server/infra/database"
	"kitchenhub_server/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

type Dependencies struct {
	Config *config.Config
	DB     *pgxpool.Pool
	SQLDB  *sqlx.DB
	Redis  *redis.Client

	// Repositories
	Ledger     out.IdempotencyLedger
	ListRepo   out.ListRepository
	RecipeRepo out.RecipeRepository
	ChoreRepo  out.ChoreRepository

	// Services
	SyncService *syncservice.Service
}

func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()

	// Database (pgxpool)
	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	deps.DB = db
	cleanups = append(cleanups, func() { db.Close() })

	// Apply schema before any adapter touches the tables
	if err := database.EnsureSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, nil, err
	}

	// Database (sqlx for adapters)
	logger.Debug("Connecting to database via sqlx...")
	sqlxURL := cfg.DatabaseURL
	if strings.Contains(sqlxURL, "?") {
		sqlxURL += "&default_query_exec_mode=simple_protocol"
	} else {
		sqlxURL += "?default_query_exec_mode=simple_protocol"
	}
	sqlDB, err := sqlx.Connect("pgx", sqlxURL)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	deps.SQLDB = sqlDB
	cleanups = append(cleanups, func() { sqlDB.Close() })
	logger.Info("sqlx database connection successful (pool: max=%d, idle=%d)", 25, 10)

	// Redis (optional; health endpoint reports it)
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedis(cfg.RedisURL)
		if err != nil {
			logger.Warn("Redis connection failed: %v", err)
		} else {
			deps.Redis = redisClient
			cleanups = append(cleanups, func() { redisClient.Close() })
		}
	}

	// Repositories
	deps.Ledger = persistence.NewIdempotencyLedger(sqlDB)
	deps.ListRepo = persistence.NewListRepository(sqlDB)
	deps.RecipeRepo = persistence.NewRecipeRepository(sqlDB)
	deps.ChoreRepo = persistence.NewChoreRepository(sqlDB)

	// Sync service
	processor := syncservice.NewProcessor(deps.Ledger)
	aggregator := syncservice.NewAggregator(processor, deps.ListRepo, deps.RecipeRepo, deps.ChoreRepo)
	deps.SyncService = syncservice.NewService(aggregator, deps.ListRepo, deps.RecipeRepo, deps.ChoreRepo)
	logger.Info("Sync service initialized")

	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	return deps, cleanup, nil
}

func (d *Dependencies) HealthCheck(ctx context.Context) error {
	if err := d.DB.Ping(ctx); err != nil {
		return err
	}

	if d.Redis != nil {
		if err := d.Redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}

	return nil
}
