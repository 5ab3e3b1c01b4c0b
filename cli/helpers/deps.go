package helpers

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/bizradar/bizradar/engine/embedding"
	"github.com/bizradar/bizradar/engine/llm"
	"github.com/bizradar/bizradar/pkg/config"
	"github.com/bizradar/bizradar/pkg/logger"
)

// Deps bundles the shared wiring every CLI command needs.
type Deps struct {
	Config        *config.Config
	Log           logger.Logger
	Pool          *pgxpool.Pool
	Redis         *redis.Client
	Queue         *embedding.Queue
	EmbeddingRepo embedding.EmbeddingRepo
	JobsRepo      embedding.JobsRepo
	Store         embedding.BusinessStore
	Registry      *llm.Registry
}

// Setup loads configuration and connects the backing services. The returned
// cleanup closes all connections and must be called once the command exits.
func Setup(ctx context.Context) (*Deps, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.NewLogger(&logger.Config{
		Level:      logger.LogLevel(cfg.Log.Level),
		Output:     os.Stderr,
		JSON:       cfg.Log.JSON,
		TimeFormat: "15:04:05",
	})
	pool, err := pgxpool.New(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	deps := &Deps{
		Config:        cfg,
		Log:           log,
		Pool:          pool,
		Redis:         redisClient,
		Queue:         embedding.NewQueue(redisClient, ""),
		EmbeddingRepo: embedding.NewEmbeddingRepo(pool),
		JobsRepo:      embedding.NewJobsRepo(pool),
		Store:         embedding.NewBusinessStore(pool),
		Registry:      llm.NewRegistry(llm.FromAppConfig(cfg)),
	}
	cleanup := func() {
		pool.Close()
		if err := redisClient.Close(); err != nil {
			log.Warn("close redis", "error", err)
		}
	}
	return deps, cleanup, nil
}

// Context returns ctx with the dependency logger attached.
func (d *Deps) Context(ctx context.Context) context.Context {
	return logger.ContextWithLogger(ctx, d.Log)
}
