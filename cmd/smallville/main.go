package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nidhogg/smallville/internal/agent"
	"github.com/nidhogg/smallville/internal/api"
	"github.com/nidhogg/smallville/internal/config"
	"github.com/nidhogg/smallville/internal/embedding"
	"github.com/nidhogg/smallville/internal/llm"
	"github.com/nidhogg/smallville/internal/perception"
	"github.com/nidhogg/smallville/internal/sim"
	pgstore "github.com/nidhogg/smallville/internal/store"
	"github.com/nidhogg/smallville/internal/vectorstore"
	"github.com/nidhogg/smallville/internal/world"
)

const memoryCollection = "memories"

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting Smallville...")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/smallville.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// Model backend
	backend := llm.NewClient(llm.Config{
		Endpoint: cfg.Model.Endpoint,
		Model:    cfg.Model.Name,
		Timeout:  time.Duration(cfg.Model.TimeoutS) * time.Second,
	}, logger)

	// Embedding provider, optionally fronted by a Redis cache
	var embedder embedding.Provider = embedding.NewAPIProvider(embedding.Config{
		Endpoint:     cfg.Embedding.Endpoint,
		Model:        cfg.Embedding.Model,
		APIKey:       cfg.Embedding.APIKey,
		Dimension:    cfg.Embedding.Dimension,
		BatchSize:    cfg.Embedding.BatchSize,
		MaxRetries:   cfg.Embedding.MaxRetries,
		RetryBackoff: time.Duration(cfg.Embedding.RetryBackoffMS) * time.Millisecond,
	}, logger)
	if cfg.Database.Redis.URL != "" {
		opts, rErr := redis.ParseURL(cfg.Database.Redis.URL)
		if rErr != nil {
			logger.Warn("invalid redis URL, embedding cache disabled", zap.Error(rErr))
		} else {
			ttl := time.Duration(cfg.Embedding.CacheTTLHours) * time.Hour
			embedder = embedding.NewCachedProvider(embedder, cfg.Embedding.Model,
				redis.NewClient(opts), ttl, logger)
			logger.Info("Embedding cache enabled")
		}
	}

	// Vector index
	var vectors *vectorstore.Client
	if cfg.Database.Qdrant.Host != "" {
		vc, vErr := vectorstore.NewClient(vectorstore.Config{
			Host: cfg.Database.Qdrant.Host,
			Port: cfg.Database.Qdrant.Port,
		})
		if vErr != nil {
			logger.Warn("Qdrant unavailable, running without relevance scoring", zap.Error(vErr))
		} else {
			vectors = vc
			defer vectors.Close()
		}
	}

	// Durable store
	var store *pgstore.Store
	if cfg.Database.Postgres.DSN != "" {
		ps, pgErr := pgstore.New(context.Background(), cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, running without persistence", zap.Error(pgErr))
		} else {
			if mErr := ps.Migrate(context.Background(), "migrations"); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			store = ps
			defer store.Close()
		}
	}

	// World and population
	town := buildTown(cfg.Simulation.Population)

	perceiver := perception.NewService(backend, world.NewRenderer(), perception.Config{
		ImageBaseDir:        cfg.Perception.ImageBaseDir,
		GlanceIntervalTicks: cfg.Perception.GlanceIntervalTicks,
		ChangeThreshold:     cfg.Perception.ChangeThreshold,
	}, logger)

	radius := cfg.Perception.ViewRadius
	if radius <= 0 {
		radius = 3
	}

	relevance := relevanceFunc(town, perceiver, embedder, vectors, radius, logger)

	if vectors != nil {
		dim := uint64(embedder.Dimension())
		if dim == 0 {
			dim = 768
		}
		if err := vectors.EnsureCollection(context.Background(), memoryCollection, dim); err != nil {
			logger.Warn("ensure collection failed, relevance scoring disabled", zap.Error(err))
			vectors = nil
			relevance = nil
		}
	}

	agents := make([]sim.TickAgent, 0, cfg.Simulation.Population)
	for _, resident := range town.Agents() {
		seeds := seedMemories(resident.Name)
		if vectors != nil {
			if err := indexMemories(context.Background(), vectors, embedder, resident.ID, seeds); err != nil {
				logger.Warn("seed memory indexing failed", zap.String("agent", resident.ID), zap.Error(err))
			}
		}
		ca := agent.New(resident.ID, seeds, logger,
			agent.WithTopK(cfg.Simulation.RetrievalTopK),
			agent.WithRelevance(relevance))
		agents = append(agents, ca)
	}

	var persist sim.PersistFunc
	if store != nil {
		persist = store.PersistTick
	}

	scheduler, err := sim.NewScheduler(agents, sim.Config{
		TickInterval:   cfg.Simulation.TickInterval(),
		MaxConcurrency: cfg.Simulation.MaxConcurrency,
	}, persist, logger)
	if err != nil {
		logger.Fatal("scheduler construction failed", zap.Error(err))
	}

	// HTTP surface
	handler := api.NewHandler(scheduler, store, logger)
	port := fmt.Sprintf("%d", cfg.Server.Port)
	if port == "0" {
		port = "8080"
	}
	srv := &http.Server{Addr: ":" + port, Handler: handler.Router()}
	go func() {
		logger.Info("Smallville listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Stop at the next round boundary on SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown requested, stopping at round boundary")
		scheduler.Stop()
	}()

	history, err := scheduler.Run(context.Background(), cfg.Simulation.TotalTicks)
	if err != nil {
		logger.Fatal("simulation run failed", zap.Error(err))
	}
	logger.Info("Simulation complete", zap.Int("rounds", len(history)))

	runDialogues(context.Background(), town, backend, store, logger)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
