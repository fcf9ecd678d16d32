package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tigraodegente/ecomm-gdg-sub002/internal/cache"
	"github.com/tigraodegente/ecomm-gdg-sub002/internal/catalog"
	"github.com/tigraodegente/ecomm-gdg-sub002/internal/httpapi"
	"github.com/tigraodegente/ecomm-gdg-sub002/internal/lifecycle"
	"github.com/tigraodegente/ecomm-gdg-sub002/internal/popularity"
	"github.com/tigraodegente/ecomm-gdg-sub002/internal/search"
	"github.com/tigraodegente/ecomm-gdg-sub002/internal/search/refine"
	"github.com/tigraodegente/ecomm-gdg-sub002/internal/search/scorer"
	"github.com/tigraodegente/ecomm-gdg-sub002/internal/search/suggest"
	"github.com/tigraodegente/ecomm-gdg-sub002/pkg/config"
	"github.com/tigraodegente/ecomm-gdg-sub002/pkg/health"
	"github.com/tigraodegente/ecomm-gdg-sub002/pkg/kafka"
	"github.com/tigraodegente/ecomm-gdg-sub002/pkg/logger"
	"github.com/tigraodegente/ecomm-gdg-sub002/pkg/metrics"
	"github.com/tigraodegente/ecomm-gdg-sub002/pkg/middleware"
	"github.com/tigraodegente/ecomm-gdg-sub002/pkg/postgres"
	pkgredis "github.com/tigraodegente/ecomm-gdg-sub002/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port)

	m := metrics.New()
	var metricsShutdown func(context.Context) error
	if cfg.Metrics.Enabled {
		metricsShutdown = metrics.StartServer(cfg.Metrics.Port)
		slog.Info("metrics server started", "port", cfg.Metrics.Port)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store cache.Store
	var redisClient *pkgredis.Client
	redisClient, err = pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, falling back to in-memory cache", "error", err)
		store = cache.NewMemoryStore(nil)
	} else {
		defer redisClient.Close()
		store = cache.NewRedisStore(redisClient)
		slog.Info("result cache backed by redis", "addr", cfg.Redis.Addr)
	}

	var source catalog.Source
	pgClient, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("catalog database unavailable, rebuilds will rely on snapshots", "error", err)
		source = catalog.SourceFunc(func(context.Context) ([]catalog.Document, error) {
			return nil, fmt.Errorf("catalog database unavailable")
		})
	} else {
		defer pgClient.Close()
		source = catalog.NewPostgresSource(pgClient)
		slog.Info("catalog source connected", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	}

	queryProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.QueryEvents)
	defer queryProducer.Close()
	tracker := popularity.NewTracker(cfg.Cache.PopularMinHits, nil, queryProducer)
	tracker.Start(ctx)
	defer tracker.Close()
	slog.Info("popularity tracker started", "topic", cfg.Kafka.Topics.QueryEvents)

	cacheMgr := cache.NewManager(store, cache.TTLPolicy{
		BaseFresh:       cfg.Cache.BaseFresh,
		StaleMultiplier: cfg.Cache.StaleMultiplier,
		PopularBoost:    cfg.Cache.PopularBoost,
		Popularity:      tracker,
	}, nil, m)

	lc := lifecycle.New(source, store, cacheMgr, cfg.Index, m, nil)
	lc.Start(ctx)

	catalogConsumer := lifecycle.NewCatalogConsumer(cfg.Kafka, lc)
	defer catalogConsumer.Close()
	go func() {
		if err := catalogConsumer.Start(ctx); err != nil && ctx.Err() == nil {
			slog.Error("catalog consumer stopped", "error", err)
		}
	}()
	slog.Info("catalog consumer started", "topic", cfg.Kafka.Topics.CatalogChanges)

	weights := scorer.DefaultWeights()
	if err := weights.Validate(); err != nil {
		slog.Error("invalid scoring weights", "error", err)
		os.Exit(1)
	}
	engine := search.NewEngine(
		lc,
		scorer.New(weights),
		refine.New(cfg.Search.Locale, cfg.Search.MaxLimit),
		suggest.New(cfg.Search.SuggestBelowHits, cfg.Search.SuggestMinTermLen),
		m,
	)

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		ix, err := lc.Current(ctx)
		if err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d documents", ix.Len())}
	})
	checker.Register("cache_store", func(ctx context.Context) health.ComponentHealth {
		if err := store.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("catalog_db", func(ctx context.Context) health.ComponentHealth {
		if pgClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := pgClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	h := httpapi.New(engine, cacheMgr, lc, tracker, m, cfg.Search.DefaultLimit, cfg.Search.MaxLimit)
	requireAuth := httpapi.RequireBearer(cfg.Auth.RefreshToken)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.Handle("POST /api/v1/index/refresh", requireAuth(http.HandlerFunc(h.Refresh)))
	mux.Handle("GET /api/v1/index/export", requireAuth(http.HandlerFunc(h.Export)))
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.Handle("POST /api/v1/cache/invalidate", requireAuth(http.HandlerFunc(h.CacheInvalidate)))
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if metricsShutdown != nil {
			if err := metricsShutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}
