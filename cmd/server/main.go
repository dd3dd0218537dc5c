package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/innovatewithkishlay/justlputhings/internal/alert"
	"github.com/innovatewithkishlay/justlputhings/internal/cache"
	"github.com/innovatewithkishlay/justlputhings/internal/config"
	"github.com/innovatewithkishlay/justlputhings/internal/database"
	"github.com/innovatewithkishlay/justlputhings/internal/gate"
	"github.com/innovatewithkishlay/justlputhings/internal/handler"
	"github.com/innovatewithkishlay/justlputhings/internal/limiter"
	"github.com/innovatewithkishlay/justlputhings/internal/logging"
	"github.com/innovatewithkishlay/justlputhings/internal/queue"
	"github.com/innovatewithkishlay/justlputhings/internal/repository"
	"github.com/innovatewithkishlay/justlputhings/internal/router"
	"github.com/innovatewithkishlay/justlputhings/internal/storage"
	"github.com/innovatewithkishlay/justlputhings/internal/token"
	"github.com/innovatewithkishlay/justlputhings/internal/worker"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments use the environment

	cfg := config.Load()
	log := logging.New(os.Stdout, cfg.Env)

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatal().Err(err).Msg("database connect failed")
	}
	defer db.Close()
	if err := database.RunMigrations(database.DSN(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn().Msg("redis unreachable: caching disabled, rate limiting fails open, telemetry dropped")
	}

	store, err := storage.NewStore(storage.Config{
		Endpoint:  cfg.StorageEndpoint,
		AccessKey: cfg.StorageAccessKey,
		SecretKey: cfg.StorageSecretKey,
		Bucket:    cfg.StorageBucket,
		UseSSL:    cfg.StorageUseSSL,
		Timeout:   cfg.StorageTimeout,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("object storage client failed")
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	materials := repository.NewMaterialRepo(db)
	stats := repository.NewStatsRepo(db)

	denylist := token.NewRedisDenylist(rdb, log)
	tokenSvc := token.NewService(
		cfg.JWTSecret,
		time.Duration(cfg.AccessTTLMin)*time.Minute,
		time.Duration(cfg.RefreshTTLDays)*24*time.Hour,
		cfg.BcryptCost,
		users, tokens, denylist, log,
	)

	events := queue.New(rdb, log)
	dispatcher := queue.NewDispatcher(events, 1024, log)
	defer dispatcher.Close()

	matCache := cache.New(rdb, cfg.MaterialCacheTTL, log)
	rl := limiter.NewSlidingWindow(rdb, cfg.RateLimitMax, cfg.RateLimitWindow, cfg.RateLimitEnabled, log)
	accessGate := gate.New(materials, matCache, rl, store, dispatcher, stats, cfg.SignedURLTTL, log)

	registry := prometheus.NewRegistry()
	metrics := worker.NewMetrics(registry)
	var alerts worker.AlertPublisher
	if p := alert.NewPublisher(cfg.AMQPURL, log); p != nil {
		alerts = p
	}
	agg := worker.New(events, stats, alerts, metrics,
		cfg.AggregateBatchSize, cfg.AggregateInterval, cfg.AggregateTimeout, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go agg.Start(ctx)
	go worker.NewJanitor(tokens, cfg.TokenCleanupInterval, log).Start(ctx)

	e := echo.New()
	e.HideBanner = true
	router.Register(e, router.Deps{
		Auth:         handler.NewAuthHandler(tokenSvc),
		Access:       handler.NewAccessHandler(accessGate),
		Admin:        handler.NewAdminHandler(db, materials, users, tokens, stats, store, log),
		WorkerHealth: handler.NewWorkerHealthHandler(agg, events),
		Verifier:     tokenSvc,
		Users:        users,
		Gatherer:     registry,
	})

	addr := ":" + cfg.Port
	log.Info().Str("addr", addr).Str("env", cfg.Env).Msg("listening")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = e.Shutdown(shutdownCtx)
	}()

	if err := e.Start(addr); err != nil {
		log.Info().Err(err).Msg("server stopped")
	}
}
