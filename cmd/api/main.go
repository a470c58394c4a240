// API entrypoint: loads configuration, wires dependencies and serves HTTP
// plus the realtime websocket channel.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/livepoll/livepoll/internal/app/httpapi"
	"github.com/livepoll/livepoll/internal/app/likes"
	"github.com/livepoll/livepoll/internal/app/projection"
	"github.com/livepoll/livepoll/internal/app/realtime"
	"github.com/livepoll/livepoll/internal/app/votes"
	"github.com/livepoll/livepoll/internal/domain"
	"github.com/livepoll/livepoll/internal/platform/clock"
	"github.com/livepoll/livepoll/internal/platform/config"
	"github.com/livepoll/livepoll/internal/platform/health"
	"github.com/livepoll/livepoll/internal/platform/ids"
	"github.com/livepoll/livepoll/internal/platform/logger"
	"github.com/livepoll/livepoll/internal/platform/migrations"
	"github.com/livepoll/livepoll/internal/platform/ratelimit"
	postgresstorage "github.com/livepoll/livepoll/internal/platform/storage/postgres"
	redisstorage "github.com/livepoll/livepoll/internal/platform/storage/redis"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", "err", err)
	}

	// The connection is shared for the whole run to reuse the pool and back
	// the readiness check.
	db, err := postgresstorage.Open(ctx, cfg.PostgresDSN())
	if err != nil {
		logger.Fatal("failed to connect to postgres", "err", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("failed to get sql.DB", "err", err)
	}
	defer sqlDB.Close()

	if cfg.AutoMigrate {
		if err := migrations.Run(db); err != nil {
			logger.Fatal("automatic migration failed", "err", err)
		}
	}

	// Redis carries the poll-changed backplane and the rate limiter; without
	// it there is no realtime propagation.
	redisClient, err := redisstorage.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Fatal("failed to connect to redis", "err", err)
	}
	defer redisClient.Close()

	pollRepo := postgresstorage.NewPollRepository(db)
	likeRepo := postgresstorage.NewLikeRepository(db)
	voteRepo := postgresstorage.NewVoteRepository(db)
	signals := redisstorage.NewSignal(redisClient, cfg.SignalChannel)
	clockSystem := clock.NewSystemClock()
	idGen := ids.NewGenerator()

	var limiter domain.Limiter = ratelimit.NewNoop()
	if cfg.RateLimitEnabled {
		window := time.Duration(cfg.RateLimitWindowSeconds) * time.Second
		limiter = ratelimit.NewRedisLimiter(redisClient, cfg.RateLimitMaxActions, window, cfg.RateLimitKeyPrefix)
	}

	likeLedger := likes.NewService(pollRepo, likeRepo, signals, limiter, clockSystem, idGen)
	voteLedger := votes.NewService(pollRepo, voteRepo, signals, limiter, clockSystem, idGen)
	projector := projection.NewProjector(pollRepo, likeRepo)

	hub := realtime.NewHub(cfg.SessionBuffer)
	dispatcher := realtime.NewDispatcher(signals, projector, hub, logger.L())
	gateway := realtime.NewGateway(hub, signals, logger.L())

	// The dispatcher consumes every poll-changed signal this instance sees
	// and serves the sockets this instance owns.
	go func() {
		if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("dispatcher stopped", "err", err)
			stop()
		}
	}()

	mux := http.NewServeMux()
	checker := health.NewChecker(sqlDB, redisClient)

	api := httpapi.New(likeLedger, voteLedger, projector, logger.L())
	api.Register(mux)
	gateway.Register(mux)
	mux.HandleFunc("/readyz", checker.ReadyHandler())
	mux.Handle("/metrics", promhttp.Handler())

	logger.Info("api listening", "addr", cfg.HTTPAddress)
	if err := http.ListenAndServe(cfg.HTTPAddress, mux); err != nil {
		logger.Fatal("server error", "err", err)
	}
}
