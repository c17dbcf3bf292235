package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"musicmatch-platform/internal/affinity"
	"musicmatch-platform/internal/audit"
	"musicmatch-platform/internal/auth"
	"musicmatch-platform/internal/callrequest"
	"musicmatch-platform/internal/config"
	"musicmatch-platform/internal/httpapi"
	"musicmatch-platform/internal/presence"
	"musicmatch-platform/internal/sweeper"
	"musicmatch-platform/internal/taste"
	"musicmatch-platform/pkg/logger"
	"musicmatch-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	weights := affinity.DefaultWeights()
	weights.RecencyRawCap = cfg.Match.RecencyRawCap

	ranker := affinity.NewRanker(
		affinity.NewScorer(weights),
		taste.NewRedisSource(rdb, cfg.Match.TasteTTL),
		presence.NewRedisSource(rdb, cfg.Match.PresenceTTL),
	)
	calls := callrequest.NewService(callrequest.NewPostgresRepo(db))
	auditSvc := audit.NewService(audit.NewMemoryRepo())

	// Stale-pending expiry runs next to the server; a zero interval disables it.
	go sweeper.New(calls, cfg.Match.SweepInterval, cfg.Match.PendingTTL, log).Run(rootCtx)

	handlers := httpapi.Handlers{
		Auth:    authManager,
		Ranker:  ranker,
		Calls:   calls,
		Audit:   auditSvc,
		Redis:   rdb,
		DialCap: cfg.Match.MaxConcurrentDials,
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, auth.RequireAccessToken(authManager), handlers, db)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
