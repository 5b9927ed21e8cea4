package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"commerce-calls/internal/audit"
	"commerce-calls/internal/auth"
	"commerce-calls/internal/billing"
	"commerce-calls/internal/config"
	"commerce-calls/internal/httpapi"
	"commerce-calls/internal/pricing"
	"commerce-calls/internal/records"
	"commerce-calls/internal/reporting"
	"commerce-calls/internal/signaling"
	"commerce-calls/pkg/logger"
	"commerce-calls/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
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

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, cfg.PostgresDSN(), utils.PoolConfig{})
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

	h, hub, err := build(rootCtx, cfg, log, db, rdb, authManager)
	if err != nil {
		log.Error("service init failed", "err", err)
		os.Exit(1)
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	registerRoutes(r, h, routeOptions{
		Auth:             auth.RequireAccessToken(authManager),
		CreditLimit:      billing.RequireCreditLimit(h.Billing, cfg.Billing.CreditLimitMinor),
		DBHealth:         func(ctx context.Context) error { return utils.HealthCheck(ctx, db, 2*time.Second) },
		EnforceCreditCap: cfg.Billing.RatePerMinuteMinor > 0 || cfg.Billing.PricingFile != "",
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		// Hijacked signaling connections outlive Shutdown; tie them to the root context.
		BaseContext: func(net.Listener) context.Context { return rootCtx },
	}

	g, gctx := errgroup.WithContext(rootCtx)
	g.Go(func() error {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "node_id", cfg.Relay.NodeID)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return hub.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown initiated")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown failed", "err", err)
		}
		return logger.ShutdownFlush(shutdownCtx, 2*time.Second)
	})

	if err := g.Wait(); err != nil {
		log.Error("api stopped", "err", err)
		os.Exit(1)
	}
}

// build wires storage, services and the relay hub.
func build(ctx context.Context, cfg config.Config, log *slog.Logger, db *sql.DB, rdb *redis.Client, am *auth.Manager) (httpapi.Handlers, *signaling.Hub, error) {
	recRepo := records.NewSQLRepo(db, records.Postgres)
	billRepo := billing.NewSQLRepo(db)
	auditRepo := audit.NewSQLRepo(db)
	for _, m := range []interface{ Migrate(context.Context) error }{recRepo, billRepo, auditRepo} {
		if err := m.Migrate(ctx); err != nil {
			return httpapi.Handlers{}, nil, err
		}
	}

	audits := audit.NewService(auditRepo)
	bill := billing.NewService(billRepo, billing.Rate{
		PerMinuteMinor: cfg.Billing.RatePerMinuteMinor,
		Currency:       cfg.Billing.Currency,
	}).WithAuditor(audits)
	if cfg.Billing.PricingFile != "" {
		plans, err := pricing.LoadFile(cfg.Billing.PricingFile)
		if err != nil {
			return httpapi.Handlers{}, nil, err
		}
		bill = bill.WithPricer(pricing.NewService(plans))
	}

	recs := records.NewService(recRepo)
	if cfg.Billing.RatePerMinuteMinor > 0 || cfg.Billing.PricingFile != "" {
		recs = recs.WithCharger(bill)
	}

	opts := signaling.Options{
		NodeID:            cfg.Relay.NodeID,
		Bus:               signaling.NewRedisBus(rdb, log),
		Presence:          signaling.NewRedisPresence(rdb, 0),
		Auditor:           audits,
		MessagesPerSecond: cfg.Relay.MessagesPerSecond,
		Logger:            log,
	}
	if cfg.Relay.MaxCallsPerTenant > 0 {
		opts.Gate = signaling.NewRedisGate(rdb, cfg.Relay.MaxCallsPerTenant, 0)
	}
	hub, err := signaling.NewHub(opts)
	if err != nil {
		return httpapi.Handlers{}, nil, err
	}

	h := httpapi.Handlers{
		Auth:      am,
		Hub:       hub,
		Records:   recs,
		Billing:   bill,
		Reporting: reporting.NewService(reporting.Stores{Records: recRepo, Billing: billRepo}),
		Timers:    cfg.Calls,
		DevLogin:  cfg.App.Env == "local" || cfg.App.Env == "dev",
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Connections authenticate with a bearer token, never cookies.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	return h, hub, nil
}
