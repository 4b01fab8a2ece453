// Package main runs the wallet layer server: the balance ledger, the
// transaction journal and the withdrawal gateway in front of the approval
// authority.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/novadex/wallet-layer/internal/app"
	"github.com/novadex/wallet-layer/internal/app/httpapi"
	"github.com/novadex/wallet-layer/internal/app/metrics"
	"github.com/novadex/wallet-layer/internal/app/storage/postgres"
	"github.com/novadex/wallet-layer/internal/audit"
	"github.com/novadex/wallet-layer/internal/config"
	"github.com/novadex/wallet-layer/internal/gateway"
	"github.com/novadex/wallet-layer/internal/middleware"
	"github.com/novadex/wallet-layer/internal/platform/migrations"
	"github.com/novadex/wallet-layer/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	addr := flag.String("addr", "", "Listen address override (host:port)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.NewDefault("walletd").Fatalf("load config: %v", err)
	}

	log := logger.New(cfg.Logging)
	log.WithField("addr", cfg.Addr()).Info("starting wallet layer")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores := app.Stores{}
	if cfg.Database.DSN != "" {
		db, err := sqlx.Open("postgres", cfg.Database.DSN)
		if err != nil {
			log.Fatalf("open database: %v", err)
		}
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		if err := db.PingContext(ctx); err != nil {
			log.Fatalf("ping database: %v", err)
		}
		if err := migrations.Apply(ctx, db.DB); err != nil {
			log.Fatalf("apply migrations: %v", err)
		}
		defer db.Close()

		pg := postgres.New(db)
		stores = app.Stores{Ledger: pg, Journal: pg, Withdrawals: pg, Users: pg}
		log.Info("using postgres storage")
	} else {
		log.Warn("no database configured; using in-memory storage")
	}

	authority := gateway.NewClient(gateway.Config{
		BaseURL:       cfg.Authority.BaseURL,
		SubmitTimeout: cfg.Authority.SubmitTimeout,
		StatusTimeout: cfg.Authority.StatusTimeout,
	})

	application, err := app.New(stores, authority, app.Options{
		DedupWindow:     cfg.Dedup.Window,
		RefreshInterval: cfg.Authority.RefreshInterval,
	}, log)
	if err != nil {
		log.Fatalf("build application: %v", err)
	}

	auditLog, err := audit.New(cfg.Audit.RingSize, cfg.Audit.File, log)
	if err != nil {
		log.Fatalf("open audit sink: %v", err)
	}
	defer auditLog.Close()

	m := metrics.New()

	var limits httpapi.Limits
	var limiters []*middleware.RateLimiter
	chain := func(h http.Handler) http.Handler { return h }
	if cfg.RateLimit.Enabled {
		general := middleware.NewRateLimiter(middleware.GeneralBudget, m, log).WithAudit(auditLog)
		api := middleware.NewRateLimiter(middleware.APIBudget, m, log).WithAudit(auditLog)
		wd := middleware.NewRateLimiter(middleware.WithdrawalBudget, m, log).WithAudit(auditLog)
		limiters = []*middleware.RateLimiter{general, api, wd}
		limits = httpapi.Limits{API: api.Middleware, Withdrawal: wd.Middleware}
		chain = general.Middleware
	}
	defer func() {
		for _, rl := range limiters {
			rl.Stop()
		}
	}()

	handler := httpapi.New(application.Ledger, application.Journal, application.Withdrawals, application.Users, m, auditLog, log)

	root := middleware.RequestLogging(log)(
		middleware.CORS(cfg.Server.AllowedOrigins)(
			chain(handler.Routes(limits)),
		),
	)

	listen := cfg.Addr()
	if *addr != "" {
		listen = *addr
	}
	server := &http.Server{
		Addr:         listen,
		Handler:      root,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if err := application.Start(ctx); err != nil {
		log.Fatalf("start application: %v", err)
	}

	go func() {
		log.WithField("addr", listen).Info("listening")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Error("application stop")
	}

	log.Info("wallet layer stopped")
}
