// Package main is the entry point for the anavi settlement back-office
// server. Runs on port 8081 and exposes admin-only endpoints protected by
// an IP allowlist plus admin JWTs.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/anavi/settlement/internal/backoffice"
	"github.com/anavi/settlement/internal/config"
	"github.com/anavi/settlement/internal/repository"
	"github.com/anavi/settlement/internal/service"
)

func main() {
	// ── Config + logger ───────────────────────────────────────────────────────
	cfg := config.MustLoad()

	var logHandler slog.Handler
	if cfg.IsProd() {
		logHandler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		logHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	logger.Info("starting anavi settlement backoffice server",
		"env", cfg.Server.Env, "port", cfg.Server.BackofficePort)

	// ── Database ──────────────────────────────────────────────────────────────
	db, err := sqlx.Connect("postgres", cfg.DB.DSN)
	if err != nil {
		logger.Error("database connection failed", "err", err)
		os.Exit(1)
	}
	db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	db.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	if err = db.Ping(); err != nil {
		logger.Error("database ping failed", "err", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	// ── Repositories ──────────────────────────────────────────────────────────
	userRepo := repository.NewUserRepository(db)
	dealRepo := repository.NewDealRepository(db)
	escrowRepo := repository.NewEscrowRepository(db)
	payoutRepo := repository.NewPayoutRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// ── Services ──────────────────────────────────────────────────────────────
	auditSvc := service.NewAuditService(db, auditRepo, logger)
	authSvc := service.NewAuthService(cfg)
	payoutSvc := service.NewPayoutService(db, payoutRepo, dealRepo, auditSvc, logger)
	trustSvc := service.NewTrustService(db, userRepo, auditSvc, logger)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Router ────────────────────────────────────────────────────────────────
	router := backoffice.SetupBackofficeRouter(backoffice.BackofficeDeps{
		AuthSvc:    authSvc,
		AuditSvc:   auditSvc,
		PayoutSvc:  payoutSvc,
		TrustSvc:   trustSvc,
		EscrowRepo: escrowRepo,
		DealRepo:   dealRepo,
		PayoutRepo: payoutRepo,
		Hub:        nil, // backoffice does not directly serve WS
		Cfg:        cfg,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.BackofficePort,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// ── Start ─────────────────────────────────────────────────────────────────
	go func() {
		logger.Info("backoffice http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("backoffice server error", "err", err)
			stop()
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err = srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("backoffice shutdown error", "err", err)
	}

	db.Close()
	logger.Info("backoffice server stopped cleanly")
}
