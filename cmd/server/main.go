// Package main is the entry point for the anavi settlement API server.
// It wires together all services and starts the HTTP server alongside the
// WebSocket hub and the background scheduler.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver

	"github.com/anavi/settlement/internal/api"
	"github.com/anavi/settlement/internal/config"
	"github.com/anavi/settlement/internal/processor"
	"github.com/anavi/settlement/internal/repository"
	"github.com/anavi/settlement/internal/scheduler"
	"github.com/anavi/settlement/internal/service"
	"github.com/anavi/settlement/internal/ws"
)

func main() {
	// ── 1. Config + logger ────────────────────────────────────────────────────
	cfg := config.MustLoad()

	var logHandler slog.Handler
	if cfg.IsProd() {
		logHandler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		logHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	logger.Info("starting anavi settlement server", "env", cfg.Server.Env, "port", cfg.Server.Port)

	// ── 2. Database ───────────────────────────────────────────────────────────
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

	// ── 3. Migrations ─────────────────────────────────────────────────────────
	if err = runMigrations(db, "migrations"); err != nil {
		logger.Error("migrations failed", "err", err)
		os.Exit(1)
	}
	logger.Info("migrations applied")

	// ── 4. Repositories ───────────────────────────────────────────────────────
	userRepo := repository.NewUserRepository(db)
	dealRepo := repository.NewDealRepository(db)
	escrowRepo := repository.NewEscrowRepository(db)
	milestoneRepo := repository.NewMilestoneRepository(db)
	payoutRepo := repository.NewPayoutRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// ── 5. Payment processor client ───────────────────────────────────────────
	proc := processor.NewHTTPClient(cfg.Processor, logger)

	// ── 6. Services (order matters for injection) ─────────────────────────────
	locks := service.NewDealLocks()

	auditSvc := service.NewAuditService(db, auditRepo, logger)

	authSvc := service.NewAuthService(cfg)

	escrowSvc := service.NewEscrowService(db, escrowRepo, dealRepo, auditSvc, proc, locks, logger)

	payoutSvc := service.NewPayoutService(db, payoutRepo, dealRepo, auditSvc, logger)

	trustSvc := service.NewTrustService(db, userRepo, auditSvc, logger)

	milestoneSvc := service.NewMilestoneService(db, milestoneRepo, dealRepo, userRepo,
		escrowSvc, payoutSvc, trustSvc, auditSvc, locks, logger)

	// Wire circular dependencies via interfaces
	escrowSvc.SetGate(milestoneSvc)

	// ── 7. WebSocket Hub ──────────────────────────────────────────────────────
	jwtSecret := []byte(cfg.JWT.AccessSecret)
	hub := ws.NewHub(jwtSecret, cfg.WS.AllowedOrigins)

	// Committed audit entries stream to WS subscribers.
	auditSvc.SetBroadcaster(hub)

	// ── 8. Root context + signal handling ─────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 9. Start WS Hub ───────────────────────────────────────────────────────
	go hub.Run()
	logger.Info("websocket hub started")

	// ── 10. Scheduler ─────────────────────────────────────────────────────────
	sched := scheduler.NewScheduler(auditSvc, payoutSvc, hub, cfg, logger)
	sched.Start(ctx)

	// ── 11. HTTP Router ───────────────────────────────────────────────────────
	router := api.SetupRouter(api.RouterDeps{
		AuthSvc:      authSvc,
		EscrowSvc:    escrowSvc,
		MilestoneSvc: milestoneSvc,
		PayoutSvc:    payoutSvc,
		TrustSvc:     trustSvc,
		AuditSvc:     auditSvc,
		DealRepo:     dealRepo,
		Hub:          hub,
		Cfg:          cfg,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// ── 12. Start server ──────────────────────────────────────────────────────
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
			stop() // trigger graceful shutdown
		}
	}()

	// ── 13. Graceful shutdown ─────────────────────────────────────────────────
	<-ctx.Done()
	logger.Info("shutdown signal received, draining connections…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "err", err)
	}

	db.Close()
	logger.Info("server stopped cleanly")
}

// runMigrations reads all *.sql files from dir, sorted by name, and executes
// them sequentially.  Idempotent: SQL files should use IF NOT EXISTS / ON CONFLICT.
func runMigrations(db *sqlx.DB, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("runMigrations: read dir %q: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("runMigrations: read %q: %w", f, err)
		}
		if _, err = db.Exec(string(data)); err != nil {
			return fmt.Errorf("runMigrations: exec %q: %w", f, err)
		}
		slog.Info("migration applied", "file", filepath.Base(f))
	}
	return nil
}
