// Package scheduler runs the two background goroutines that keep the
// ledger honest:
//  1. chainVerifyLoop  – re-verifies the audit hash chain on an interval
//     and raises an alert when a link is broken.
//  2. stalePayoutLoop  – flags payouts stuck in processing longer than
//     the configured threshold so an operator can intervene.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/anavi/settlement/internal/config"
	"github.com/anavi/settlement/internal/domain"
	"github.com/anavi/settlement/internal/service"
)

// ──────────────────────────────────────────────────────────────────────────────
// AlertHub interface
// ──────────────────────────────────────────────────────────────────────────────

// AlertHub defines the broadcast operation the Scheduler needs from the
// WebSocket hub. Declared here so the scheduler package does not import
// the ws implementation and cause a circular dependency.
type AlertHub interface {
	BroadcastChainAlert(report domain.ChainReport)
}

// ──────────────────────────────────────────────────────────────────────────────
// Scheduler
// ──────────────────────────────────────────────────────────────────────────────

// Scheduler wires together the services and runs the background loops.
// Call Start(ctx) once from main(); cancel the context to shut it down
// gracefully.
type Scheduler struct {
	auditSvc  *service.AuditService
	payoutSvc *service.PayoutService
	hub       AlertHub
	cfg       *config.Config
	logger    *slog.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(
	auditSvc *service.AuditService,
	payoutSvc *service.PayoutService,
	hub AlertHub,
	cfg *config.Config,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		auditSvc:  auditSvc,
		payoutSvc: payoutSvc,
		hub:       hub,
		cfg:       cfg,
		logger:    logger,
	}
}

// Start launches the background goroutines. It returns immediately; all
// loops run until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.chainVerifyLoop(ctx)
	go s.stalePayoutLoop(ctx)
	s.logger.Info("scheduler started",
		"chain_verify_interval", s.cfg.Scheduler.ChainVerifyInterval,
		"stale_payout_after", s.cfg.Scheduler.StalePayoutAfter)
}

// ──────────────────────────────────────────────────────────────────────────────
// chainVerifyLoop
// ──────────────────────────────────────────────────────────────────────────────

// chainVerifyLoop re-verifies the full audit chain on each tick. A broken
// link is logged at error level and broadcast to connected WS clients.
func (s *Scheduler) chainVerifyLoop(ctx context.Context) {
	defer s.recoverAndLog("chainVerifyLoop")

	ticker := time.NewTicker(s.cfg.Scheduler.ChainVerifyInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("chainVerifyLoop: shutting down")
			return
		case <-ticker.C:
			s.verifyChain(ctx)
		}
	}
}

// verifyChain is the inner body of chainVerifyLoop, extracted so the
// defer/recover in the loop catches panics correctly.
func (s *Scheduler) verifyChain(ctx context.Context) {
	start := time.Now()
	report, err := s.auditSvc.VerifyChain(ctx, 1, 0)
	if err != nil {
		s.logger.Error("chainVerifyLoop: verification run failed", "err", err)
		return
	}

	if report.Valid {
		s.logger.Info("audit chain verified",
			"checked", report.Checked, "took", time.Since(start).Round(time.Millisecond))
		return
	}

	s.logger.Error("AUDIT CHAIN BROKEN",
		"checked", report.Checked, "broken_at", report.BrokenAt)
	if s.hub != nil {
		s.hub.BroadcastChainAlert(*report)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// stalePayoutLoop
// ──────────────────────────────────────────────────────────────────────────────

// stalePayoutLoop looks for payouts that have sat in processing beyond
// the configured threshold. They are only reported, never auto-failed:
// the money side of a processing payout is in the processor's hands and
// resolution needs an operator.
func (s *Scheduler) stalePayoutLoop(ctx context.Context) {
	defer s.recoverAndLog("stalePayoutLoop")

	ticker := time.NewTicker(s.cfg.Scheduler.StalePayoutInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stalePayoutLoop: shutting down")
			return
		case <-ticker.C:
			s.reportStalePayouts(ctx)
		}
	}
}

func (s *Scheduler) reportStalePayouts(ctx context.Context) {
	stale, err := s.payoutSvc.StaleProcessing(ctx, s.cfg.Scheduler.StalePayoutAfter)
	if err != nil {
		s.logger.Error("stalePayoutLoop: query failed", "err", err)
		return
	}
	for _, p := range stale {
		s.logger.Warn("payout stuck in processing",
			"payout_id", p.ID, "deal_id", p.DealID, "user_id", p.UserID,
			"amount", p.Amount, "updated_at", p.UpdatedAt)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Panic recovery
// ──────────────────────────────────────────────────────────────────────────────

// recoverAndLog is deferred inside each goroutine to catch unexpected
// panics, log them, and allow the scheduler to continue running.
func (s *Scheduler) recoverAndLog(loop string) {
	if r := recover(); r != nil {
		s.logger.Error("PANIC recovered in scheduler loop",
			"loop", loop, "panic", r)
	}
}
