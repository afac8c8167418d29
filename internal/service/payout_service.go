package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/anavi/settlement/internal/domain"
	"github.com/anavi/settlement/internal/repository"
)

// PayoutService turns escrow releases into per-participant payout records
// and runs the pending→processing→completed/failed state machine that the
// back-office drives.
type PayoutService struct {
	db         *sqlx.DB
	payoutRepo *repository.PayoutRepository
	dealRepo   *repository.DealRepository
	audit      *AuditService
	log        *slog.Logger
}

// NewPayoutService creates a PayoutService.
func NewPayoutService(
	db *sqlx.DB,
	payoutRepo *repository.PayoutRepository,
	dealRepo *repository.DealRepository,
	audit *AuditService,
	log *slog.Logger,
) *PayoutService {
	return &PayoutService{
		db:         db,
		payoutRepo: payoutRepo,
		dealRepo:   dealRepo,
		audit:      audit,
		log:        log,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Creation
// ──────────────────────────────────────────────────────────────────────────────

// CreateForMilestoneTx splits a released milestone amount across the deal's
// attributed participants inside the caller's transaction. Over-allocated
// deals fail the whole completion; under-allocation leaves the remainder in
// custody.
func (s *PayoutService) CreateForMilestoneTx(ctx context.Context, tx *sqlx.Tx, actorID uuid.UUID, m *domain.Milestone, reference string) ([]*domain.PayoutRecord, error) {
	deal, err := s.dealRepo.GetByID(ctx, m.DealID)
	if err != nil {
		return nil, err
	}
	participants, err := s.dealRepo.GetParticipantsTx(ctx, tx, m.DealID)
	if err != nil {
		return nil, err
	}

	allocations, err := domain.ComputeAllocations(m.Amount, participants)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	records := make([]*domain.PayoutRecord, 0, len(allocations))
	for _, a := range allocations {
		if a.Amount.LessThanOrEqual(decimal.Zero) {
			continue
		}
		p := &domain.PayoutRecord{
			ID:                    uuid.New(),
			DealID:                m.DealID,
			MilestoneID:           &m.ID,
			UserID:                a.UserID,
			RelationshipID:        a.RelationshipID,
			Type:                  a.Type,
			AttributionPercentage: a.Percentage,
			Amount:                a.Amount,
			Currency:              deal.Currency,
			Status:                domain.PayoutPending,
			Reference:             reference,
			CreatedAt:             now,
			UpdatedAt:             now,
		}
		if err := s.payoutRepo.Create(ctx, tx, p); err != nil {
			return nil, err
		}
		if _, err := s.audit.AppendTx(ctx, tx, &actorID, domain.ActionPayoutCreated, "payout", p.ID.String(), map[string]any{
			"dealId":      m.DealID,
			"milestoneId": m.ID,
			"userId":      a.UserID,
			"type":        a.Type,
			"amount":      a.Amount,
			"percentage":  a.Percentage,
		}); err != nil {
			return nil, err
		}
		records = append(records, p)
	}
	return records, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// State machine (back-office)
// ──────────────────────────────────────────────────────────────────────────────

// Approve moves a pending payout to processing.
func (s *PayoutService) Approve(ctx context.Context, adminID uuid.UUID, payoutID uuid.UUID) error {
	return s.transition(ctx, adminID, payoutID,
		domain.PayoutPending, domain.PayoutProcessing, domain.ActionPayoutProcessing, nil)
}

// MarkCompleted records that the processor settled a processing payout.
func (s *PayoutService) MarkCompleted(ctx context.Context, adminID uuid.UUID, payoutID uuid.UUID) error {
	return s.transition(ctx, adminID, payoutID,
		domain.PayoutProcessing, domain.PayoutCompleted, domain.ActionPayoutCompleted, nil)
}

// MarkFailed records a processor failure with its reason.
func (s *PayoutService) MarkFailed(ctx context.Context, adminID uuid.UUID, payoutID uuid.UUID, reason string) error {
	return s.transition(ctx, adminID, payoutID,
		domain.PayoutProcessing, domain.PayoutFailed, domain.ActionPayoutFailed, &reason)
}

// transition performs one state-machine step. The status write and its audit
// entry share a transaction so a recorded transition is always audited.
func (s *PayoutService) transition(ctx context.Context, adminID uuid.UUID, payoutID uuid.UUID, from, to domain.PayoutStatus, action string, reason *string) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("payout_service.transition: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			s.audit.DiscardStaged(tx)
			_ = tx.Rollback()
		}
	}()

	if err = s.payoutRepo.UpdateStatus(ctx, tx, payoutID, from, to, reason); err != nil {
		return err
	}
	payload := map[string]any{"from": from, "to": to}
	if reason != nil {
		payload["reason"] = *reason
	}
	if _, err = s.audit.AppendTx(ctx, tx, &adminID, action, "payout", payoutID.String(), payload); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("payout_service.transition: commit: %w", err)
	}
	s.audit.PublishStaged(tx)
	s.log.Info("payout transitioned", "payout_id", payoutID, "from", from, "to", to)
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────────────────────────────────

// Get fetches a single payout.
func (s *PayoutService) Get(ctx context.Context, payoutID uuid.UUID) (*domain.PayoutRecord, error) {
	return s.payoutRepo.GetByID(ctx, payoutID)
}

// ListByDeal returns a deal's payouts.
func (s *PayoutService) ListByDeal(ctx context.Context, dealID uuid.UUID, limit, offset int) ([]*domain.PayoutRecord, error) {
	if _, err := s.dealRepo.GetByID(ctx, dealID); err != nil {
		return nil, err
	}
	return s.payoutRepo.ListByDeal(ctx, dealID, limit, offset)
}

// ListByUser returns a user's payouts, optionally filtered by status.
func (s *PayoutService) ListByUser(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]*domain.PayoutRecord, error) {
	return s.payoutRepo.ListByUser(ctx, userID, status, limit, offset)
}

// ListByStatus returns the back-office work queue for one status.
func (s *PayoutService) ListByStatus(ctx context.Context, status domain.PayoutStatus, limit, offset int) ([]*domain.PayoutRecord, error) {
	return s.payoutRepo.ListByStatus(ctx, status, limit, offset)
}

// Statement aggregates a user's earnings per deal.
func (s *PayoutService) Statement(ctx context.Context, userID uuid.UUID) (*domain.EarningsStatement, error) {
	lines, err := s.payoutRepo.StatementForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	completed, pending, err := s.payoutRepo.TotalsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if lines == nil {
		lines = []domain.StatementLine{}
	}
	return &domain.EarningsStatement{
		UserID:       userID,
		TotalEarned:  completed,
		TotalPending: pending,
		Lines:        lines,
	}, nil
}

// StaleProcessing returns payouts stuck in processing past the cutoff.
func (s *PayoutService) StaleProcessing(ctx context.Context, olderThan time.Duration) ([]*domain.PayoutRecord, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	ps, err := s.payoutRepo.ListStaleProcessing(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("payout_service.StaleProcessing: %w", err)
	}
	return ps, nil
}
