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

// MilestoneService owns the per-deal milestone progression and the strict
// sequential gate in front of escrow releases.
type MilestoneService struct {
	db            *sqlx.DB
	milestoneRepo *repository.MilestoneRepository
	dealRepo      *repository.DealRepository
	userRepo      *repository.UserRepository
	escrow        *EscrowService
	payouts       *PayoutService
	trust         *TrustService
	audit         *AuditService
	locks         *DealLocks
	log           *slog.Logger
}

// NewMilestoneService creates a MilestoneService.
func NewMilestoneService(
	db *sqlx.DB,
	milestoneRepo *repository.MilestoneRepository,
	dealRepo *repository.DealRepository,
	userRepo *repository.UserRepository,
	escrow *EscrowService,
	payouts *PayoutService,
	trust *TrustService,
	audit *AuditService,
	locks *DealLocks,
	log *slog.Logger,
) *MilestoneService {
	return &MilestoneService{
		db:            db,
		milestoneRepo: milestoneRepo,
		dealRepo:      dealRepo,
		userRepo:      userRepo,
		escrow:        escrow,
		payouts:       payouts,
		trust:         trust,
		audit:         audit,
		locks:         locks,
		log:           log,
	}
}

var _ MilestoneGate = (*MilestoneService)(nil)

// ──────────────────────────────────────────────────────────────────────────────
// Setup
// ──────────────────────────────────────────────────────────────────────────────

// Setup installs the default six-step progression on a deal. amounts, when
// given, must carry one value per step; steps that are not payout triggers
// keep a zero amount regardless.
func (s *MilestoneService) Setup(ctx context.Context, actorID uuid.UUID, dealID uuid.UUID, amounts []decimal.Decimal) (ms []*domain.Milestone, err error) {
	deal, err := s.dealRepo.GetByID(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if deal.Status != domain.DealActive {
		return nil, domain.ErrInvalidState
	}

	templates := domain.DefaultMilestoneTemplates()
	if amounts != nil && len(amounts) != len(templates) {
		return nil, domain.ErrInvalidAmount
	}

	unlock := s.locks.Lock(dealID.String())
	defer unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("milestone_service.Setup: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			s.audit.DiscardStaged(tx)
			_ = tx.Rollback()
		}
	}()

	existing, err := s.milestoneRepo.CountByDeal(ctx, tx, dealID)
	if err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, domain.ErrInvalidState
	}

	now := time.Now().UTC()
	ms = make([]*domain.Milestone, 0, len(templates))
	for i, tmpl := range templates {
		m := &domain.Milestone{
			ID:            uuid.New(),
			DealID:        dealID,
			SequenceIndex: i,
			Title:         tmpl.Title,
			Description:   tmpl.Description,
			Status:        tmpl.Status,
			Amount:        decimal.Zero,
			PayoutTrigger: tmpl.PayoutTrigger,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if tmpl.PayoutTrigger && amounts != nil {
			if amounts[i].IsNegative() {
				return nil, domain.ErrInvalidAmount
			}
			m.Amount = amounts[i]
		}
		if tmpl.Status == domain.MilestoneCompleted {
			completedAt := now
			m.CompletedAt = &completedAt
		}
		ms = append(ms, m)
	}

	if err = s.milestoneRepo.CreateBatch(ctx, tx, ms); err != nil {
		return nil, err
	}
	if _, err = s.audit.AppendTx(ctx, tx, &actorID, domain.ActionMilestoneSetup, "deal", dealID.String(), map[string]any{
		"count": len(ms),
	}); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("milestone_service.Setup: commit: %w", err)
	}
	s.audit.PublishStaged(tx)

	s.log.Info("milestones configured", "deal_id", dealID, "count", len(ms))
	return ms, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Eligibility
// ──────────────────────────────────────────────────────────────────────────────

// nextEligible returns the lowest-indexed milestone that is not yet
// completed, or nil when the progression is finished.
func nextEligible(ms []*domain.Milestone) *domain.Milestone {
	for _, m := range ms {
		if m.Status != domain.MilestoneCompleted {
			return m
		}
	}
	return nil
}

// NextEligibleTx is the gate the escrow ledger consults before releasing
// funds, inside the same transaction that performs the release.
func (s *MilestoneService) NextEligibleTx(ctx context.Context, tx *sqlx.Tx, dealID uuid.UUID) (*domain.Milestone, error) {
	ms, err := s.milestoneRepo.ListByDealForUpdate(ctx, tx, dealID)
	if err != nil {
		return nil, err
	}
	return nextEligible(ms), nil
}

// Next returns the next eligible milestone outside any transaction.
func (s *MilestoneService) Next(ctx context.Context, dealID uuid.UUID) (*domain.Milestone, error) {
	ms, err := s.milestoneRepo.ListByDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if len(ms) == 0 {
		return nil, domain.ErrMilestoneNotFound
	}
	next := nextEligible(ms)
	if next == nil {
		return nil, domain.ErrMilestoneNotFound
	}
	return next, nil
}

// List returns a deal's milestones in sequence order.
func (s *MilestoneService) List(ctx context.Context, dealID uuid.UUID) ([]*domain.Milestone, error) {
	if _, err := s.dealRepo.GetByID(ctx, dealID); err != nil {
		return nil, err
	}
	return s.milestoneRepo.ListByDeal(ctx, dealID)
}

// Start moves the next eligible milestone to in_progress. Purely cosmetic
// for the progression view; completion does not require it. The status write
// and its audit entry share one transaction.
func (s *MilestoneService) Start(ctx context.Context, actorID uuid.UUID, dealID, milestoneID uuid.UUID) (err error) {
	m, err := s.milestoneRepo.GetByID(ctx, milestoneID)
	if err != nil {
		return err
	}
	if m.DealID != dealID {
		return domain.ErrMilestoneNotFound
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("milestone_service.Start: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			s.audit.DiscardStaged(tx)
			_ = tx.Rollback()
		}
	}()

	if err = s.milestoneRepo.MarkInProgress(ctx, tx, milestoneID); err != nil {
		return err
	}
	if _, err = s.audit.AppendTx(ctx, tx, &actorID, domain.ActionMilestoneStarted, "milestone", milestoneID.String(), map[string]any{
		"dealId": dealID,
	}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("milestone_service.Start: commit: %w", err)
	}
	s.audit.PublishStaged(tx)
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Complete
// ──────────────────────────────────────────────────────────────────────────────

// CompleteResult reports what a completion triggered.
type CompleteResult struct {
	Milestone *domain.Milestone      `json:"milestone"`
	Released  decimal.Decimal        `json:"released"`
	Payouts   []*domain.PayoutRecord `json:"payouts,omitempty"`
	DealDone  bool                   `json:"dealDone"`
}

// Complete finishes a milestone. Ordering is strict: only the next eligible
// milestone in the sequence may complete; anything later is OutOfOrder and
// anything already completed is a conflict. When the milestone is a payout
// trigger, the escrow release, the payout records, the status change, and
// all audit entries commit in one transaction.
func (s *MilestoneService) Complete(ctx context.Context, actorID uuid.UUID, dealID, milestoneID uuid.UUID) (res *CompleteResult, err error) {
	unlock := s.locks.Lock(dealID.String())
	defer unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("milestone_service.Complete: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			s.audit.DiscardStaged(tx)
			_ = tx.Rollback()
		}
	}()

	ms, err := s.milestoneRepo.ListByDealForUpdate(ctx, tx, dealID)
	if err != nil {
		return nil, err
	}
	var target *domain.Milestone
	for _, m := range ms {
		if m.ID == milestoneID {
			target = m
			break
		}
	}
	if target == nil {
		return nil, domain.ErrMilestoneNotFound
	}
	if target.Status == domain.MilestoneCompleted {
		return nil, domain.ErrMilestoneCompleted
	}
	next := nextEligible(ms)
	if next == nil || next.ID != target.ID {
		return nil, domain.ErrOutOfOrder
	}

	res = &CompleteResult{Released: decimal.Zero}

	// Release before the status write so the escrow-side eligibility check
	// still sees this milestone as next.
	if target.PayoutTrigger && target.Amount.GreaterThan(decimal.Zero) {
		reference, relErr := s.escrow.ReleaseMilestoneTx(ctx, tx, actorID, target)
		if relErr != nil {
			err = relErr
			return nil, err
		}
		res.Released = target.Amount

		payouts, payErr := s.payouts.CreateForMilestoneTx(ctx, tx, actorID, target, reference)
		if payErr != nil {
			err = payErr
			return nil, err
		}
		res.Payouts = payouts
	}

	if err = s.milestoneRepo.MarkCompleted(ctx, tx, target.ID); err != nil {
		return nil, err
	}
	if _, err = s.audit.AppendTx(ctx, tx, &actorID, domain.ActionMilestoneDone, "milestone", target.ID.String(), map[string]any{
		"dealId":        dealID,
		"sequenceIndex": target.SequenceIndex,
		"released":      res.Released,
	}); err != nil {
		return nil, err
	}

	// Last milestone closes the deal and bumps every participant's track
	// record inside the same transaction.
	var participants []domain.DealParticipant
	if target.SequenceIndex == len(ms)-1 {
		if err = s.dealRepo.MarkCompleted(ctx, tx, dealID); err != nil {
			return nil, err
		}
		participants, err = s.dealRepo.GetParticipantsTx(ctx, tx, dealID)
		if err != nil {
			return nil, err
		}
		for _, p := range participants {
			if err = s.userRepo.IncrementCompletedDeals(ctx, tx, p.UserID); err != nil {
				return nil, err
			}
		}
		res.DealDone = true
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("milestone_service.Complete: commit: %w", err)
	}
	s.audit.PublishStaged(tx)

	now := time.Now().UTC()
	target.Status = domain.MilestoneCompleted
	target.CompletedAt = &now
	res.Milestone = target

	// Trust recompute runs after commit in its own transactions; a failure
	// here must not undo the settlement.
	if res.DealDone && s.trust != nil {
		for _, p := range participants {
			if _, trustErr := s.trust.Recompute(ctx, p.UserID, "deal completed"); trustErr != nil {
				s.log.Error("trust recompute after deal completion failed",
					"user_id", p.UserID, "deal_id", dealID, "err", trustErr)
			}
		}
	}

	s.log.Info("milestone completed",
		"deal_id", dealID, "milestone_id", milestoneID, "released", res.Released, "deal_done", res.DealDone)
	return res, nil
}
