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
	"github.com/anavi/settlement/internal/processor"
	"github.com/anavi/settlement/internal/repository"
)

// MilestoneGate answers which milestone a deal may release funds for next.
// Implemented by MilestoneService; injected after construction to avoid a
// cycle between the two services.
type MilestoneGate interface {
	NextEligibleTx(ctx context.Context, tx *sqlx.Tx, dealID uuid.UUID) (*domain.Milestone, error)
}

// EscrowService owns the escrow account state machine. All mutations take
// the per-deal lock, then the row lock, so two concurrent releases can never
// both observe pre-update balances.
type EscrowService struct {
	db         *sqlx.DB
	escrowRepo *repository.EscrowRepository
	dealRepo   *repository.DealRepository
	audit      *AuditService
	proc       processor.Client
	locks      *DealLocks
	log        *slog.Logger

	gate MilestoneGate
}

// NewEscrowService creates an EscrowService.
func NewEscrowService(
	db *sqlx.DB,
	escrowRepo *repository.EscrowRepository,
	dealRepo *repository.DealRepository,
	audit *AuditService,
	proc processor.Client,
	locks *DealLocks,
	log *slog.Logger,
) *EscrowService {
	return &EscrowService{
		db:         db,
		escrowRepo: escrowRepo,
		dealRepo:   dealRepo,
		audit:      audit,
		proc:       proc,
		locks:      locks,
		log:        log,
	}
}

// SetGate injects the milestone eligibility check.
func (s *EscrowService) SetGate(g MilestoneGate) {
	s.gate = g
}

// ──────────────────────────────────────────────────────────────────────────────
// CreateAccount
// ──────────────────────────────────────────────────────────────────────────────

// CreateAccount provisions custody with the processor and records the
// account in the 'unfunded' state. Exactly one account may exist per deal.
func (s *EscrowService) CreateAccount(ctx context.Context, actorID uuid.UUID, dealID uuid.UUID, currency string) (acct *domain.EscrowAccount, err error) {
	deal, err := s.dealRepo.GetByID(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if deal.Status != domain.DealActive {
		return nil, domain.ErrInvalidState
	}
	if currency == "" {
		currency = deal.Currency
	}

	unlock := s.locks.Lock(dealID.String())
	defer unlock()

	if _, err := s.escrowRepo.GetByDealID(ctx, dealID); err == nil {
		return nil, domain.ErrEscrowExists
	} else if !domain.IsNotFound(err) {
		return nil, err
	}

	custodyRef, err := s.proc.CreateCustodyAccount(ctx, dealID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	acct = &domain.EscrowAccount{
		ID:             uuid.New(),
		DealID:         dealID,
		CustodyRef:     custodyRef,
		Currency:       currency,
		FundedAmount:   decimal.Zero,
		ReleasedAmount: decimal.Zero,
		Status:         domain.EscrowUnfunded,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("escrow_service.CreateAccount: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			s.audit.DiscardStaged(tx)
			_ = tx.Rollback()
		}
	}()

	if err = s.escrowRepo.Create(ctx, tx, acct); err != nil {
		return nil, err
	}
	if _, err = s.audit.AppendTx(ctx, tx, &actorID, domain.ActionEscrowCreated, "escrow_account", acct.ID.String(), map[string]any{
		"dealId":     dealID,
		"custodyRef": custodyRef,
		"currency":   currency,
	}); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("escrow_service.CreateAccount: commit: %w", err)
	}
	s.audit.PublishStaged(tx)

	s.log.Info("escrow account created", "deal_id", dealID, "custody_ref", custodyRef)
	return acct, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Fund
// ──────────────────────────────────────────────────────────────────────────────

// Fund records a single funding event on an unfunded account. The processor
// takes custody first; the ledger write happens only on confirmation, and
// the idempotency key makes a retried hold after a crash harmless.
func (s *EscrowService) Fund(ctx context.Context, actorID uuid.UUID, dealID uuid.UUID, amount decimal.Decimal) (acct *domain.EscrowAccount, err error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, domain.ErrInvalidAmount
	}

	unlock := s.locks.Lock(dealID.String())
	defer unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("escrow_service.Fund: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			s.audit.DiscardStaged(tx)
			_ = tx.Rollback()
		}
	}()

	acct, err = s.escrowRepo.GetByDealIDForUpdate(ctx, tx, dealID)
	if err != nil {
		return nil, err
	}
	if !acct.CanFund() {
		return nil, domain.ErrInvalidState
	}

	conf, err := s.proc.HoldFunds(ctx, acct.CustodyRef, amount, processor.HoldKey(dealID))
	if err != nil {
		return nil, err
	}

	if err = s.escrowRepo.RecordDeposit(ctx, tx, acct.ID, amount); err != nil {
		return nil, err
	}
	if err = s.escrowRepo.LogTransaction(ctx, tx, &domain.EscrowTransaction{
		ID:        uuid.New(),
		AccountID: acct.ID,
		Type:      domain.EscrowTxDeposit,
		Amount:    amount,
		Reference: conf.Reference,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return nil, err
	}
	if _, err = s.audit.AppendTx(ctx, tx, &actorID, domain.ActionEscrowFunded, "escrow_account", acct.ID.String(), map[string]any{
		"dealId":    dealID,
		"amount":    amount,
		"reference": conf.Reference,
	}); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("escrow_service.Fund: commit: %w", err)
	}
	s.audit.PublishStaged(tx)

	acct.FundedAmount = amount
	acct.Status = domain.EscrowFunded
	s.log.Info("escrow funded", "deal_id", dealID, "amount", amount)
	return acct, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Release
// ──────────────────────────────────────────────────────────────────────────────

// ReleaseMilestoneTx releases a milestone's amount from custody inside the
// caller's transaction. The caller (milestone completion) already holds the
// per-deal lock; the FOR UPDATE read is the cross-process backstop.
//
// Returns the processor confirmation reference so the payout records can
// carry it.
func (s *EscrowService) ReleaseMilestoneTx(ctx context.Context, tx *sqlx.Tx, actorID uuid.UUID, m *domain.Milestone) (string, error) {
	if m.Amount.LessThanOrEqual(decimal.Zero) {
		return "", domain.ErrInvalidAmount
	}

	acct, err := s.escrowRepo.GetByDealIDForUpdate(ctx, tx, m.DealID)
	if err != nil {
		return "", err
	}
	if !acct.CanRelease() {
		return "", domain.ErrInvalidState
	}
	if acct.Remaining().LessThan(m.Amount) {
		return "", domain.ErrInsufficientFunds
	}

	if s.gate != nil {
		next, err := s.gate.NextEligibleTx(ctx, tx, m.DealID)
		if err != nil {
			return "", err
		}
		if next == nil || next.ID != m.ID {
			return "", domain.ErrMilestoneNotEligible
		}
	}

	// A release already recorded for this milestone means a previous attempt
	// got as far as the ledger; refuse rather than double-release.
	released, err := s.escrowRepo.HasReleaseForMilestone(ctx, tx, m.ID)
	if err != nil {
		return "", err
	}
	if released {
		return "", domain.ErrMilestoneCompleted
	}

	conf, err := s.proc.ReleaseFunds(ctx, acct.CustodyRef, m.Amount, processor.ReleaseKey(m.DealID, m.ID))
	if err != nil {
		return "", err
	}

	if err := s.escrowRepo.RecordRelease(ctx, tx, acct.ID, m.Amount); err != nil {
		return "", err
	}
	if err := s.escrowRepo.LogTransaction(ctx, tx, &domain.EscrowTransaction{
		ID:          uuid.New(),
		AccountID:   acct.ID,
		MilestoneID: &m.ID,
		Type:        domain.EscrowTxRelease,
		Amount:      m.Amount,
		Reference:   conf.Reference,
		CreatedAt:   time.Now().UTC(),
	}); err != nil {
		return "", err
	}
	if _, err := s.audit.AppendTx(ctx, tx, &actorID, domain.ActionEscrowReleased, "escrow_account", acct.ID.String(), map[string]any{
		"dealId":      m.DealID,
		"milestoneId": m.ID,
		"amount":      m.Amount,
		"reference":   conf.Reference,
	}); err != nil {
		return "", err
	}

	s.log.Info("escrow released", "deal_id", m.DealID, "milestone_id", m.ID, "amount", m.Amount)
	return conf.Reference, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Refund
// ──────────────────────────────────────────────────────────────────────────────

// Refund returns the unreleased remainder to the depositor and moves the
// account to its terminal state. Already released funds stay released.
func (s *EscrowService) Refund(ctx context.Context, actorID uuid.UUID, dealID uuid.UUID) (refunded decimal.Decimal, err error) {
	unlock := s.locks.Lock(dealID.String())
	defer unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("escrow_service.Refund: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			s.audit.DiscardStaged(tx)
			_ = tx.Rollback()
		}
	}()

	acct, err := s.escrowRepo.GetByDealIDForUpdate(ctx, tx, dealID)
	if err != nil {
		return decimal.Zero, err
	}
	if err = acct.RefundGuard(); err != nil {
		return decimal.Zero, err
	}
	remainder := acct.Remaining()

	conf, err := s.proc.ReverseFunds(ctx, acct.CustodyRef, remainder, processor.ReverseKey(dealID))
	if err != nil {
		return decimal.Zero, err
	}

	if err = s.escrowRepo.RecordRefund(ctx, tx, acct.ID); err != nil {
		return decimal.Zero, err
	}
	if err = s.escrowRepo.LogTransaction(ctx, tx, &domain.EscrowTransaction{
		ID:        uuid.New(),
		AccountID: acct.ID,
		Type:      domain.EscrowTxRefund,
		Amount:    remainder,
		Reference: conf.Reference,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return decimal.Zero, err
	}
	if _, err = s.audit.AppendTx(ctx, tx, &actorID, domain.ActionEscrowRefunded, "escrow_account", acct.ID.String(), map[string]any{
		"dealId":    dealID,
		"amount":    remainder,
		"reference": conf.Reference,
	}); err != nil {
		return decimal.Zero, err
	}
	if err = tx.Commit(); err != nil {
		return decimal.Zero, fmt.Errorf("escrow_service.Refund: commit: %w", err)
	}
	s.audit.PublishStaged(tx)

	s.log.Info("escrow refunded", "deal_id", dealID, "amount", remainder)
	return remainder, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────────────────────────────────

// Status returns the escrow account for a deal.
func (s *EscrowService) Status(ctx context.Context, dealID uuid.UUID) (*domain.EscrowAccount, error) {
	return s.escrowRepo.GetByDealID(ctx, dealID)
}

// Transactions returns the deal's escrow movement history.
func (s *EscrowService) Transactions(ctx context.Context, dealID uuid.UUID, limit, offset int) ([]*domain.EscrowTransaction, error) {
	if _, err := s.escrowRepo.GetByDealID(ctx, dealID); err != nil {
		return nil, err
	}
	return s.escrowRepo.GetTransactions(ctx, dealID, limit, offset)
}
