package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/anavi/settlement/internal/domain"
)

// MilestoneRepository handles all database operations for milestones.
type MilestoneRepository struct {
	db *sqlx.DB
}

// NewMilestoneRepository creates a new MilestoneRepository.
func NewMilestoneRepository(db *sqlx.DB) *MilestoneRepository {
	return &MilestoneRepository{db: db}
}

// GetByID fetches a single milestone.
func (r *MilestoneRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Milestone, error) {
	var m domain.Milestone
	err := r.db.GetContext(ctx, &m, `SELECT * FROM milestones WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrMilestoneNotFound
		}
		return nil, fmt.Errorf("milestone_repo.GetByID: %w", err)
	}
	return &m, nil
}

// GetByIDForUpdate locks a milestone row for the remainder of tx.
func (r *MilestoneRepository) GetByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.Milestone, error) {
	var m domain.Milestone
	err := tx.GetContext(ctx, &m, `SELECT * FROM milestones WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrMilestoneNotFound
		}
		return nil, fmt.Errorf("milestone_repo.GetByIDForUpdate: %w", err)
	}
	return &m, nil
}

// ListByDeal returns a deal's milestones in sequence order.
func (r *MilestoneRepository) ListByDeal(ctx context.Context, dealID uuid.UUID) ([]*domain.Milestone, error) {
	var ms []*domain.Milestone
	err := r.db.SelectContext(ctx, &ms, `
		SELECT * FROM milestones
		WHERE deal_id = $1
		ORDER BY sequence_index ASC`,
		dealID)
	if err != nil {
		return nil, fmt.Errorf("milestone_repo.ListByDeal: %w", err)
	}
	return ms, nil
}

// ListByDealForUpdate locks all of a deal's milestone rows in sequence order.
// Used by completion so the eligibility check and the status write see the
// same snapshot.
func (r *MilestoneRepository) ListByDealForUpdate(ctx context.Context, tx *sqlx.Tx, dealID uuid.UUID) ([]*domain.Milestone, error) {
	var ms []*domain.Milestone
	err := tx.SelectContext(ctx, &ms, `
		SELECT * FROM milestones
		WHERE deal_id = $1
		ORDER BY sequence_index ASC
		FOR UPDATE`,
		dealID)
	if err != nil {
		return nil, fmt.Errorf("milestone_repo.ListByDealForUpdate: %w", err)
	}
	return ms, nil
}

// CreateBatch inserts a deal's full milestone set inside tx.
func (r *MilestoneRepository) CreateBatch(ctx context.Context, tx *sqlx.Tx, ms []*domain.Milestone) error {
	query := `
		INSERT INTO milestones
			(id, deal_id, sequence_index, title, description, status, amount, payout_trigger, completed_at, created_at, updated_at)
		VALUES
			(:id, :deal_id, :sequence_index, :title, :description, :status, :amount, :payout_trigger, :completed_at, :created_at, :updated_at)`
	for _, m := range ms {
		if _, err := tx.NamedExecContext(ctx, query, m); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrInvalidState
			}
			return fmt.Errorf("milestone_repo.CreateBatch: %w", err)
		}
	}
	return nil
}

// CountByDeal returns the number of milestones already configured for a deal.
func (r *MilestoneRepository) CountByDeal(ctx context.Context, tx *sqlx.Tx, dealID uuid.UUID) (int, error) {
	var n int
	err := tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM milestones WHERE deal_id = $1`, dealID)
	if err != nil {
		return 0, fmt.Errorf("milestone_repo.CountByDeal: %w", err)
	}
	return n, nil
}

// MarkCompleted sets a milestone to completed. The WHERE clause excludes
// already completed rows so a retried completion is a no-op conflict instead
// of a double release.
func (r *MilestoneRepository) MarkCompleted(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE milestones
		SET status       = 'completed',
		    completed_at = now(),
		    updated_at   = now()
		WHERE id = $1 AND status <> 'completed'`,
		id)
	if err != nil {
		return fmt.Errorf("milestone_repo.MarkCompleted: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrMilestoneCompleted
	}
	return nil
}

// MarkInProgress moves a pending milestone to in_progress inside tx.
func (r *MilestoneRepository) MarkInProgress(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE milestones
		SET status     = 'in_progress',
		    updated_at = now()
		WHERE id = $1 AND status = 'pending'`,
		id)
	if err != nil {
		return fmt.Errorf("milestone_repo.MarkInProgress: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrInvalidState
	}
	return nil
}
