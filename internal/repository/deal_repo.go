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

// DealRepository handles all database operations for deals and their
// participants.
type DealRepository struct {
	db *sqlx.DB
}

// NewDealRepository creates a new DealRepository.
func NewDealRepository(db *sqlx.DB) *DealRepository {
	return &DealRepository{db: db}
}

// GetByID fetches a deal.
func (r *DealRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Deal, error) {
	var d domain.Deal
	err := r.db.GetContext(ctx, &d, `SELECT * FROM deals WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDealNotFound
		}
		return nil, fmt.Errorf("deal_repo.GetByID: %w", err)
	}
	return &d, nil
}

// Create inserts a new deal.
func (r *DealRepository) Create(ctx context.Context, d *domain.Deal) error {
	query := `
		INSERT INTO deals
			(id, title, currency, status, created_by, created_at, updated_at)
		VALUES
			(:id, :title, :currency, :status, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, d); err != nil {
		return fmt.Errorf("deal_repo.Create: %w", err)
	}
	return nil
}

// List returns deals, newest first. status="" means all statuses.
func (r *DealRepository) List(ctx context.Context, status string, limit, offset int) ([]*domain.Deal, error) {
	var ds []*domain.Deal
	var err error
	if status != "" {
		err = r.db.SelectContext(ctx, &ds, `
			SELECT * FROM deals
			WHERE status = $1
			ORDER BY created_at DESC
			LIMIT $2 OFFSET $3`,
			status, limit, offset)
	} else {
		err = r.db.SelectContext(ctx, &ds, `
			SELECT * FROM deals
			ORDER BY created_at DESC
			LIMIT $1 OFFSET $2`,
			limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("deal_repo.List: %w", err)
	}
	return ds, nil
}

// MarkCompleted transitions an active deal to completed inside tx.
func (r *DealRepository) MarkCompleted(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE deals
		SET status     = 'completed',
		    updated_at = now()
		WHERE id = $1 AND status = 'active'`,
		id)
	if err != nil {
		return fmt.Errorf("deal_repo.MarkCompleted: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrInvalidState
	}
	return nil
}

// GetParticipants returns a deal's participants with their attribution shares.
func (r *DealRepository) GetParticipants(ctx context.Context, dealID uuid.UUID) ([]domain.DealParticipant, error) {
	var ps []domain.DealParticipant
	err := r.db.SelectContext(ctx, &ps, `
		SELECT * FROM deal_participants
		WHERE deal_id = $1
		ORDER BY created_at ASC`,
		dealID)
	if err != nil {
		return nil, fmt.Errorf("deal_repo.GetParticipants: %w", err)
	}
	return ps, nil
}

// GetParticipantsTx is GetParticipants inside a transaction, so attribution
// reads share the snapshot of the release they feed.
func (r *DealRepository) GetParticipantsTx(ctx context.Context, tx *sqlx.Tx, dealID uuid.UUID) ([]domain.DealParticipant, error) {
	var ps []domain.DealParticipant
	err := tx.SelectContext(ctx, &ps, `
		SELECT * FROM deal_participants
		WHERE deal_id = $1
		ORDER BY created_at ASC`,
		dealID)
	if err != nil {
		return nil, fmt.Errorf("deal_repo.GetParticipantsTx: %w", err)
	}
	return ps, nil
}

// AddParticipant links a user to a deal.
func (r *DealRepository) AddParticipant(ctx context.Context, p *domain.DealParticipant) error {
	query := `
		INSERT INTO deal_participants
			(id, deal_id, user_id, relationship_id, role, attribution_percentage, created_at)
		VALUES
			(:id, :deal_id, :user_id, :relationship_id, :role, :attribution_percentage, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, p); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrInvalidState
		}
		return fmt.Errorf("deal_repo.AddParticipant: %w", err)
	}
	return nil
}

// IsParticipant reports whether the user has any role on the deal.
func (r *DealRepository) IsParticipant(ctx context.Context, dealID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM deal_participants
			WHERE deal_id = $1 AND user_id = $2
		)`,
		dealID, userID)
	if err != nil {
		return false, fmt.Errorf("deal_repo.IsParticipant: %w", err)
	}
	return exists, nil
}

// CountByStatus returns per-status deal counts for the dashboard.
func (r *DealRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows := []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}{}
	err := r.db.SelectContext(ctx, &rows, `
		SELECT status, COUNT(*) AS count
		FROM deals
		GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("deal_repo.CountByStatus: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
