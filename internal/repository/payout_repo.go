package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/anavi/settlement/internal/domain"
)

// PayoutRepository handles all database operations for payout records.
type PayoutRepository struct {
	db *sqlx.DB
}

// NewPayoutRepository creates a new PayoutRepository.
func NewPayoutRepository(db *sqlx.DB) *PayoutRepository {
	return &PayoutRepository{db: db}
}

// GetByID fetches a single payout record.
func (r *PayoutRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.PayoutRecord, error) {
	var p domain.PayoutRecord
	err := r.db.GetContext(ctx, &p, `SELECT * FROM payout_records WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPayoutNotFound
		}
		return nil, fmt.Errorf("payout_repo.GetByID: %w", err)
	}
	return &p, nil
}

// Create inserts a payout record inside tx.
func (r *PayoutRepository) Create(ctx context.Context, tx *sqlx.Tx, p *domain.PayoutRecord) error {
	query := `
		INSERT INTO payout_records
			(id, deal_id, milestone_id, user_id, relationship_id, type, attribution_percentage, amount, currency, status, reference, fail_reason, created_at, updated_at)
		VALUES
			(:id, :deal_id, :milestone_id, :user_id, :relationship_id, :type, :attribution_percentage, :amount, :currency, :status, :reference, :fail_reason, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, p); err != nil {
		return fmt.Errorf("payout_repo.Create: %w", err)
	}
	return nil
}

// ListByDeal returns a deal's payouts, newest first.
func (r *PayoutRepository) ListByDeal(ctx context.Context, dealID uuid.UUID, limit, offset int) ([]*domain.PayoutRecord, error) {
	var ps []*domain.PayoutRecord
	err := r.db.SelectContext(ctx, &ps, `
		SELECT * FROM payout_records
		WHERE deal_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		dealID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("payout_repo.ListByDeal: %w", err)
	}
	return ps, nil
}

// ListByUser returns a user's payouts, newest first. status="" means all.
func (r *PayoutRepository) ListByUser(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]*domain.PayoutRecord, error) {
	var ps []*domain.PayoutRecord
	var err error
	if status != "" {
		err = r.db.SelectContext(ctx, &ps, `
			SELECT * FROM payout_records
			WHERE user_id = $1 AND status = $2
			ORDER BY created_at DESC
			LIMIT $3 OFFSET $4`,
			userID, status, limit, offset)
	} else {
		err = r.db.SelectContext(ctx, &ps, `
			SELECT * FROM payout_records
			WHERE user_id = $1
			ORDER BY created_at DESC
			LIMIT $2 OFFSET $3`,
			userID, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("payout_repo.ListByUser: %w", err)
	}
	return ps, nil
}

// ListByStatus returns payouts in a given status, oldest first, for
// back-office work queues.
func (r *PayoutRepository) ListByStatus(ctx context.Context, status domain.PayoutStatus, limit, offset int) ([]*domain.PayoutRecord, error) {
	var ps []*domain.PayoutRecord
	err := r.db.SelectContext(ctx, &ps, `
		SELECT * FROM payout_records
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3`,
		string(status), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("payout_repo.ListByStatus: %w", err)
	}
	return ps, nil
}

// UpdateStatus transitions a payout from one status to another inside tx.
// The guard on the current status makes the state machine enforce
// pending→processing→completed/failed; a mismatched transition returns
// ErrPayoutNotPending. Completion stamps paid_at.
func (r *PayoutRepository) UpdateStatus(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, from, to domain.PayoutStatus, failReason *string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE payout_records
		SET status      = $1,
		    fail_reason = $2,
		    paid_at     = CASE WHEN $1 = 'completed' THEN now() ELSE paid_at END,
		    updated_at  = now()
		WHERE id = $3 AND status = $4`,
		string(to), failReason, id, string(from))
	if err != nil {
		return fmt.Errorf("payout_repo.UpdateStatus: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Distinguish missing record from wrong state.
		var exists bool
		if chkErr := tx.GetContext(ctx, &exists,
			`SELECT EXISTS (SELECT 1 FROM payout_records WHERE id = $1)`, id); chkErr == nil && !exists {
			return domain.ErrPayoutNotFound
		}
		return domain.ErrPayoutNotPending
	}
	return nil
}

// StatementForUser aggregates a user's payouts per deal.
func (r *PayoutRepository) StatementForUser(ctx context.Context, userID uuid.UUID) ([]domain.StatementLine, error) {
	var lines []domain.StatementLine
	err := r.db.SelectContext(ctx, &lines, `
		SELECT p.deal_id,
		       d.title AS deal_title,
		       COALESCE(SUM(p.amount) FILTER (WHERE p.status = 'completed'), 0)                    AS completed,
		       COALESCE(SUM(p.amount) FILTER (WHERE p.status IN ('pending', 'processing')), 0)     AS pending,
		       COUNT(*)                                                                            AS payouts
		FROM payout_records p
		JOIN deals d ON d.id = p.deal_id
		WHERE p.user_id = $1
		GROUP BY p.deal_id, d.title
		ORDER BY MAX(p.created_at) DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("payout_repo.StatementForUser: %w", err)
	}
	return lines, nil
}

// TotalsForUser returns the user's completed and in-flight payout sums.
func (r *PayoutRepository) TotalsForUser(ctx context.Context, userID uuid.UUID) (completed, pending decimal.Decimal, err error) {
	row := struct {
		Completed decimal.Decimal `db:"completed"`
		Pending   decimal.Decimal `db:"pending"`
	}{}
	err = r.db.GetContext(ctx, &row, `
		SELECT COALESCE(SUM(amount) FILTER (WHERE status = 'completed'), 0)                AS completed,
		       COALESCE(SUM(amount) FILTER (WHERE status IN ('pending', 'processing')), 0) AS pending
		FROM payout_records
		WHERE user_id = $1`,
		userID)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("payout_repo.TotalsForUser: %w", err)
	}
	return row.Completed, row.Pending, nil
}

// ListStaleProcessing returns payouts stuck in 'processing' longer than the
// cutoff. The scheduler alerts on these so an operator can reconcile them.
func (r *PayoutRepository) ListStaleProcessing(ctx context.Context, olderThan time.Time) ([]*domain.PayoutRecord, error) {
	var ps []*domain.PayoutRecord
	err := r.db.SelectContext(ctx, &ps, `
		SELECT * FROM payout_records
		WHERE status = 'processing' AND updated_at < $1
		ORDER BY updated_at ASC`,
		olderThan)
	if err != nil {
		return nil, fmt.Errorf("payout_repo.ListStaleProcessing: %w", err)
	}
	return ps, nil
}

// CountByStatus returns per-status payout counts for the dashboard.
func (r *PayoutRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows := []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}{}
	err := r.db.SelectContext(ctx, &rows, `
		SELECT status, COUNT(*) AS count
		FROM payout_records
		GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("payout_repo.CountByStatus: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
