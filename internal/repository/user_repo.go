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

// UserRepository handles all database operations for users and their trust
// score history.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID fetches a user.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var u domain.User
	err := r.db.GetContext(ctx, &u, `SELECT * FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("user_repo.GetByID: %w", err)
	}
	return &u, nil
}

// GetByIDForUpdate locks a user row for the remainder of tx. Trust recompute
// holds this lock while writing the score and its snapshot.
func (r *UserRepository) GetByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.User, error) {
	var u domain.User
	err := tx.GetContext(ctx, &u, `SELECT * FROM users WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("user_repo.GetByIDForUpdate: %w", err)
	}
	return &u, nil
}

// UpdateTrust writes a user's recomputed score and badge inside tx.
func (r *UserRepository) UpdateTrust(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, score int64, badge domain.TrustBadge) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE users
		SET trust_score = $1,
		    trust_badge = $2,
		    updated_at  = now()
		WHERE id = $3`,
		score, string(badge), id)
	if err != nil {
		return fmt.Errorf("user_repo.UpdateTrust: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// IncrementCompletedDeals bumps the completed deal counter inside tx.
func (r *UserRepository) IncrementCompletedDeals(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE users
		SET completed_deals = completed_deals + 1,
		    updated_at      = now()
		WHERE id = $1`,
		id)
	if err != nil {
		return fmt.Errorf("user_repo.IncrementCompletedDeals: %w", err)
	}
	return nil
}

// InsertTrustSnapshot appends one trust history row inside tx.
func (r *UserRepository) InsertTrustSnapshot(ctx context.Context, tx *sqlx.Tx, s *domain.TrustSnapshot) error {
	query := `
		INSERT INTO trust_snapshots
			(id, user_id, score, badge, breakdown, reason, created_at)
		VALUES
			(:id, :user_id, :score, :badge, :breakdown, :reason, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, s); err != nil {
		return fmt.Errorf("user_repo.InsertTrustSnapshot: %w", err)
	}
	return nil
}

// ListTrustSnapshots returns a user's score history, newest first.
func (r *UserRepository) ListTrustSnapshots(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.TrustSnapshot, error) {
	var snaps []*domain.TrustSnapshot
	err := r.db.SelectContext(ctx, &snaps, `
		SELECT * FROM trust_snapshots
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("user_repo.ListTrustSnapshots: %w", err)
	}
	return snaps, nil
}

// LatestTrustSnapshot returns the most recent snapshot, or nil when the user
// has never been scored.
func (r *UserRepository) LatestTrustSnapshot(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) (*domain.TrustSnapshot, error) {
	var s domain.TrustSnapshot
	err := tx.GetContext(ctx, &s, `
		SELECT * FROM trust_snapshots
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1`,
		userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("user_repo.LatestTrustSnapshot: %w", err)
	}
	return &s, nil
}
