package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/anavi/settlement/internal/domain"
)

// auditChainLockKey is the advisory lock key serialising appends to the audit
// chain. All writers in all processes take this lock inside their insert tx,
// so the (prev_hash → hash) linkage can never interleave.
const auditChainLockKey = 0x5e771e

// AuditRepository handles all database operations for the hash-chained audit log.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// LockChain takes the transaction-scoped advisory lock for chain appends.
// Released automatically at commit/rollback.
func (r *AuditRepository) LockChain(ctx context.Context, tx *sqlx.Tx) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, auditChainLockKey); err != nil {
		return fmt.Errorf("audit_repo.LockChain: %w", err)
	}
	return nil
}

// GetHeadHash returns the hash of the newest entry, or the genesis hash when
// the chain is empty. Call after LockChain within the same tx.
func (r *AuditRepository) GetHeadHash(ctx context.Context, tx *sqlx.Tx) (string, error) {
	var hash string
	err := tx.GetContext(ctx, &hash, `SELECT hash FROM audit_entries ORDER BY id DESC LIMIT 1`)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.GenesisHash, nil
		}
		return "", fmt.Errorf("audit_repo.GetHeadHash: %w", err)
	}
	return hash, nil
}

// Insert appends an entry and fills in its generated id.
func (r *AuditRepository) Insert(ctx context.Context, tx *sqlx.Tx, e *domain.AuditEntry) error {
	err := tx.GetContext(ctx, &e.ID, `
		INSERT INTO audit_entries
			(actor_id, action, entity_type, entity_id, payload, prev_hash, hash, created_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		e.ActorID, e.Action, e.EntityType, e.EntityID, e.Payload, e.PrevHash, e.Hash, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("audit_repo.Insert: %w", err)
	}
	return nil
}

// TrailFilter narrows audit trail queries. Zero values mean "no filter".
type TrailFilter struct {
	EntityType string
	EntityID   string
	Action     string
}

// ListBefore returns up to limit entries older than the cursor id, newest
// first. cursor=0 starts from the chain head.
func (r *AuditRepository) ListBefore(ctx context.Context, cursor int64, limit int, f TrailFilter) ([]domain.AuditEntry, error) {
	query := `
		SELECT * FROM audit_entries
		WHERE ($1 = 0 OR id < $1)
		  AND ($2 = '' OR entity_type = $2)
		  AND ($3 = '' OR entity_id = $3)
		  AND ($4 = '' OR action = $4)
		ORDER BY id DESC
		LIMIT $5`
	var entries []domain.AuditEntry
	err := r.db.SelectContext(ctx, &entries, query, cursor, f.EntityType, f.EntityID, f.Action, limit)
	if err != nil {
		return nil, fmt.Errorf("audit_repo.ListBefore: %w", err)
	}
	return entries, nil
}

// ListRange returns entries with fromID <= id <= toID in ascending order.
// toID=0 means "through the chain head". Used by verification and export.
func (r *AuditRepository) ListRange(ctx context.Context, fromID, toID int64, limit int) ([]domain.AuditEntry, error) {
	query := `
		SELECT * FROM audit_entries
		WHERE id >= $1 AND ($2 = 0 OR id <= $2)
		ORDER BY id ASC
		LIMIT $3`
	var entries []domain.AuditEntry
	err := r.db.SelectContext(ctx, &entries, query, fromID, toID, limit)
	if err != nil {
		return nil, fmt.Errorf("audit_repo.ListRange: %w", err)
	}
	return entries, nil
}

// GetByID fetches a single entry.
func (r *AuditRepository) GetByID(ctx context.Context, id int64) (*domain.AuditEntry, error) {
	var e domain.AuditEntry
	err := r.db.GetContext(ctx, &e, `SELECT * FROM audit_entries WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAuditEntryNotFound
		}
		return nil, fmt.Errorf("audit_repo.GetByID: %w", err)
	}
	return &e, nil
}

// PrevHashOf returns the hash of the entry immediately before id, or the
// genesis hash when id is the first entry. Used to verify chain segments
// that do not start at the head.
func (r *AuditRepository) PrevHashOf(ctx context.Context, id int64) (string, error) {
	var hash string
	err := r.db.GetContext(ctx, &hash,
		`SELECT hash FROM audit_entries WHERE id < $1 ORDER BY id DESC LIMIT 1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.GenesisHash, nil
		}
		return "", fmt.Errorf("audit_repo.PrevHashOf: %w", err)
	}
	return hash, nil
}

// Count returns the total number of audit entries.
func (r *AuditRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM audit_entries`); err != nil {
		return 0, fmt.Errorf("audit_repo.Count: %w", err)
	}
	return n, nil
}
