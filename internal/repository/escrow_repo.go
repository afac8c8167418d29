package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/anavi/settlement/internal/domain"
)

// EscrowRepository handles all database operations for escrow accounts and
// their transaction ledger.
type EscrowRepository struct {
	db *sqlx.DB
}

// NewEscrowRepository creates a new EscrowRepository.
func NewEscrowRepository(db *sqlx.DB) *EscrowRepository {
	return &EscrowRepository{db: db}
}

// GetByDealID fetches the escrow account for a deal.
func (r *EscrowRepository) GetByDealID(ctx context.Context, dealID uuid.UUID) (*domain.EscrowAccount, error) {
	var acct domain.EscrowAccount
	err := r.db.GetContext(ctx, &acct, `SELECT * FROM escrow_accounts WHERE deal_id = $1`, dealID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrEscrowNotFound
		}
		return nil, fmt.Errorf("escrow_repo.GetByDealID: %w", err)
	}
	return &acct, nil
}

// GetByDealIDForUpdate locks the escrow row for the remainder of tx. Every
// mutation of funded/released amounts goes through this lock.
func (r *EscrowRepository) GetByDealIDForUpdate(ctx context.Context, tx *sqlx.Tx, dealID uuid.UUID) (*domain.EscrowAccount, error) {
	var acct domain.EscrowAccount
	err := tx.GetContext(ctx, &acct, `SELECT * FROM escrow_accounts WHERE deal_id = $1 FOR UPDATE`, dealID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrEscrowNotFound
		}
		return nil, fmt.Errorf("escrow_repo.GetByDealIDForUpdate: %w", err)
	}
	return &acct, nil
}

// Create inserts a new escrow account. The partial unique index on deal_id
// turns double configuration into ErrEscrowExists.
func (r *EscrowRepository) Create(ctx context.Context, tx *sqlx.Tx, acct *domain.EscrowAccount) error {
	query := `
		INSERT INTO escrow_accounts
			(id, deal_id, custody_ref, currency, funded_amount, released_amount, status, created_at, updated_at)
		VALUES
			(:id, :deal_id, :custody_ref, :currency, :funded_amount, :released_amount, :status, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, acct); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrEscrowExists
		}
		return fmt.Errorf("escrow_repo.Create: %w", err)
	}
	return nil
}

// RecordDeposit sets the funded amount and moves the account to 'funded'.
// The WHERE clause re-checks the state so a concurrent writer cannot fund twice.
func (r *EscrowRepository) RecordDeposit(ctx context.Context, tx *sqlx.Tx, accountID uuid.UUID, amount decimal.Decimal) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE escrow_accounts
		SET funded_amount = $1,
		    status        = 'funded',
		    updated_at    = now()
		WHERE id = $2 AND status = 'unfunded'`,
		amount, accountID)
	if err != nil {
		return fmt.Errorf("escrow_repo.RecordDeposit: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrInvalidState
	}
	return nil
}

// RecordRelease adds amount to released_amount and transitions the status to
// partially_released or released depending on the remainder.
func (r *EscrowRepository) RecordRelease(ctx context.Context, tx *sqlx.Tx, accountID uuid.UUID, amount decimal.Decimal) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE escrow_accounts
		SET released_amount = released_amount + $1,
		    status = CASE
		        WHEN released_amount + $1 >= funded_amount THEN 'released'
		        ELSE 'partially_released'
		    END,
		    updated_at = now()
		WHERE id = $2
		  AND status IN ('funded', 'partially_released')
		  AND released_amount + $1 <= funded_amount`,
		amount, accountID)
	if err != nil {
		return fmt.Errorf("escrow_repo.RecordRelease: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrInvalidState
	}
	return nil
}

// RecordRefund moves the account to 'refunded'. The released total stays as
// is; only the unreleased remainder leaves custody.
func (r *EscrowRepository) RecordRefund(ctx context.Context, tx *sqlx.Tx, accountID uuid.UUID) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE escrow_accounts
		SET status     = 'refunded',
		    updated_at = now()
		WHERE id = $1 AND status IN ('funded', 'partially_released')`,
		accountID)
	if err != nil {
		return fmt.Errorf("escrow_repo.RecordRefund: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrInvalidState
	}
	return nil
}

// LogTransaction appends a movement row to the escrow ledger inside tx.
func (r *EscrowRepository) LogTransaction(ctx context.Context, tx *sqlx.Tx, txn *domain.EscrowTransaction) error {
	query := `
		INSERT INTO escrow_transactions
			(id, account_id, milestone_id, type, amount, reference, created_at)
		VALUES
			(:id, :account_id, :milestone_id, :type, :amount, :reference, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, txn); err != nil {
		return fmt.Errorf("escrow_repo.LogTransaction: %w", err)
	}
	return nil
}

// GetTransactions returns the movement history of a deal's escrow account,
// newest first.
func (r *EscrowRepository) GetTransactions(ctx context.Context, dealID uuid.UUID, limit, offset int) ([]*domain.EscrowTransaction, error) {
	var txns []*domain.EscrowTransaction
	err := r.db.SelectContext(ctx, &txns, `
		SELECT et.*
		FROM escrow_transactions et
		JOIN escrow_accounts ea ON ea.id = et.account_id
		WHERE ea.deal_id = $1
		ORDER BY et.created_at DESC
		LIMIT $2 OFFSET $3`,
		dealID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("escrow_repo.GetTransactions: %w", err)
	}
	return txns, nil
}

// HasReleaseForMilestone reports whether a release transaction already exists
// for the milestone. Used as an idempotency backstop for retried completions.
func (r *EscrowRepository) HasReleaseForMilestone(ctx context.Context, tx *sqlx.Tx, milestoneID uuid.UUID) (bool, error) {
	var exists bool
	err := tx.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM escrow_transactions
			WHERE milestone_id = $1 AND type = 'release'
		)`,
		milestoneID)
	if err != nil {
		return false, fmt.Errorf("escrow_repo.HasReleaseForMilestone: %w", err)
	}
	return exists, nil
}

// TotalsInCustody returns aggregate funded/released sums across all active
// escrow accounts. Used by the back-office dashboard.
func (r *EscrowRepository) TotalsInCustody(ctx context.Context) (funded, released decimal.Decimal, err error) {
	row := struct {
		Funded   decimal.Decimal `db:"funded"`
		Released decimal.Decimal `db:"released"`
	}{}
	err = r.db.GetContext(ctx, &row, `
		SELECT COALESCE(SUM(funded_amount), 0)   AS funded,
		       COALESCE(SUM(released_amount), 0) AS released
		FROM escrow_accounts
		WHERE status IN ('funded', 'partially_released')`)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("escrow_repo.TotalsInCustody: %w", err)
	}
	return row.Funded, row.Released, nil
}
