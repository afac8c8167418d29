package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EscrowStatus is the lifecycle state of an escrow account.
type EscrowStatus string

const (
	EscrowNotConfigured     EscrowStatus = "not_configured"
	EscrowUnfunded          EscrowStatus = "unfunded"
	EscrowFunded            EscrowStatus = "funded"
	EscrowPartiallyReleased EscrowStatus = "partially_released"
	EscrowReleased          EscrowStatus = "released"
	EscrowRefunded          EscrowStatus = "refunded"
)

// EscrowAccount is the monetary ledger attached to a deal. Amounts are
// tracked as DECIMAL(18,4); fundedAmount only ever grows, releasedAmount
// never exceeds fundedAmount.
type EscrowAccount struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	DealID         uuid.UUID       `db:"deal_id" json:"dealId"`
	CustodyRef     string          `db:"custody_ref" json:"custodyRef"`
	Currency       string          `db:"currency" json:"currency"`
	FundedAmount   decimal.Decimal `db:"funded_amount" json:"fundedAmount"`
	ReleasedAmount decimal.Decimal `db:"released_amount" json:"releasedAmount"`
	Status         EscrowStatus    `db:"status" json:"status"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updatedAt"`
}

// Remaining returns the unreleased remainder (funded - released).
func (a *EscrowAccount) Remaining() decimal.Decimal {
	return a.FundedAmount.Sub(a.ReleasedAmount)
}

// CanFund reports whether a deposit may be recorded in the current state.
func (a *EscrowAccount) CanFund() bool {
	return a.Status == EscrowUnfunded
}

// CanRelease reports whether a milestone release may happen in the current state.
func (a *EscrowAccount) CanRelease() bool {
	return a.Status == EscrowFunded || a.Status == EscrowPartiallyReleased
}

// CanRefund reports whether the unreleased remainder may be returned.
func (a *EscrowAccount) CanRefund() bool {
	return a.Status == EscrowFunded || a.Status == EscrowPartiallyReleased
}

// RefundGuard decides whether a refund may proceed. An already-refunded or
// fully-drained account yields ErrNothingToRefund rather than a state error:
// the request names a real account, there is simply nothing left in it.
func (a *EscrowAccount) RefundGuard() error {
	switch {
	case a.Status == EscrowRefunded:
		return ErrNothingToRefund
	case a.Remaining().LessThanOrEqual(decimal.Zero):
		return ErrNothingToRefund
	case !a.CanRefund():
		return ErrInvalidState
	}
	return nil
}

// EscrowTransactionType classifies ledger movements on an escrow account.
type EscrowTransactionType string

const (
	EscrowTxDeposit EscrowTransactionType = "deposit"
	EscrowTxRelease EscrowTransactionType = "release"
	EscrowTxRefund  EscrowTransactionType = "refund"
)

// EscrowTransaction is an append-only movement row on an escrow account.
// MilestoneID is set for release transactions only.
type EscrowTransaction struct {
	ID          uuid.UUID             `db:"id" json:"id"`
	AccountID   uuid.UUID             `db:"account_id" json:"accountId"`
	MilestoneID *uuid.UUID            `db:"milestone_id" json:"milestoneId,omitempty"`
	Type        EscrowTransactionType `db:"type" json:"type"`
	Amount      decimal.Decimal       `db:"amount" json:"amount"`
	Reference   string                `db:"reference" json:"reference"`
	CreatedAt   time.Time             `db:"created_at" json:"createdAt"`
}
