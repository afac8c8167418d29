package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PayoutStatus is the settlement state of a payout record.
type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "pending"
	PayoutProcessing PayoutStatus = "processing"
	PayoutCompleted  PayoutStatus = "completed"
	PayoutFailed     PayoutStatus = "failed"
)

// PayoutType classifies what a payout compensates.
type PayoutType string

const (
	PayoutOriginatorFee       PayoutType = "originator_fee"
	PayoutIntroducerFee       PayoutType = "introducer_fee"
	PayoutAdvisorFee          PayoutType = "advisor_fee"
	PayoutSuccessFee          PayoutType = "success_fee"
	PayoutMilestoneBonus      PayoutType = "milestone_bonus"
	PayoutLifetimeAttribution PayoutType = "lifetime_attribution"
)

// PayoutRecord is one participant's share of a released milestone amount.
// Amount is computed as milestone amount × attribution percentage / 100,
// truncated to 4 decimal places.
type PayoutRecord struct {
	ID                    uuid.UUID       `db:"id" json:"id"`
	DealID                uuid.UUID       `db:"deal_id" json:"dealId"`
	MilestoneID           *uuid.UUID      `db:"milestone_id" json:"milestoneId,omitempty"`
	UserID                uuid.UUID       `db:"user_id" json:"userId"`
	RelationshipID        *uuid.UUID      `db:"relationship_id" json:"relationshipId,omitempty"`
	Type                  PayoutType      `db:"type" json:"type"`
	AttributionPercentage decimal.Decimal `db:"attribution_percentage" json:"attributionPercentage"`
	Amount                decimal.Decimal `db:"amount" json:"amount"`
	Currency              string          `db:"currency" json:"currency"`
	Status                PayoutStatus    `db:"status" json:"status"`
	Reference             string          `db:"reference" json:"reference"`
	FailReason            *string         `db:"fail_reason" json:"failReason,omitempty"`
	PaidAt                *time.Time      `db:"paid_at" json:"paidAt,omitempty"`
	CreatedAt             time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt             time.Time       `db:"updated_at" json:"updatedAt"`
}

// ParticipantRole is a user's role on a deal.
type ParticipantRole string

const (
	RoleOriginator ParticipantRole = "originator"
	RoleIntroducer ParticipantRole = "introducer"
	RoleAdvisor    ParticipantRole = "advisor"
	RoleBuyer      ParticipantRole = "buyer"
	RoleSeller     ParticipantRole = "seller"
)

// payoutTypeByRole maps a participant role to the payout type its share is
// recorded as. Buyers and sellers carry no attribution and receive none.
var payoutTypeByRole = map[ParticipantRole]PayoutType{
	RoleOriginator: PayoutOriginatorFee,
	RoleIntroducer: PayoutIntroducerFee,
	RoleAdvisor:    PayoutAdvisorFee,
}

// PayoutTypeForRole returns the payout type for a role, and whether the role
// participates in attribution at all.
func PayoutTypeForRole(role ParticipantRole) (PayoutType, bool) {
	t, ok := payoutTypeByRole[role]
	return t, ok
}

// DealParticipant links a user to a deal with an attribution percentage.
// Percentages are DECIMAL(5,2); across a deal they must not exceed 100.
type DealParticipant struct {
	ID                    uuid.UUID       `db:"id" json:"id"`
	DealID                uuid.UUID       `db:"deal_id" json:"dealId"`
	UserID                uuid.UUID       `db:"user_id" json:"userId"`
	RelationshipID        *uuid.UUID      `db:"relationship_id" json:"relationshipId,omitempty"`
	Role                  ParticipantRole `db:"role" json:"role"`
	AttributionPercentage decimal.Decimal `db:"attribution_percentage" json:"attributionPercentage"`
	CreatedAt             time.Time       `db:"created_at" json:"createdAt"`
}

// PayoutAllocation is one computed share before persistence.
type PayoutAllocation struct {
	UserID         uuid.UUID
	RelationshipID *uuid.UUID
	Type           PayoutType
	Percentage     decimal.Decimal
	Amount         decimal.Decimal
}

var oneHundred = decimal.NewFromInt(100)

// ComputeAllocations splits amount across the deal's attributed participants.
// Participants whose role carries no attribution or whose percentage is zero
// are skipped. Returns ErrAllocationMismatch when the attributed percentages
// sum to more than 100. The undistributed remainder (if percentages sum to
// less than 100) stays in escrow custody and is not allocated to anyone.
func ComputeAllocations(amount decimal.Decimal, participants []DealParticipant) ([]PayoutAllocation, error) {
	total := decimal.Zero
	allocations := make([]PayoutAllocation, 0, len(participants))

	for _, p := range participants {
		payoutType, attributed := PayoutTypeForRole(p.Role)
		if !attributed || p.AttributionPercentage.IsZero() {
			continue
		}
		total = total.Add(p.AttributionPercentage)
		// Truncated, not rounded: the shares must never sum past the
		// released amount.
		share := amount.Mul(p.AttributionPercentage).Div(oneHundred).Truncate(4)
		allocations = append(allocations, PayoutAllocation{
			UserID:         p.UserID,
			RelationshipID: p.RelationshipID,
			Type:           payoutType,
			Percentage:     p.AttributionPercentage,
			Amount:         share,
		})
	}

	if total.GreaterThan(oneHundred) {
		return nil, ErrAllocationMismatch
	}
	return allocations, nil
}

// EarningsStatement aggregates a user's payouts per deal for reporting.
type EarningsStatement struct {
	UserID       uuid.UUID       `json:"userId"`
	TotalEarned  decimal.Decimal `json:"totalEarned"`
	TotalPending decimal.Decimal `json:"totalPending"`
	Lines        []StatementLine `json:"lines"`
}

// StatementLine is one deal's contribution to an earnings statement.
type StatementLine struct {
	DealID    uuid.UUID       `db:"deal_id" json:"dealId"`
	DealTitle string          `db:"deal_title" json:"dealTitle"`
	Completed decimal.Decimal `db:"completed" json:"completed"`
	Pending   decimal.Decimal `db:"pending" json:"pending"`
	Payouts   int             `db:"payouts" json:"payouts"`
}
