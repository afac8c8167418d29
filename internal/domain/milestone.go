package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MilestoneStatus is the lifecycle state of a single milestone.
type MilestoneStatus string

const (
	MilestonePending    MilestoneStatus = "pending"
	MilestoneInProgress MilestoneStatus = "in_progress"
	MilestoneCompleted  MilestoneStatus = "completed"
)

// Milestone is one step in a deal's ordered progression. SequenceIndex is
// zero-based and strictly gated: a milestone can only be completed when every
// lower-indexed milestone in the same deal is already completed.
type Milestone struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	DealID        uuid.UUID       `db:"deal_id" json:"dealId"`
	SequenceIndex int             `db:"sequence_index" json:"sequenceIndex"`
	Title         string          `db:"title" json:"title"`
	Description   string          `db:"description" json:"description"`
	Status        MilestoneStatus `db:"status" json:"status"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	PayoutTrigger bool            `db:"payout_trigger" json:"payoutTrigger"`
	CompletedAt   *time.Time      `db:"completed_at" json:"completedAt,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updatedAt"`
}

// MilestoneTemplate describes one entry of the default progression created
// for every new deal.
type MilestoneTemplate struct {
	Title         string
	Description   string
	Status        MilestoneStatus
	PayoutTrigger bool
}

// DefaultMilestoneTemplates is the six-step progression installed when a
// deal's milestones are set up. "Initial Contact" is completed immediately;
// "Term Sheet" and "Closing" trigger escrow releases.
func DefaultMilestoneTemplates() []MilestoneTemplate {
	return []MilestoneTemplate{
		{Title: "Initial Contact", Description: "First meeting between parties held", Status: MilestoneCompleted},
		{Title: "NDA Signed", Description: "Mutual non-disclosure agreement executed", Status: MilestonePending},
		{Title: "Due Diligence", Description: "Financial and legal review of the target", Status: MilestonePending},
		{Title: "Term Sheet", Description: "Key commercial terms agreed and signed", Status: MilestonePending, PayoutTrigger: true},
		{Title: "Documentation", Description: "Definitive agreements drafted and negotiated", Status: MilestonePending},
		{Title: "Closing", Description: "Transaction closed and funds transferred", Status: MilestonePending, PayoutTrigger: true},
	}
}
