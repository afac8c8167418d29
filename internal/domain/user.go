package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UserRole controls access to the settlement APIs.
type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

// User is a platform participant. Identity and registration live in an
// upstream service; this row carries the fields the settlement core needs
// for authorisation and trust scoring.
type User struct {
	ID               uuid.UUID        `db:"id" json:"id"`
	Email            string           `db:"email" json:"email"`
	DisplayName      string           `db:"display_name" json:"displayName"`
	Role             UserRole         `db:"role" json:"role"`
	Tier             VerificationTier `db:"verification_tier" json:"verificationTier"`
	TrustScore       int64            `db:"trust_score" json:"trustScore"`
	TrustBadge       TrustBadge       `db:"trust_badge" json:"trustBadge"`
	CompletedDeals   int64            `db:"completed_deals" json:"completedDeals"`
	AverageRating    decimal.Decimal  `db:"average_rating" json:"averageRating"`
	CompliancePassed int64            `db:"compliance_passed" json:"compliancePassed"`
	ComplianceTotal  int64            `db:"compliance_total" json:"complianceTotal"`
	CreatedAt        time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updatedAt"`
}

// DealStatus is the coarse lifecycle of a deal.
type DealStatus string

const (
	DealActive    DealStatus = "active"
	DealCompleted DealStatus = "completed"
	DealCancelled DealStatus = "cancelled"
)

// Deal is the container that escrow, milestones and payouts hang off.
type Deal struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	Title     string     `db:"title" json:"title"`
	Currency  string     `db:"currency" json:"currency"`
	Status    DealStatus `db:"status" json:"status"`
	CreatedBy uuid.UUID  `db:"created_by" json:"createdBy"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time  `db:"updated_at" json:"updatedAt"`
}
