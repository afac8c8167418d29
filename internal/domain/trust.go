package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// VerificationTier is the identity verification level of a user.
type VerificationTier string

const (
	TierNone          VerificationTier = "none"
	TierBasic         VerificationTier = "basic"
	TierEnhanced      VerificationTier = "enhanced"
	TierInstitutional VerificationTier = "institutional"
)

// tierIndex maps a verification tier to its ordinal (0..3).
var tierIndex = map[VerificationTier]int64{
	TierNone:          0,
	TierBasic:         1,
	TierEnhanced:      2,
	TierInstitutional: 3,
}

// TrustBadge is the public badge derived from a trust score plus
// verification state.
type TrustBadge string

const (
	BadgeNone          TrustBadge = "none"
	BadgeBasic         TrustBadge = "basic"
	BadgeEnhanced      TrustBadge = "enhanced"
	BadgeInstitutional TrustBadge = "institutional"
)

// TrustInputs are the observable facts the trust score is a pure function
// of. Recomputing with identical inputs always yields an identical score.
type TrustInputs struct {
	Tier             VerificationTier
	CompletedDeals   int64
	AverageRating    decimal.Decimal // 1..5; zero means unrated
	CompliancePassed int64
	ComplianceTotal  int64
	MemberSince      time.Time
	Now              time.Time
}

// Component weights. The five components sum to a maximum of 100.
var (
	weightVerification = decimal.NewFromInt(30)
	weightDeals        = decimal.NewFromInt(25)
	weightRating       = decimal.NewFromInt(20)
	weightCompliance   = decimal.NewFromInt(15)
	weightTenure       = decimal.NewFromInt(10)

	dealsCap   = decimal.NewFromInt(20)
	tenureCap  = decimal.NewFromInt(24)
	scoreFloor = decimal.Zero
	scoreCeil  = decimal.NewFromInt(100)
)

// hoursPerMonth uses the mean Gregorian month (30.44 days) so tenure does
// not jump at month boundaries.
var hoursPerMonth = decimal.NewFromFloat(30.44 * 24)

// TenureMonths converts elapsed wall time into fractional months.
func TenureMonths(since, now time.Time) decimal.Decimal {
	if !now.After(since) {
		return decimal.Zero
	}
	hours := decimal.NewFromFloat(now.Sub(since).Hours())
	return hours.Div(hoursPerMonth)
}

// ComputeTrustScore evaluates the weighted trust formula:
//
//	verification: tier/3 × 30
//	track record: min(completedDeals, 20)/20 × 25
//	rating:       (avgRating − 1)/4 × 20  (0 when unrated)
//	compliance:   passed/total × 15       (0 when no checks exist)
//	tenure:       min(months, 24)/24 × 10
//
// The weighted sum is rounded half away from zero to an integer and clamped
// to [0, 100]. Rounding happens once, on the final sum, never per component.
// The returned breakdown carries the unrounded component contributions so a
// snapshot can show what moved the score.
func ComputeTrustScore(in TrustInputs) (int64, TrustBreakdown) {
	three := decimal.NewFromInt(3)
	four := decimal.NewFromInt(4)
	one := decimal.NewFromInt(1)

	verification := decimal.NewFromInt(tierIndex[in.Tier]).Div(three).Mul(weightVerification)

	deals := decimal.NewFromInt(in.CompletedDeals)
	if deals.GreaterThan(dealsCap) {
		deals = dealsCap
	}
	trackRecord := deals.Div(dealsCap).Mul(weightDeals)

	rating := decimal.Zero
	if in.AverageRating.GreaterThanOrEqual(one) {
		rating = in.AverageRating.Sub(one).Div(four).Mul(weightRating)
	}

	compliance := decimal.Zero
	if in.ComplianceTotal > 0 {
		compliance = decimal.NewFromInt(in.CompliancePassed).
			Div(decimal.NewFromInt(in.ComplianceTotal)).
			Mul(weightCompliance)
	}

	months := TenureMonths(in.MemberSince, in.Now)
	if months.GreaterThan(tenureCap) {
		months = tenureCap
	}
	tenure := months.Div(tenureCap).Mul(weightTenure)

	score := verification.Add(trackRecord).Add(rating).Add(compliance).Add(tenure).Round(0)
	if score.LessThan(scoreFloor) {
		score = scoreFloor
	}
	if score.GreaterThan(scoreCeil) {
		score = scoreCeil
	}
	breakdown := TrustBreakdown{
		Verification: verification,
		TrackRecord:  trackRecord,
		Rating:       rating,
		Compliance:   compliance,
		Tenure:       tenure,
	}
	return score.IntPart(), breakdown
}

// TrustBreakdown is the per-component contribution behind a trust score.
// Stored as JSONB alongside each snapshot.
type TrustBreakdown struct {
	Verification decimal.Decimal `json:"verification"`
	TrackRecord  decimal.Decimal `json:"trackRecord"`
	Rating       decimal.Decimal `json:"rating"`
	Compliance   decimal.Decimal `json:"compliance"`
	Tenure       decimal.Decimal `json:"tenure"`
}

func (b TrustBreakdown) Value() (driver.Value, error) {
	return json.Marshal(b)
}

func (b *TrustBreakdown) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*b = TrustBreakdown{}
		return nil
	case []byte:
		return json.Unmarshal(v, b)
	case string:
		return json.Unmarshal([]byte(v), b)
	default:
		return fmt.Errorf("trust breakdown: cannot scan %T", src)
	}
}

// BadgeForScore derives the public badge. Higher badges additionally require
// verification and compliance state, not just the numeric score:
//
//	< 40                              → none
//	≥ 40                              → basic
//	≥ 70 and enhanced-or-better tier  → enhanced
//	≥ 90, institutional tier, all compliance checks passed → institutional
func BadgeForScore(score int64, tier VerificationTier, compliancePassed, complianceTotal int64) TrustBadge {
	allCompliance := complianceTotal > 0 && compliancePassed == complianceTotal
	switch {
	case score >= 90 && tier == TierInstitutional && allCompliance:
		return BadgeInstitutional
	case score >= 70 && tierIndex[tier] >= tierIndex[TierEnhanced]:
		return BadgeEnhanced
	case score >= 40:
		return BadgeBasic
	default:
		return BadgeNone
	}
}

// TrustSnapshot is one historical trust score evaluation for a user.
type TrustSnapshot struct {
	ID        uuid.UUID      `db:"id" json:"id"`
	UserID    uuid.UUID      `db:"user_id" json:"userId"`
	Score     int64          `db:"score" json:"score"`
	Badge     TrustBadge     `db:"badge" json:"badge"`
	Breakdown TrustBreakdown `db:"breakdown" json:"breakdown"`
	Reason    string         `db:"reason" json:"reason"`
	CreatedAt time.Time      `db:"created_at" json:"createdAt"`
}
