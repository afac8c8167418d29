package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestComputeTrustScoreMaximum(t *testing.T) {
	now := time.Now()
	in := TrustInputs{
		Tier:             TierInstitutional,
		CompletedDeals:   35,
		AverageRating:    decimal.NewFromInt(5),
		CompliancePassed: 4,
		ComplianceTotal:  4,
		MemberSince:      now.AddDate(-3, 0, 0),
		Now:              now,
	}
	got, breakdown := ComputeTrustScore(in)
	if got != 100 {
		t.Fatalf("expected perfect inputs to score 100, got %d", got)
	}
	if !breakdown.Verification.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("expected verification component 30, got %s", breakdown.Verification)
	}
	if !breakdown.Tenure.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected tenure component 10, got %s", breakdown.Tenure)
	}
}

func TestComputeTrustScoreNewUser(t *testing.T) {
	now := time.Now()
	in := TrustInputs{
		Tier:        TierNone,
		MemberSince: now,
		Now:         now,
	}
	got, _ := ComputeTrustScore(in)
	if got != 0 {
		t.Fatalf("expected blank slate to score 0, got %d", got)
	}
}

func TestComputeTrustScoreRatingOnly(t *testing.T) {
	// Unverified new user with ratings [5,3]: only the rating component
	// contributes, (4−1)/4×20 = 15.
	now := time.Now()
	in := TrustInputs{
		Tier:          TierNone,
		AverageRating: decimal.NewFromInt(4),
		MemberSince:   now,
		Now:           now,
	}
	got, breakdown := ComputeTrustScore(in)
	if got != 15 {
		t.Fatalf("expected score 15, got %d", got)
	}
	if !breakdown.Rating.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("expected the rating component to carry the whole score, got %s", breakdown.Rating)
	}
}

func TestComputeTrustScorePartial(t *testing.T) {
	// basic tier contributes 1/3×30 = 10, four completed deals contribute
	// 4/20×25 = 5; everything else is zero.
	now := time.Now()
	in := TrustInputs{
		Tier:           TierBasic,
		CompletedDeals: 4,
		MemberSince:    now,
		Now:            now,
	}
	got, breakdown := ComputeTrustScore(in)
	if got != 15 {
		t.Fatalf("expected score 15, got %d", got)
	}
	if !breakdown.Verification.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected verification component 10, got %s", breakdown.Verification)
	}
	if !breakdown.TrackRecord.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected track record component 5, got %s", breakdown.TrackRecord)
	}
	if !breakdown.Rating.IsZero() || !breakdown.Compliance.IsZero() || !breakdown.Tenure.IsZero() {
		t.Fatal("expected the remaining components to be zero")
	}
}

func TestComputeTrustScoreRoundsOnceOnFinalSum(t *testing.T) {
	// enhanced = 2/3×30 = 20, 1 deal = 1.25, rating 3.5 = 12.5: per-component
	// rounding would give 20+1+13 = 34 or 20+1+12 = 33; summing first gives
	// 33.75 which rounds to 34.
	now := time.Now()
	in := TrustInputs{
		Tier:           TierEnhanced,
		CompletedDeals: 1,
		AverageRating:  decimal.NewFromFloat(3.5),
		MemberSince:    now,
		Now:            now,
	}
	got, _ := ComputeTrustScore(in)
	if got != 34 {
		t.Fatalf("expected final-sum rounding to yield 34, got %d", got)
	}
}

func TestComputeTrustScoreDeterministic(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := TrustInputs{
		Tier:             TierEnhanced,
		CompletedDeals:   7,
		AverageRating:    decimal.NewFromFloat(4.2),
		CompliancePassed: 2,
		ComplianceTotal:  3,
		MemberSince:      time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		Now:              now,
	}
	first, _ := ComputeTrustScore(in)
	for i := 0; i < 10; i++ {
		if got, _ := ComputeTrustScore(in); got != first {
			t.Fatalf("score drifted between evaluations: %d vs %d", first, got)
		}
	}
}

func TestComputeTrustScoreCaps(t *testing.T) {
	now := time.Now()
	base := TrustInputs{
		Tier:           TierNone,
		CompletedDeals: 20,
		MemberSince:    now,
		Now:            now,
	}
	capped := base
	capped.CompletedDeals = 500
	baseScore, _ := ComputeTrustScore(base)
	cappedScore, _ := ComputeTrustScore(capped)
	if baseScore != cappedScore {
		t.Fatal("completed deals beyond 20 should not raise the score")
	}

	tenured := TrustInputs{Tier: TierNone, MemberSince: now.AddDate(-2, 0, 0), Now: now}
	ancient := TrustInputs{Tier: TierNone, MemberSince: now.AddDate(-10, 0, 0), Now: now}
	tenuredScore, _ := ComputeTrustScore(tenured)
	ancientScore, _ := ComputeTrustScore(ancient)
	if tenuredScore != ancientScore {
		t.Fatal("tenure beyond 24 months should not raise the score")
	}
}

func TestTenureMonthsNeverNegative(t *testing.T) {
	now := time.Now()
	if got := TenureMonths(now.Add(time.Hour), now); !got.IsZero() {
		t.Fatalf("expected zero tenure for a future join date, got %s", got)
	}
}

func TestBadgeForScore(t *testing.T) {
	cases := []struct {
		name   string
		score  int64
		tier   VerificationTier
		passed int64
		total  int64
		want   TrustBadge
	}{
		{"below basic", 39, TierInstitutional, 4, 4, BadgeNone},
		{"basic", 40, TierBasic, 0, 0, BadgeBasic},
		{"enhanced needs enhanced tier", 75, TierBasic, 0, 0, BadgeBasic},
		{"enhanced", 70, TierEnhanced, 0, 0, BadgeEnhanced},
		{"enhanced from institutional tier", 70, TierInstitutional, 0, 0, BadgeEnhanced},
		{"institutional needs full compliance", 95, TierInstitutional, 3, 4, BadgeEnhanced},
		{"institutional needs checks to exist", 95, TierInstitutional, 0, 0, BadgeEnhanced},
		{"institutional needs institutional tier", 95, TierEnhanced, 4, 4, BadgeEnhanced},
		{"institutional", 90, TierInstitutional, 4, 4, BadgeInstitutional},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := BadgeForScore(tc.score, tc.tier, tc.passed, tc.total)
			if got != tc.want {
				t.Fatalf("score=%d tier=%s: expected %s, got %s", tc.score, tc.tier, tc.want, got)
			}
		})
	}
}
