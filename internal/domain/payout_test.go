package domain

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func participant(role ParticipantRole, pct string) DealParticipant {
	return DealParticipant{
		ID:                    uuid.New(),
		DealID:                uuid.New(),
		UserID:                uuid.New(),
		Role:                  role,
		AttributionPercentage: decimal.RequireFromString(pct),
	}
}

func TestComputeAllocationsSplitsByPercentage(t *testing.T) {
	amount := decimal.RequireFromString("100000.0000")
	participants := []DealParticipant{
		participant(RoleOriginator, "50.00"),
		participant(RoleIntroducer, "30.00"),
		participant(RoleAdvisor, "20.00"),
	}

	allocations, err := ComputeAllocations(amount, participants)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(allocations) != 3 {
		t.Fatalf("expected 3 allocations, got %d", len(allocations))
	}
	wantAmounts := []string{"50000", "30000", "20000"}
	wantTypes := []PayoutType{PayoutOriginatorFee, PayoutIntroducerFee, PayoutAdvisorFee}
	for i, a := range allocations {
		if !a.Amount.Equal(decimal.RequireFromString(wantAmounts[i])) {
			t.Errorf("allocation %d: expected %s, got %s", i, wantAmounts[i], a.Amount)
		}
		if a.Type != wantTypes[i] {
			t.Errorf("allocation %d: expected type %s, got %s", i, wantTypes[i], a.Type)
		}
	}
}

func TestComputeAllocationsUnderAllocatedLeavesRemainder(t *testing.T) {
	amount := decimal.RequireFromString("10000.0000")
	participants := []DealParticipant{
		participant(RoleOriginator, "40.00"),
	}
	allocations, err := ComputeAllocations(amount, participants)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(allocations) != 1 {
		t.Fatalf("expected 1 allocation, got %d", len(allocations))
	}
	if !allocations[0].Amount.Equal(decimal.RequireFromString("4000")) {
		t.Fatalf("expected 4000 allocated, got %s", allocations[0].Amount)
	}
}

func TestComputeAllocationsOverAllocatedRejected(t *testing.T) {
	amount := decimal.RequireFromString("10000.0000")
	participants := []DealParticipant{
		participant(RoleOriginator, "60.00"),
		participant(RoleAdvisor, "50.00"),
	}
	if _, err := ComputeAllocations(amount, participants); !errors.Is(err, ErrAllocationMismatch) {
		t.Fatalf("expected ErrAllocationMismatch, got %v", err)
	}
}

func TestComputeAllocationsSkipsNonAttributedRoles(t *testing.T) {
	amount := decimal.RequireFromString("5000.0000")
	participants := []DealParticipant{
		participant(RoleBuyer, "100.00"),
		participant(RoleSeller, "100.00"),
		participant(RoleAdvisor, "0.00"),
	}
	allocations, err := ComputeAllocations(amount, participants)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(allocations) != 0 {
		t.Fatalf("expected no allocations for non-attributed roles, got %d", len(allocations))
	}
}

func TestComputeAllocationsTruncatesToFourPlaces(t *testing.T) {
	// 1/3 of 100 yields 33.333333...; the share must be cut, never rounded
	// up, so the shares cannot sum past the released amount.
	amount := decimal.RequireFromString("100.0000")
	participants := []DealParticipant{
		participant(RoleOriginator, "33.33"),
		participant(RoleAdvisor, "33.34"),
	}
	allocations, err := ComputeAllocations(amount, participants)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allocations[0].Amount.Equal(decimal.RequireFromString("33.33")) {
		t.Fatalf("expected 33.33, got %s", allocations[0].Amount)
	}
	if allocations[0].Amount.Exponent() < -4 {
		t.Fatalf("allocation not truncated to 4 places: %s", allocations[0].Amount)
	}

	// A repeating division: 33.34% of 99.99 = 33.336666, cut at 33.3366.
	repeating, err := ComputeAllocations(decimal.RequireFromString("99.99"), participants[1:])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !repeating[0].Amount.Equal(decimal.RequireFromString("33.3366")) {
		t.Fatalf("expected 33.3366, got %s", repeating[0].Amount)
	}
}

func TestComputeAllocationsCarriesAttributionDetails(t *testing.T) {
	relID := uuid.New()
	p := participant(RoleIntroducer, "12.50")
	p.RelationshipID = &relID

	allocations, err := ComputeAllocations(decimal.RequireFromString("8000.0000"), []DealParticipant{p})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(allocations) != 1 {
		t.Fatalf("expected 1 allocation, got %d", len(allocations))
	}
	a := allocations[0]
	if !a.Percentage.Equal(decimal.RequireFromString("12.50")) {
		t.Fatalf("expected percentage 12.50 carried through, got %s", a.Percentage)
	}
	if a.RelationshipID == nil || *a.RelationshipID != relID {
		t.Fatal("expected relationship id carried through to the allocation")
	}
}

func TestPayoutTypeForRole(t *testing.T) {
	if _, ok := PayoutTypeForRole(RoleBuyer); ok {
		t.Fatal("buyer role should carry no attribution")
	}
	got, ok := PayoutTypeForRole(RoleIntroducer)
	if !ok || got != PayoutIntroducerFee {
		t.Fatalf("expected introducer_fee, got %s (ok=%v)", got, ok)
	}
}
