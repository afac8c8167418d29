package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestEscrowRemaining(t *testing.T) {
	acct := EscrowAccount{
		FundedAmount:   decimal.RequireFromString("30000000.0000"),
		ReleasedAmount: decimal.RequireFromString("12000000.0000"),
	}
	want := decimal.RequireFromString("18000000.0000")
	if !acct.Remaining().Equal(want) {
		t.Fatalf("expected remaining %s, got %s", want, acct.Remaining())
	}
}

func TestEscrowStateGates(t *testing.T) {
	cases := []struct {
		status     EscrowStatus
		canFund    bool
		canRelease bool
		canRefund  bool
	}{
		{EscrowNotConfigured, false, false, false},
		{EscrowUnfunded, true, false, false},
		{EscrowFunded, false, true, true},
		{EscrowPartiallyReleased, false, true, true},
		{EscrowReleased, false, false, false},
		{EscrowRefunded, false, false, false},
	}
	for _, tc := range cases {
		acct := EscrowAccount{Status: tc.status}
		if acct.CanFund() != tc.canFund {
			t.Errorf("%s: CanFund = %v, want %v", tc.status, acct.CanFund(), tc.canFund)
		}
		if acct.CanRelease() != tc.canRelease {
			t.Errorf("%s: CanRelease = %v, want %v", tc.status, acct.CanRelease(), tc.canRelease)
		}
		if acct.CanRefund() != tc.canRefund {
			t.Errorf("%s: CanRefund = %v, want %v", tc.status, acct.CanRefund(), tc.canRefund)
		}
	}
}

func TestEscrowRefundGuard(t *testing.T) {
	funded := decimal.RequireFromString("1000.00")
	cases := []struct {
		name     string
		status   EscrowStatus
		released decimal.Decimal
		want     error
	}{
		{"funded account refunds", EscrowFunded, decimal.Zero, nil},
		{"partially released refunds remainder", EscrowPartiallyReleased, decimal.RequireFromString("400.00"), nil},
		{"second refund has nothing left", EscrowRefunded, decimal.Zero, ErrNothingToRefund},
		{"fully released has nothing left", EscrowReleased, funded, ErrNothingToRefund},
		{"drained but not yet transitioned", EscrowPartiallyReleased, funded, ErrNothingToRefund},
		{"unfunded account holds nothing", EscrowUnfunded, decimal.Zero, ErrNothingToRefund},
	}
	for _, tc := range cases {
		acct := EscrowAccount{Status: tc.status, FundedAmount: funded, ReleasedAmount: tc.released}
		if tc.status == EscrowUnfunded {
			acct.FundedAmount = decimal.Zero
		}
		if got := acct.RefundGuard(); got != tc.want {
			t.Errorf("%s: RefundGuard = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestDefaultMilestoneTemplates(t *testing.T) {
	templates := DefaultMilestoneTemplates()
	if len(templates) != 6 {
		t.Fatalf("expected 6 template milestones, got %d", len(templates))
	}
	if templates[0].Status != MilestoneCompleted {
		t.Fatal("first template milestone should start completed")
	}
	triggers := 0
	for _, tmpl := range templates {
		if tmpl.PayoutTrigger {
			triggers++
		}
	}
	if triggers != 2 {
		t.Fatalf("expected exactly 2 payout triggers, got %d", triggers)
	}
	if !templates[3].PayoutTrigger || !templates[5].PayoutTrigger {
		t.Fatal("term sheet and closing should be the payout triggers")
	}
}
