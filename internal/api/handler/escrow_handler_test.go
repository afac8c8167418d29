package handler

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/anavi/settlement/internal/domain"
)

func TestNotConfiguredEscrowView(t *testing.T) {
	dealID := uuid.New()
	view := notConfiguredEscrow(dealID)

	if view["dealId"] != dealID {
		t.Fatalf("expected deal id %s, got %v", dealID, view["dealId"])
	}
	if view["status"] != domain.EscrowNotConfigured {
		t.Fatalf("expected status %s, got %v", domain.EscrowNotConfigured, view["status"])
	}
	funded, ok := view["fundedAmount"].(decimal.Decimal)
	if !ok || !funded.IsZero() {
		t.Fatalf("expected zero funded amount, got %v", view["fundedAmount"])
	}
	released, ok := view["releasedAmount"].(decimal.Decimal)
	if !ok || !released.IsZero() {
		t.Fatalf("expected zero released amount, got %v", view["releasedAmount"])
	}
}
