// Package processor wraps the external custodial payment processor. The
// settlement core never moves money itself; it instructs the processor and
// records the outcome. All mutating calls carry an idempotency key so a
// retried request after a network failure cannot double-move funds.
package processor

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Client is the custody gateway the escrow ledger talks to.
type Client interface {
	// CreateCustodyAccount provisions a custody account and returns its
	// external reference.
	CreateCustodyAccount(ctx context.Context, dealID uuid.UUID) (string, error)

	// HoldFunds instructs the processor to take custody of amount.
	HoldFunds(ctx context.Context, custodyRef string, amount decimal.Decimal, idempotencyKey string) (Confirmation, error)

	// ReleaseFunds instructs the processor to release amount from custody.
	ReleaseFunds(ctx context.Context, custodyRef string, amount decimal.Decimal, idempotencyKey string) (Confirmation, error)

	// ReverseFunds instructs the processor to return amount to the depositor.
	ReverseFunds(ctx context.Context, custodyRef string, amount decimal.Decimal, idempotencyKey string) (Confirmation, error)
}

// Confirmation is the processor's acknowledgement of a custody operation.
type Confirmation struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

// HoldKey derives the stable idempotency key for funding a deal's escrow.
// One funding event per account means the deal id alone identifies it.
func HoldKey(dealID uuid.UUID) string {
	return fmt.Sprintf("hold:%s", dealID)
}

// ReleaseKey derives the stable idempotency key for a milestone release.
func ReleaseKey(dealID, milestoneID uuid.UUID) string {
	return fmt.Sprintf("release:%s:%s", dealID, milestoneID)
}

// ReverseKey derives the stable idempotency key for refunding a deal's
// unreleased remainder.
func ReverseKey(dealID uuid.UUID) string {
	return fmt.Sprintf("reverse:%s", dealID)
}
