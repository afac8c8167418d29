package domain

import (
	"errors"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sentinel errors — compare with errors.Is()
// ──────────────────────────────────────────────────────────────────────────────

// Escrow errors
var (
	// ErrEscrowNotFound is returned when no escrow account exists for the deal.
	ErrEscrowNotFound = errors.New("escrow account not found")

	// ErrEscrowExists is returned when createAccount is called for a deal that
	// already has an escrow account configured.
	ErrEscrowExists = errors.New("escrow account already configured")

	// ErrInvalidState is returned when an operation is not valid for the
	// account's current lifecycle state (e.g. funding a released account).
	ErrInvalidState = errors.New("operation not valid for current escrow state")

	// ErrInvalidAmount is returned when an amount is zero or negative.
	ErrInvalidAmount = errors.New("amount must be a positive decimal")

	// ErrInsufficientFunds is returned when a release exceeds the unreleased
	// remainder (fundedAmount - releasedAmount).
	ErrInsufficientFunds = errors.New("insufficient escrow funds")

	// ErrNothingToRefund is returned when a refund is requested but the
	// unreleased remainder is zero or negative.
	ErrNothingToRefund = errors.New("no funds available to refund")
)

// Milestone errors
var (
	// ErrMilestoneNotFound is returned when no milestone matches the given id.
	ErrMilestoneNotFound = errors.New("milestone not found")

	// ErrOutOfOrder is returned when a completion is attempted on a milestone
	// that is not the next eligible one in its deal's sequence.
	ErrOutOfOrder = errors.New("milestone completed out of order")

	// ErrMilestoneNotEligible is returned by the escrow ledger when the
	// milestone tracker has not marked the milestone as next-eligible.
	ErrMilestoneNotEligible = errors.New("milestone is not eligible for release")

	// ErrMilestoneCompleted is returned when re-completing an already
	// completed milestone.
	ErrMilestoneCompleted = errors.New("milestone is already completed")
)

// Payout errors
var (
	// ErrPayoutNotFound is returned when no payout record matches the given id.
	ErrPayoutNotFound = errors.New("payout record not found")

	// ErrAllocationMismatch is returned when a deal's attribution percentages
	// sum to more than 100%.
	ErrAllocationMismatch = errors.New("attribution percentages exceed 100%")

	// ErrPayoutNotPending is returned on a status transition that does not
	// start from the expected state (pending→processing→completed/failed).
	ErrPayoutNotPending = errors.New("payout is not in the expected state")
)

// Deal / user errors
var (
	// ErrDealNotFound is returned when no deal matches the given criteria.
	ErrDealNotFound = errors.New("deal not found")

	// ErrUserNotFound is returned when no user matches the given criteria.
	ErrUserNotFound = errors.New("user not found")
)

// External collaborator errors
var (
	// ErrProcessorUnavailable is returned after the payment processor could
	// not be reached within the bounded retry budget.
	ErrProcessorUnavailable = errors.New("payment processor unavailable")
)

// Audit errors
var (
	// ErrAuditEntryNotFound is returned when a chain segment references an
	// entry id that does not exist.
	ErrAuditEntryNotFound = errors.New("audit entry not found")

	// ErrChainBroken is returned by verification when a recomputed hash does
	// not match the stored chain.
	ErrChainBroken = errors.New("audit chain integrity violation")
)

// Auth errors
var (
	// ErrUnauthorized is returned when a valid token is not present.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the authenticated user lacks the required role.
	ErrForbidden = errors.New("forbidden: insufficient permissions")

	// ErrTokenExpired is returned when a JWT has passed its TTL.
	ErrTokenExpired = errors.New("token has expired")

	// ErrTokenInvalid is returned when a token cannot be parsed or its
	// signature does not match.
	ErrTokenInvalid = errors.New("token is invalid")
)

// ──────────────────────────────────────────────────────────────────────────────
// Helper predicates
// ──────────────────────────────────────────────────────────────────────────────

// notFoundErrors collects all "entity not found" sentinel errors so that
// IsNotFound can stay in sync automatically.
var notFoundErrors = []error{
	ErrEscrowNotFound,
	ErrMilestoneNotFound,
	ErrPayoutNotFound,
	ErrDealNotFound,
	ErrUserNotFound,
	ErrAuditEntryNotFound,
}

// IsNotFound returns true when err (or any error in its chain) is one of the
// domain "not found" errors. Use this instead of comparing error values
// directly when translating domain errors to HTTP 404 responses.
func IsNotFound(err error) bool {
	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsConflict returns true for errors that represent a state conflict (e.g.
// double-configuring escrow or completing milestones out of order).
func IsConflict(err error) bool {
	conflictErrors := []error{
		ErrEscrowExists,
		ErrInvalidState,
		ErrOutOfOrder,
		ErrMilestoneCompleted,
		ErrMilestoneNotEligible,
		ErrPayoutNotPending,
		ErrNothingToRefund,
	}
	for _, target := range conflictErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsRejection returns true for business-rule violations that are rejected
// before any side effect (malformed input or rule checks). Callers can retry
// after correcting the request.
func IsRejection(err error) bool {
	rejectionErrors := []error{
		ErrInvalidAmount,
		ErrInsufficientFunds,
		ErrAllocationMismatch,
	}
	for _, target := range rejectionErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsAuthError returns true for authentication/authorisation errors.
func IsAuthError(err error) bool {
	authErrors := []error{
		ErrUnauthorized,
		ErrForbidden,
		ErrTokenExpired,
		ErrTokenInvalid,
	}
	for _, target := range authErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
