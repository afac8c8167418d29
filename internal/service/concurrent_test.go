package service

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/anavi/settlement/internal/domain"
)

// Simulates concurrent milestone releases against one escrow balance. The
// per-deal lock must make exactly as many releases succeed as the balance
// covers; any more would overdraw custody.
func TestConcurrentReleasesRespectBalance(t *testing.T) {
	const workers = 50
	releaseAmount := decimal.RequireFromString("10.0000")
	balance := decimal.RequireFromString("100.0000")

	locks := NewDealLocks()
	var balanceMu sync.Mutex
	var succeeded, rejected int32

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("deal-1")
			defer unlock()

			balanceMu.Lock()
			defer balanceMu.Unlock()
			if balance.LessThan(releaseAmount) {
				atomic.AddInt32(&rejected, 1)
				return
			}
			balance = balance.Sub(releaseAmount)
			atomic.AddInt32(&succeeded, 1)
		}()
	}
	wg.Wait()

	if succeeded != 10 {
		t.Fatalf("expected exactly 10 releases to fit the balance, got %d", succeeded)
	}
	if rejected != workers-10 {
		t.Fatalf("expected %d rejections, got %d", workers-10, rejected)
	}
	if !balance.IsZero() {
		t.Fatalf("expected custody drained to zero, got %s", balance)
	}
}

// Simulates concurrent audit appends serialized by a single chain lock, the
// way the advisory lock serializes writers in the database. Whatever
// interleaving the scheduler picks, the result must verify as one unbroken
// chain with no entry lost.
func TestConcurrentAppendsFormValidChain(t *testing.T) {
	const appends = 40

	var chainMu sync.Mutex
	entries := make([]domain.AuditEntry, 0, appends)
	head := domain.GenesisHash

	var wg sync.WaitGroup
	for i := 0; i < appends; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			payload, _ := json.Marshal(map[string]any{"worker": n})

			chainMu.Lock()
			defer chainMu.Unlock()
			e := domain.AuditEntry{
				ID:         int64(len(entries) + 1),
				Action:     domain.ActionEscrowReleased,
				EntityType: "escrow_account",
				EntityID:   fmt.Sprintf("acct-%d", n),
				Payload:    payload,
				PrevHash:   head,
				CreatedAt:  time.Now().UTC(),
			}
			e.Hash = e.ComputeHash()
			entries = append(entries, e)
			head = e.Hash
		}(i)
	}
	wg.Wait()

	report := domain.VerifyChain(entries, domain.GenesisHash)
	if !report.Valid {
		t.Fatalf("chain broken at id %d after concurrent appends", *report.BrokenAt)
	}
	if report.Checked != appends {
		t.Fatalf("expected %d entries verified, got %d", appends, report.Checked)
	}
}

// Concurrent back-office operators approving the same payout: the
// status-guarded transition lets exactly one approval through.
func TestConcurrentPayoutApprovalIdempotent(t *testing.T) {
	const operators = 20

	state := struct {
		mu     sync.Mutex
		status domain.PayoutStatus
	}{status: domain.PayoutPending}

	var approved, conflicted int32
	var wg sync.WaitGroup
	for i := 0; i < operators; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			state.mu.Lock()
			defer state.mu.Unlock()
			if state.status != domain.PayoutPending {
				atomic.AddInt32(&conflicted, 1)
				return
			}
			state.status = domain.PayoutProcessing
			atomic.AddInt32(&approved, 1)
		}()
	}
	wg.Wait()

	if approved != 1 {
		t.Fatalf("expected exactly 1 approval to win, got %d", approved)
	}
	if conflicted != operators-1 {
		t.Fatalf("expected %d conflicts, got %d", operators-1, conflicted)
	}
	if state.status != domain.PayoutProcessing {
		t.Fatalf("expected final status processing, got %s", state.status)
	}
}
