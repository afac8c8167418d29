package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func chainFixture(t *testing.T, n int) []AuditEntry {
	t.Helper()
	actor := uuid.New()
	entries := make([]AuditEntry, 0, n)
	prev := GenesisHash
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		e := AuditEntry{
			ID:         int64(i + 1),
			ActorID:    &actor,
			Action:     ActionEscrowFunded,
			EntityType: "escrow_account",
			EntityID:   uuid.New().String(),
			Payload:    json.RawMessage(`{"amount":"1000.0000"}`),
			PrevHash:   prev,
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		}
		e.Hash = e.ComputeHash()
		prev = e.Hash
		entries = append(entries, e)
	}
	return entries
}

func TestComputeHashDeterministic(t *testing.T) {
	entries := chainFixture(t, 1)
	e := entries[0]
	for i := 0; i < 5; i++ {
		if e.ComputeHash() != e.Hash {
			t.Fatal("hash of identical entry changed between computations")
		}
	}
}

func TestComputeHashCommitsToEveryField(t *testing.T) {
	base := chainFixture(t, 1)[0]

	mutate := map[string]func(e *AuditEntry){
		"prev hash": func(e *AuditEntry) { e.PrevHash = "deadbeef" },
		"actor":     func(e *AuditEntry) { e.ActorID = nil },
		"action":    func(e *AuditEntry) { e.Action = ActionEscrowRefunded },
		"entity":    func(e *AuditEntry) { e.EntityID = uuid.New().String() },
		"payload":   func(e *AuditEntry) { e.Payload = json.RawMessage(`{"amount":"9999.0000"}`) },
		"timestamp": func(e *AuditEntry) { e.CreatedAt = e.CreatedAt.Add(time.Nanosecond) },
	}
	for name, fn := range mutate {
		e := base
		fn(&e)
		if e.ComputeHash() == base.Hash {
			t.Fatalf("mutating %s did not change the hash", name)
		}
	}
}

func TestVerifyChainValid(t *testing.T) {
	entries := chainFixture(t, 10)
	report := VerifyChain(entries, GenesisHash)
	if !report.Valid {
		t.Fatalf("expected valid chain, broken at %v", report.BrokenAt)
	}
	if report.Checked != 10 {
		t.Fatalf("expected 10 checked entries, got %d", report.Checked)
	}
}

func TestVerifyChainDetectsTampering(t *testing.T) {
	entries := chainFixture(t, 10)
	// Rewrite a historical payload without recomputing downstream hashes.
	entries[4].Payload = json.RawMessage(`{"amount":"0.0001"}`)

	report := VerifyChain(entries, GenesisHash)
	if report.Valid {
		t.Fatal("expected tampered chain to fail verification")
	}
	if report.BrokenAt == nil || *report.BrokenAt != entries[4].ID {
		t.Fatalf("expected break at id %d, got %v", entries[4].ID, report.BrokenAt)
	}
	if report.Checked != 4 {
		t.Fatalf("expected 4 entries verified before the break, got %d", report.Checked)
	}
}

func TestVerifyChainDetectsResequencing(t *testing.T) {
	entries := chainFixture(t, 5)
	// Swap two entries: every hash is individually correct but the linkage
	// no longer matches.
	entries[1], entries[2] = entries[2], entries[1]

	report := VerifyChain(entries, GenesisHash)
	if report.Valid {
		t.Fatal("expected reordered chain to fail verification")
	}
}

func TestVerifyChainEmptySegment(t *testing.T) {
	report := VerifyChain(nil, GenesisHash)
	if !report.Valid || report.Checked != 0 {
		t.Fatalf("empty segment should verify trivially, got %+v", report)
	}
}

func TestVerifyChainSegmentFromMiddle(t *testing.T) {
	entries := chainFixture(t, 8)
	segment := entries[3:]
	report := VerifyChain(segment, entries[2].Hash)
	if !report.Valid {
		t.Fatalf("expected mid-chain segment to verify, broken at %v", report.BrokenAt)
	}
}

func TestComputeHashNilActorAndPayload(t *testing.T) {
	e := AuditEntry{
		Action:     ActionTrustRecomputed,
		EntityType: "user",
		EntityID:   uuid.New().String(),
		PrevHash:   GenesisHash,
		CreatedAt:  time.Now(),
	}
	// Must not panic and must be stable.
	if e.ComputeHash() != e.ComputeHash() {
		t.Fatal("hash with nil actor/payload is not stable")
	}
}
