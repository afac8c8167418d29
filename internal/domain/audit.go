package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// GenesisHash is the prev_hash value of the first audit entry in the chain.
const GenesisHash = "0"

// AuditEntry is one immutable record in the hash-chained audit log. Entries
// are totally ordered by their BIGSERIAL id; each entry's hash commits to the
// previous entry's hash, so tampering with any historical row breaks
// verification of everything after it.
type AuditEntry struct {
	ID         int64           `db:"id" json:"id"`
	ActorID    *uuid.UUID      `db:"actor_id" json:"actorId,omitempty"`
	Action     string          `db:"action" json:"action"`
	EntityType string          `db:"entity_type" json:"entityType"`
	EntityID   string          `db:"entity_id" json:"entityId"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	PrevHash   string          `db:"prev_hash" json:"prevHash"`
	Hash       string          `db:"hash" json:"hash"`
	CreatedAt  time.Time       `db:"created_at" json:"createdAt"`
}

// Audit actions recorded by the settlement services. Kept as constants so
// integrity checks and back-office filters share one vocabulary.
const (
	ActionEscrowCreated    = "escrow.account_created"
	ActionEscrowFunded     = "escrow.funded"
	ActionEscrowReleased   = "escrow.released"
	ActionEscrowRefunded   = "escrow.refunded"
	ActionMilestoneSetup   = "milestone.setup"
	ActionMilestoneStarted = "milestone.started"
	ActionMilestoneDone    = "milestone.completed"
	ActionPayoutCreated    = "payout.created"
	ActionPayoutProcessing = "payout.processing"
	ActionPayoutCompleted  = "payout.completed"
	ActionPayoutFailed     = "payout.failed"
	ActionTrustRecomputed  = "trust.recomputed"
)

// hashEnvelope fixes the field order of the hashed representation. The JSON
// encoding of a struct is deterministic (fields marshal in declaration
// order), which makes the chain reproducible across processes.
type hashEnvelope struct {
	PrevHash   string          `json:"prevHash"`
	ActorID    string          `json:"actorId"`
	Action     string          `json:"action"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  string          `json:"createdAt"`
}

// ComputeHash returns the SHA-256 hex digest of the entry's canonical form.
// The timestamp is normalised to UTC RFC3339Nano; a nil actor hashes as the
// empty string. Payload bytes are included verbatim, so the stored payload
// must be the exact bytes that were hashed.
func (e *AuditEntry) ComputeHash() string {
	actor := ""
	if e.ActorID != nil {
		actor = e.ActorID.String()
	}
	payload := e.Payload
	if payload == nil {
		payload = json.RawMessage("null")
	}
	envelope := hashEnvelope{
		PrevHash:   e.PrevHash,
		ActorID:    actor,
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Payload:    payload,
		CreatedAt:  e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	// Marshal of hashEnvelope cannot fail: every field is a string or raw JSON.
	data, _ := json.Marshal(envelope)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the entry's hash against the given predecessor hash.
// Returns false when either the linkage or the content digest is wrong.
func (e *AuditEntry) Verify(prevHash string) bool {
	return e.PrevHash == prevHash && e.Hash == e.ComputeHash()
}

// ChainReport is the result of verifying a contiguous chain segment.
type ChainReport struct {
	Valid    bool   `json:"valid"`
	Checked  int    `json:"checked"`
	BrokenAt *int64 `json:"brokenAt,omitempty"`
	FirstID  int64  `json:"firstId"`
	LastID   int64  `json:"lastId"`
}

// VerifyChain walks entries in ascending id order, confirming each entry's
// linkage and content hash. startPrev is the expected prev_hash of the first
// entry (GenesisHash when verifying from the head of the chain).
func VerifyChain(entries []AuditEntry, startPrev string) ChainReport {
	report := ChainReport{Valid: true}
	if len(entries) > 0 {
		report.FirstID = entries[0].ID
		report.LastID = entries[len(entries)-1].ID
	}
	prev := startPrev
	for i := range entries {
		if !entries[i].Verify(prev) {
			id := entries[i].ID
			report.Valid = false
			report.BrokenAt = &id
			return report
		}
		prev = entries[i].Hash
		report.Checked++
	}
	return report
}
