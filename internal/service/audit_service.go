package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/anavi/settlement/internal/domain"
	"github.com/anavi/settlement/internal/repository"
)

// EntryBroadcaster receives every committed audit entry. Implemented by the
// ws hub; injected after construction to avoid an import cycle.
type EntryBroadcaster interface {
	BroadcastEntry(e domain.AuditEntry)
}

// AuditService is the only writer of the hash-chained audit log. Append is
// the sole mutator; verification and trail reads are the only other surface.
//
// Serialisation of appends lives entirely in repo.LockChain: its advisory
// lock is transaction-scoped, so a second in-process mutex around it would
// deadlock as soon as one transaction appends twice while another waits.
type AuditService struct {
	db   *sqlx.DB
	repo *repository.AuditRepository
	log  *slog.Logger

	broadcaster EntryBroadcaster

	// staged holds entries written but not yet committed, keyed by the
	// transaction that wrote them. They reach the broadcaster only via
	// PublishStaged, after the caller commits.
	stagedMu sync.Mutex
	staged   map[*sqlx.Tx][]domain.AuditEntry
}

// NewAuditService creates an AuditService.
func NewAuditService(db *sqlx.DB, repo *repository.AuditRepository, log *slog.Logger) *AuditService {
	return &AuditService{db: db, repo: repo, log: log, staged: make(map[*sqlx.Tx][]domain.AuditEntry)}
}

// SetBroadcaster injects the live-feed sink. Safe to leave nil (no feed).
func (s *AuditService) SetBroadcaster(b EntryBroadcaster) {
	s.broadcaster = b
}

// AppendTx appends one entry to the chain inside the caller's transaction,
// so the audited mutation and its audit record commit together or not at
// all. The payload is marshalled once and hashed as stored.
func (s *AuditService) AppendTx(ctx context.Context, tx *sqlx.Tx, actorID *uuid.UUID, action, entityType, entityID string, payload any) (*domain.AuditEntry, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("audit_service.AppendTx: marshal payload: %w", err)
	}

	if err := s.repo.LockChain(ctx, tx); err != nil {
		return nil, err
	}
	prev, err := s.repo.GetHeadHash(ctx, tx)
	if err != nil {
		return nil, err
	}

	entry := &domain.AuditEntry{
		ActorID:    actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    data,
		PrevHash:   prev,
		CreatedAt:  time.Now().UTC(),
	}
	entry.Hash = entry.ComputeHash()

	if err := s.repo.Insert(ctx, tx, entry); err != nil {
		return nil, err
	}

	s.stage(tx, *entry)
	return entry, nil
}

// stage parks an entry for broadcast once tx commits. No-op without a sink.
func (s *AuditService) stage(tx *sqlx.Tx, e domain.AuditEntry) {
	if s.broadcaster == nil {
		return
	}
	s.stagedMu.Lock()
	s.staged[tx] = append(s.staged[tx], e)
	s.stagedMu.Unlock()
}

// PublishStaged broadcasts the entries written under tx. Callers invoke it
// after a successful commit; broadcasting earlier would leak entries a
// rollback then erases.
func (s *AuditService) PublishStaged(tx *sqlx.Tx) {
	s.stagedMu.Lock()
	entries := s.staged[tx]
	delete(s.staged, tx)
	s.stagedMu.Unlock()
	for _, e := range entries {
		s.broadcaster.BroadcastEntry(e)
	}
}

// DiscardStaged drops entries staged under tx. Callers invoke it on rollback.
func (s *AuditService) DiscardStaged(tx *sqlx.Tx) {
	s.stagedMu.Lock()
	delete(s.staged, tx)
	s.stagedMu.Unlock()
}

// Append records an entry in its own transaction, for actions that have no
// surrounding database mutation (e.g. trust reads triggering recompute).
func (s *AuditService) Append(ctx context.Context, actorID *uuid.UUID, action, entityType, entityID string, payload any) (entry *domain.AuditEntry, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("audit_service.Append: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			s.DiscardStaged(tx)
			_ = tx.Rollback()
		}
	}()

	entry, err = s.AppendTx(ctx, tx, actorID, action, entityType, entityID, payload)
	if err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("audit_service.Append: commit: %w", err)
	}
	s.PublishStaged(tx)
	return entry, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Trail reads
// ──────────────────────────────────────────────────────────────────────────────

// TrailPage is one page of the audit trail. NextCursor is 0 when the trail
// is exhausted. Entries carry their hashes so a client can verify the
// segment independently.
type TrailPage struct {
	Entries    []domain.AuditEntry `json:"entries"`
	NextCursor int64               `json:"nextCursor"`
}

// Trail returns entries newest-first, filtered and cursor-paginated.
func (s *AuditService) Trail(ctx context.Context, cursor int64, limit int, filter repository.TrailFilter) (*TrailPage, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	entries, err := s.repo.ListBefore(ctx, cursor, limit, filter)
	if err != nil {
		return nil, err
	}
	page := &TrailPage{Entries: entries}
	if len(entries) == limit {
		page.NextCursor = entries[len(entries)-1].ID
	}
	return page, nil
}

// ChainLength returns the number of entries in the chain.
func (s *AuditService) ChainLength(ctx context.Context) (int64, error) {
	return s.repo.Count(ctx)
}

// ──────────────────────────────────────────────────────────────────────────────
// Verification
// ──────────────────────────────────────────────────────────────────────────────

// verifyBatchSize bounds how many entries one verification query loads.
const verifyBatchSize = 1000

// VerifyChain walks the chain from fromID (1 = genesis) through toID (0 =
// head) in batches and reports the first break, if any.
func (s *AuditService) VerifyChain(ctx context.Context, fromID, toID int64) (*domain.ChainReport, error) {
	if fromID < 1 {
		fromID = 1
	}
	prev, err := s.repo.PrevHashOf(ctx, fromID)
	if err != nil {
		return nil, err
	}

	total := domain.ChainReport{Valid: true, FirstID: fromID}
	cursor := fromID
	for {
		entries, err := s.repo.ListRange(ctx, cursor, toID, verifyBatchSize)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			break
		}
		report := domain.VerifyChain(entries, prev)
		total.Checked += report.Checked
		total.LastID = report.LastID
		if !report.Valid {
			total.Valid = false
			total.BrokenAt = report.BrokenAt
			s.log.Error("audit chain verification failed",
				"broken_at", *report.BrokenAt, "checked", total.Checked)
			return &total, nil
		}
		prev = entries[len(entries)-1].Hash
		cursor = entries[len(entries)-1].ID + 1
		if len(entries) < verifyBatchSize {
			break
		}
	}
	return &total, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Export
// ──────────────────────────────────────────────────────────────────────────────

// ExportCSV streams the trail for an entity (or everything when the filter
// is empty) as CSV, oldest first.
func (s *AuditService) ExportCSV(ctx context.Context, w io.Writer, filter repository.TrailFilter) error {
	cw := csv.NewWriter(w)
	header := []string{"id", "created_at", "actor_id", "action", "entity_type", "entity_id", "payload", "prev_hash", "hash"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("audit_service.ExportCSV: %w", err)
	}

	cursor := int64(1)
	for {
		entries, err := s.repo.ListRange(ctx, cursor, 0, verifyBatchSize)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if filter.EntityType != "" && e.EntityType != filter.EntityType {
				continue
			}
			if filter.EntityID != "" && e.EntityID != filter.EntityID {
				continue
			}
			if filter.Action != "" && e.Action != filter.Action {
				continue
			}
			actor := ""
			if e.ActorID != nil {
				actor = e.ActorID.String()
			}
			row := []string{
				strconv.FormatInt(e.ID, 10),
				e.CreatedAt.UTC().Format(time.RFC3339Nano),
				actor,
				e.Action,
				e.EntityType,
				e.EntityID,
				string(e.Payload),
				e.PrevHash,
				e.Hash,
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("audit_service.ExportCSV: %w", err)
			}
		}
		if len(entries) < verifyBatchSize {
			break
		}
		cursor = entries[len(entries)-1].ID + 1
	}
	cw.Flush()
	return cw.Error()
}
