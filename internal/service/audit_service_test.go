package service

import (
	"log/slog"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/anavi/settlement/internal/domain"
)

type captureBroadcaster struct {
	entries []domain.AuditEntry
}

func (c *captureBroadcaster) BroadcastEntry(e domain.AuditEntry) {
	c.entries = append(c.entries, e)
}

func TestStagedEntriesBroadcastOnlyAfterPublish(t *testing.T) {
	sink := &captureBroadcaster{}
	svc := NewAuditService(nil, nil, slog.Default())
	svc.SetBroadcaster(sink)

	tx := &sqlx.Tx{}
	svc.stage(tx, domain.AuditEntry{ID: 1, Action: domain.ActionEscrowFunded})
	svc.stage(tx, domain.AuditEntry{ID: 2, Action: domain.ActionEscrowReleased})

	if len(sink.entries) != 0 {
		t.Fatalf("entries leaked to the feed before commit: %d", len(sink.entries))
	}

	svc.PublishStaged(tx)
	if len(sink.entries) != 2 {
		t.Fatalf("expected 2 entries after publish, got %d", len(sink.entries))
	}
	if sink.entries[0].ID != 1 || sink.entries[1].ID != 2 {
		t.Fatal("entries must broadcast in append order")
	}

	// Publishing again is a no-op; the staged batch was consumed.
	svc.PublishStaged(tx)
	if len(sink.entries) != 2 {
		t.Fatalf("re-publish duplicated entries: %d", len(sink.entries))
	}
}

func TestStagedEntriesDiscardedOnRollback(t *testing.T) {
	sink := &captureBroadcaster{}
	svc := NewAuditService(nil, nil, slog.Default())
	svc.SetBroadcaster(sink)

	aborted := &sqlx.Tx{}
	committed := &sqlx.Tx{}
	svc.stage(aborted, domain.AuditEntry{ID: 1})
	svc.stage(committed, domain.AuditEntry{ID: 2})

	svc.DiscardStaged(aborted)
	svc.PublishStaged(aborted)
	if len(sink.entries) != 0 {
		t.Fatalf("discarded entries reached the feed: %d", len(sink.entries))
	}

	svc.PublishStaged(committed)
	if len(sink.entries) != 1 || sink.entries[0].ID != 2 {
		t.Fatalf("expected only the committed transaction's entry, got %+v", sink.entries)
	}
}

func TestStageWithoutBroadcasterIsNoop(t *testing.T) {
	svc := NewAuditService(nil, nil, slog.Default())
	tx := &sqlx.Tx{}
	svc.stage(tx, domain.AuditEntry{ID: 1})
	svc.PublishStaged(tx)
}
