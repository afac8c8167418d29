package service

import (
	"testing"

	"github.com/google/uuid"

	"github.com/anavi/settlement/internal/domain"
)

func progression(statuses ...domain.MilestoneStatus) []*domain.Milestone {
	ms := make([]*domain.Milestone, len(statuses))
	for i, st := range statuses {
		ms[i] = &domain.Milestone{ID: uuid.New(), SequenceIndex: i, Status: st}
	}
	return ms
}

func TestNextEligible(t *testing.T) {
	t.Run("empty progression", func(t *testing.T) {
		if next := nextEligible(nil); next != nil {
			t.Fatalf("expected nil, got index %d", next.SequenceIndex)
		}
	})

	t.Run("first pending wins", func(t *testing.T) {
		ms := progression(domain.MilestoneCompleted, domain.MilestonePending, domain.MilestonePending)
		next := nextEligible(ms)
		if next == nil || next.SequenceIndex != 1 {
			t.Fatalf("expected index 1, got %+v", next)
		}
	})

	t.Run("in_progress is still the gate", func(t *testing.T) {
		ms := progression(domain.MilestoneCompleted, domain.MilestoneInProgress, domain.MilestonePending)
		next := nextEligible(ms)
		if next == nil || next.SequenceIndex != 1 {
			t.Fatalf("expected index 1, got %+v", next)
		}
	})

	t.Run("later pending never jumps the queue", func(t *testing.T) {
		ms := progression(domain.MilestonePending, domain.MilestoneCompleted, domain.MilestonePending)
		next := nextEligible(ms)
		if next == nil || next.SequenceIndex != 0 {
			t.Fatalf("expected index 0, got %+v", next)
		}
	})

	t.Run("finished progression", func(t *testing.T) {
		ms := progression(domain.MilestoneCompleted, domain.MilestoneCompleted, domain.MilestoneCompleted)
		if next := nextEligible(ms); next != nil {
			t.Fatalf("expected nil, got index %d", next.SequenceIndex)
		}
	})
}
