package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/anavi/settlement/internal/domain"
	"github.com/anavi/settlement/internal/repository"
)

// TrustService recomputes user trust scores and maintains their append-only
// history. The score itself is a pure function in the domain package; this
// service supplies the inputs and makes the snapshot, the denormalized
// current value, and the audit entry commit atomically.
type TrustService struct {
	db       *sqlx.DB
	userRepo *repository.UserRepository
	audit    *AuditService
	log      *slog.Logger

	// now is swappable in tests.
	now func() time.Time
}

// NewTrustService creates a TrustService.
func NewTrustService(db *sqlx.DB, userRepo *repository.UserRepository, audit *AuditService, log *slog.Logger) *TrustService {
	return &TrustService{
		db:       db,
		userRepo: userRepo,
		audit:    audit,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// TrustView is the caller-facing score summary.
type TrustView struct {
	UserID     uuid.UUID         `json:"userId"`
	Score      int64             `json:"score"`
	Badge      domain.TrustBadge `json:"badge"`
	ComputedAt time.Time         `json:"computedAt"`
}

// Recompute evaluates the trust formula for a user and persists the result.
// The user row is locked for the duration so concurrent recomputes serialize
// and the snapshot history stays ordered.
func (s *TrustService) Recompute(ctx context.Context, userID uuid.UUID, reason string) (view *TrustView, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("trust_service.Recompute: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			s.audit.DiscardStaged(tx)
			_ = tx.Rollback()
		}
	}()

	user, err := s.userRepo.GetByIDForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	prev, err := s.userRepo.LatestTrustSnapshot(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	score, breakdown := domain.ComputeTrustScore(domain.TrustInputs{
		Tier:             user.Tier,
		CompletedDeals:   user.CompletedDeals,
		AverageRating:    user.AverageRating,
		CompliancePassed: user.CompliancePassed,
		ComplianceTotal:  user.ComplianceTotal,
		MemberSince:      user.CreatedAt,
		Now:              now,
	})
	badge := domain.BadgeForScore(score, user.Tier, user.CompliancePassed, user.ComplianceTotal)

	snapshot := &domain.TrustSnapshot{
		ID:        uuid.New(),
		UserID:    userID,
		Score:     score,
		Badge:     badge,
		Breakdown: breakdown,
		Reason:    reason,
		CreatedAt: now,
	}
	if err = s.userRepo.InsertTrustSnapshot(ctx, tx, snapshot); err != nil {
		return nil, err
	}
	if err = s.userRepo.UpdateTrust(ctx, tx, userID, score, badge); err != nil {
		return nil, err
	}
	payload := map[string]any{
		"score":     score,
		"badge":     badge,
		"breakdown": breakdown,
		"reason":    reason,
	}
	if prev != nil {
		payload["previousScore"] = prev.Score
	}
	if _, err = s.audit.AppendTx(ctx, tx, nil, domain.ActionTrustRecomputed, "user", userID.String(), payload); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("trust_service.Recompute: commit: %w", err)
	}
	s.audit.PublishStaged(tx)

	s.log.Info("trust score recomputed", "user_id", userID, "score", score, "badge", badge, "reason", reason)
	return &TrustView{UserID: userID, Score: score, Badge: badge, ComputedAt: now}, nil
}

// Current returns the user's denormalized score without recomputing.
func (s *TrustService) Current(ctx context.Context, userID uuid.UUID) (*TrustView, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &TrustView{
		UserID:     user.ID,
		Score:      user.TrustScore,
		Badge:      user.TrustBadge,
		ComputedAt: user.UpdatedAt,
	}, nil
}

// History returns a user's snapshot history, newest first.
func (s *TrustService) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.TrustSnapshot, error) {
	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.userRepo.ListTrustSnapshots(ctx, userID, limit, offset)
}
