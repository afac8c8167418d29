package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/anavi/settlement/internal/api/middleware"
	"github.com/anavi/settlement/internal/domain"
	"github.com/anavi/settlement/internal/repository"
)

// DealHandler exposes deal and participant management over HTTP.
type DealHandler struct {
	dealRepo *repository.DealRepository
}

// NewDealHandler creates a DealHandler.
func NewDealHandler(dealRepo *repository.DealRepository) *DealHandler {
	return &DealHandler{dealRepo: dealRepo}
}

type createDealRequest struct {
	Title    string `json:"title" binding:"required,min=3,max=200"`
	Currency string `json:"currency" binding:"required,len=3"`
}

// Create handles POST /api/deals.
func (h *DealHandler) Create(c *gin.Context) {
	var req createDealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	now := time.Now().UTC()
	deal := &domain.Deal{
		ID:        uuid.New(),
		Title:     req.Title,
		Currency:  req.Currency,
		Status:    domain.DealActive,
		CreatedBy: middleware.GetUserID(c),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.dealRepo.Create(c.Request.Context(), deal); err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, deal)
}

// Get handles GET /api/deals/:dealId.
func (h *DealHandler) Get(c *gin.Context) {
	dealID, err := uuid.Parse(c.Param("dealId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "invalid deal id")
		return
	}
	deal, err := h.dealRepo.GetByID(c.Request.Context(), dealID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, deal)
}

// List handles GET /api/deals?status=.
func (h *DealHandler) List(c *gin.Context) {
	page, limit, offset := parsePagination(c)
	deals, err := h.dealRepo.List(c.Request.Context(), c.Query("status"), limit, offset)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondList(c, deals, page, limit)
}

type addParticipantRequest struct {
	UserID                uuid.UUID       `json:"userId" binding:"required"`
	RelationshipID        *uuid.UUID      `json:"relationshipId"`
	Role                  string          `json:"role" binding:"required,oneof=originator introducer advisor buyer seller"`
	AttributionPercentage decimal.Decimal `json:"attributionPercentage"`
}

// AddParticipant handles POST /api/deals/:dealId/participants. The summed
// attribution check happens at release time; here only the single value is
// validated.
func (h *DealHandler) AddParticipant(c *gin.Context) {
	dealID, err := uuid.Parse(c.Param("dealId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "invalid deal id")
		return
	}
	var req addParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if req.AttributionPercentage.IsNegative() || req.AttributionPercentage.GreaterThan(decimal.NewFromInt(100)) {
		respondError(c, http.StatusBadRequest, "bad_request", "attribution percentage must be in [0, 100]")
		return
	}
	if _, err := h.dealRepo.GetByID(c.Request.Context(), dealID); err != nil {
		respondDomainError(c, err)
		return
	}

	p := &domain.DealParticipant{
		ID:                    uuid.New(),
		DealID:                dealID,
		UserID:                req.UserID,
		RelationshipID:        req.RelationshipID,
		Role:                  domain.ParticipantRole(req.Role),
		AttributionPercentage: req.AttributionPercentage,
		CreatedAt:             time.Now().UTC(),
	}
	if err := h.dealRepo.AddParticipant(c.Request.Context(), p); err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, p)
}

// Participants handles GET /api/deals/:dealId/participants.
func (h *DealHandler) Participants(c *gin.Context) {
	dealID, err := uuid.Parse(c.Param("dealId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "invalid deal id")
		return
	}
	ps, err := h.dealRepo.GetParticipants(c.Request.Context(), dealID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, ps)
}
