package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/anavi/settlement/internal/api/middleware"
	"github.com/anavi/settlement/internal/service"
)

// MilestoneHandler exposes the milestone progression over HTTP.
type MilestoneHandler struct {
	milestones *service.MilestoneService
}

// NewMilestoneHandler creates a MilestoneHandler.
func NewMilestoneHandler(milestones *service.MilestoneService) *MilestoneHandler {
	return &MilestoneHandler{milestones: milestones}
}

// List handles GET /api/deals/:dealId/milestones.
func (h *MilestoneHandler) List(c *gin.Context) {
	dealID, err := uuid.Parse(c.Param("dealId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "invalid deal id")
		return
	}
	ms, err := h.milestones.List(c.Request.Context(), dealID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, ms)
}

// Next handles GET /api/deals/:dealId/milestones/next.
func (h *MilestoneHandler) Next(c *gin.Context) {
	dealID, err := uuid.Parse(c.Param("dealId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "invalid deal id")
		return
	}
	m, err := h.milestones.Next(c.Request.Context(), dealID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, m)
}

type setupMilestonesRequest struct {
	Amounts []decimal.Decimal `json:"amounts" binding:"omitempty,len=6"`
}

// Setup handles POST /api/deals/:dealId/milestones/setup.
func (h *MilestoneHandler) Setup(c *gin.Context) {
	dealID, err := uuid.Parse(c.Param("dealId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "invalid deal id")
		return
	}
	var req setupMilestonesRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		respondError(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	ms, err := h.milestones.Setup(c.Request.Context(), middleware.GetUserID(c), dealID, req.Amounts)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, ms)
}

// Start handles POST /api/deals/:dealId/milestones/:milestoneId/start.
func (h *MilestoneHandler) Start(c *gin.Context) {
	dealID, err := uuid.Parse(c.Param("dealId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "invalid deal id")
		return
	}
	milestoneID, err := uuid.Parse(c.Param("milestoneId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "invalid milestone id")
		return
	}
	if err := h.milestones.Start(c.Request.Context(), middleware.GetUserID(c), dealID, milestoneID); err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"started": true})
}

// Complete handles POST /api/deals/:dealId/milestones/:milestoneId/complete.
// On a payout-trigger milestone this releases escrow funds and creates the
// payout records in the same transaction.
func (h *MilestoneHandler) Complete(c *gin.Context) {
	dealID, err := uuid.Parse(c.Param("dealId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "invalid deal id")
		return
	}
	milestoneID, err := uuid.Parse(c.Param("milestoneId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "invalid milestone id")
		return
	}

	res, err := h.milestones.Complete(c.Request.Context(), middleware.GetUserID(c), dealID, milestoneID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, res)
}
