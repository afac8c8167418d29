package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/anavi/settlement/internal/domain"
	"github.com/anavi/settlement/internal/service"
)

// PayoutAdminHandler drives the payout settlement queue.
type PayoutAdminHandler struct {
	payouts *service.PayoutService
}

// NewPayoutAdminHandler creates a PayoutAdminHandler.
func NewPayoutAdminHandler(payouts *service.PayoutService) *PayoutAdminHandler {
	return &PayoutAdminHandler{payouts: payouts}
}

// List handles GET /admin/payouts?status=pending.
func (h *PayoutAdminHandler) List(c *gin.Context) {
	status := domain.PayoutStatus(c.DefaultQuery("status", string(domain.PayoutPending)))
	switch status {
	case domain.PayoutPending, domain.PayoutProcessing, domain.PayoutCompleted, domain.PayoutFailed:
	default:
		respondError(c, http.StatusBadRequest, "bad_request", "unknown payout status")
		return
	}
	_, limit, offset := parsePagination(c)
	ps, err := h.payouts.ListByStatus(c.Request.Context(), status, limit, offset)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, ps)
}

// Detail handles GET /admin/payouts/:id.
func (h *PayoutAdminHandler) Detail(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "invalid payout id")
		return
	}
	p, err := h.payouts.Get(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, p)
}

// Approve handles POST /admin/payouts/:id/approve (pending → processing).
func (h *PayoutAdminHandler) Approve(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "invalid payout id")
		return
	}
	if err := h.payouts.Approve(c.Request.Context(), adminID(c), id); err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": domain.PayoutProcessing})
}

// Complete handles POST /admin/payouts/:id/complete (processing → completed).
func (h *PayoutAdminHandler) Complete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "invalid payout id")
		return
	}
	if err := h.payouts.MarkCompleted(c.Request.Context(), adminID(c), id); err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": domain.PayoutCompleted})
}

type failPayoutRequest struct {
	Reason string `json:"reason" binding:"required,min=3,max=500"`
}

// Fail handles POST /admin/payouts/:id/fail (processing → failed).
func (h *PayoutAdminHandler) Fail(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "invalid payout id")
		return
	}
	var req failPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if err := h.payouts.MarkFailed(c.Request.Context(), adminID(c), id, req.Reason); err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": domain.PayoutFailed})
}
