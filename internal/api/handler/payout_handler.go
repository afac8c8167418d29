package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/anavi/settlement/internal/api/middleware"
	"github.com/anavi/settlement/internal/service"
)

// PayoutHandler exposes payout records and earnings statements over HTTP.
type PayoutHandler struct {
	payouts *service.PayoutService
}

// NewPayoutHandler creates a PayoutHandler.
func NewPayoutHandler(payouts *service.PayoutService) *PayoutHandler {
	return &PayoutHandler{payouts: payouts}
}

// ByDeal handles GET /api/deals/:dealId/payouts.
func (h *PayoutHandler) ByDeal(c *gin.Context) {
	dealID, err := uuid.Parse(c.Param("dealId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "invalid deal id")
		return
	}
	page, limit, offset := parsePagination(c)
	ps, err := h.payouts.ListByDeal(c.Request.Context(), dealID, limit, offset)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondList(c, ps, page, limit)
}

// Mine handles GET /api/payouts/my?status=.
func (h *PayoutHandler) Mine(c *gin.Context) {
	page, limit, offset := parsePagination(c)
	ps, err := h.payouts.ListByUser(c.Request.Context(), middleware.GetUserID(c), c.Query("status"), limit, offset)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondList(c, ps, page, limit)
}

// Statement handles GET /api/payouts/statement.
func (h *PayoutHandler) Statement(c *gin.Context) {
	statement, err := h.payouts.Statement(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, statement)
}
