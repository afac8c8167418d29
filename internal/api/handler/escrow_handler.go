package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/anavi/settlement/internal/api/middleware"
	"github.com/anavi/settlement/internal/domain"
	"github.com/anavi/settlement/internal/service"
)

// EscrowHandler exposes the escrow account lifecycle over HTTP.
type EscrowHandler struct {
	escrow *service.EscrowService
}

// NewEscrowHandler creates an EscrowHandler.
func NewEscrowHandler(escrow *service.EscrowService) *EscrowHandler {
	return &EscrowHandler{escrow: escrow}
}

type createEscrowRequest struct {
	Currency string `json:"currency" binding:"omitempty,len=3"`
}

// CreateAccount handles POST /api/deals/:dealId/escrow.
func (h *EscrowHandler) CreateAccount(c *gin.Context) {
	dealID, err := uuid.Parse(c.Param("dealId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "invalid deal id")
		return
	}
	var req createEscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		respondError(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	acct, err := h.escrow.CreateAccount(c.Request.Context(), middleware.GetUserID(c), dealID, req.Currency)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, acct)
}

// notConfiguredEscrow is the status view for a deal without an escrow
// account. A missing account is an answer, not an error.
func notConfiguredEscrow(dealID uuid.UUID) gin.H {
	return gin.H{
		"dealId":         dealID,
		"status":         domain.EscrowNotConfigured,
		"fundedAmount":   decimal.Zero,
		"releasedAmount": decimal.Zero,
	}
}

// Status handles GET /api/deals/:dealId/escrow.
func (h *EscrowHandler) Status(c *gin.Context) {
	dealID, err := uuid.Parse(c.Param("dealId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "invalid deal id")
		return
	}
	acct, err := h.escrow.Status(c.Request.Context(), dealID)
	if err != nil {
		if errors.Is(err, domain.ErrEscrowNotFound) {
			respondSuccess(c, http.StatusOK, notConfiguredEscrow(dealID))
			return
		}
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, acct)
}

type fundRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

// Fund handles POST /api/deals/:dealId/escrow/fund.
func (h *EscrowHandler) Fund(c *gin.Context) {
	dealID, err := uuid.Parse(c.Param("dealId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "invalid deal id")
		return
	}
	var req fundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	acct, err := h.escrow.Fund(c.Request.Context(), middleware.GetUserID(c), dealID, req.Amount)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, acct)
}

// Refund handles POST /api/deals/:dealId/escrow/refund.
func (h *EscrowHandler) Refund(c *gin.Context) {
	dealID, err := uuid.Parse(c.Param("dealId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "invalid deal id")
		return
	}
	refunded, err := h.escrow.Refund(c.Request.Context(), middleware.GetUserID(c), dealID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"refunded": refunded})
}

// Transactions handles GET /api/deals/:dealId/escrow/transactions.
func (h *EscrowHandler) Transactions(c *gin.Context) {
	dealID, err := uuid.Parse(c.Param("dealId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "invalid deal id")
		return
	}
	page, limit, offset := parsePagination(c)
	txns, err := h.escrow.Transactions(c.Request.Context(), dealID, limit, offset)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondList(c, txns, page, limit)
}
