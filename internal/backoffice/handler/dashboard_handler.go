package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/anavi/settlement/internal/repository"
	"github.com/anavi/settlement/internal/service"
	"github.com/anavi/settlement/internal/ws"
)

// DashboardHandler aggregates the operational overview for the back-office.
type DashboardHandler struct {
	escrowRepo *repository.EscrowRepository
	dealRepo   *repository.DealRepository
	payoutRepo *repository.PayoutRepository
	audit      *service.AuditService
	hub        *ws.Hub
}

// NewDashboardHandler creates a DashboardHandler.
func NewDashboardHandler(
	escrowRepo *repository.EscrowRepository,
	dealRepo *repository.DealRepository,
	payoutRepo *repository.PayoutRepository,
	audit *service.AuditService,
	hub *ws.Hub,
) *DashboardHandler {
	return &DashboardHandler{
		escrowRepo: escrowRepo,
		dealRepo:   dealRepo,
		payoutRepo: payoutRepo,
		audit:      audit,
		hub:        hub,
	}
}

// Dashboard handles GET /admin/dashboard.
func (h *DashboardHandler) Dashboard(c *gin.Context) {
	ctx := c.Request.Context()

	funded, released, err := h.escrowRepo.TotalsInCustody(ctx)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	dealCounts, err := h.dealRepo.CountByStatus(ctx)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	payoutCounts, err := h.payoutRepo.CountByStatus(ctx)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	chainLength, err := h.audit.ChainLength(ctx)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	connected := 0
	if h.hub != nil {
		connected = h.hub.ConnectedCount()
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"escrow": gin.H{
			"totalFunded":   funded,
			"totalReleased": released,
			"inCustody":     funded.Sub(released),
		},
		"deals":       dealCounts,
		"payouts":     payoutCounts,
		"auditChain":  gin.H{"length": chainLength},
		"wsConnected": connected,
	})
}
