package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/anavi/settlement/internal/repository"
	"github.com/anavi/settlement/internal/service"
)

// AuditHandler exposes the audit trail over HTTP. Entries are returned with
// their hashes so a caller can verify the chain segment it received without
// trusting the server.
type AuditHandler struct {
	audit *service.AuditService
}

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(audit *service.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// Trail handles GET /api/audit?entityType=&entityId=&action=&cursor=&limit=.
func (h *AuditHandler) Trail(c *gin.Context) {
	cursor, err := strconv.ParseInt(c.DefaultQuery("cursor", "0"), 10, 64)
	if err != nil || cursor < 0 {
		respondError(c, http.StatusBadRequest, "bad_request", "invalid cursor")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	page, err := h.audit.Trail(c.Request.Context(), cursor, limit, repository.TrailFilter{
		EntityType: c.Query("entityType"),
		EntityID:   c.Query("entityId"),
		Action:     c.Query("action"),
	})
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, page)
}
