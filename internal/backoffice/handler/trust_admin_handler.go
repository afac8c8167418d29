package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/anavi/settlement/internal/service"
)

// TrustAdminHandler triggers out-of-band trust recomputation.
type TrustAdminHandler struct {
	trust *service.TrustService
}

// NewTrustAdminHandler creates a TrustAdminHandler.
func NewTrustAdminHandler(trust *service.TrustService) *TrustAdminHandler {
	return &TrustAdminHandler{trust: trust}
}

type recomputeRequest struct {
	Reason string `json:"reason" binding:"omitempty,max=200"`
}

// Recompute handles POST /admin/trust/:userId/recompute.
func (h *TrustAdminHandler) Recompute(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "invalid user id")
		return
	}
	var req recomputeRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		respondError(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if req.Reason == "" {
		req.Reason = "admin recompute"
	}

	view, err := h.trust.Recompute(c.Request.Context(), userID, req.Reason)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, view)
}
