package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/anavi/settlement/internal/service"
)

// TrustHandler exposes trust scores and their history over HTTP.
type TrustHandler struct {
	trust *service.TrustService
}

// NewTrustHandler creates a TrustHandler.
func NewTrustHandler(trust *service.TrustService) *TrustHandler {
	return &TrustHandler{trust: trust}
}

// Score handles GET /api/trust/:userId.
func (h *TrustHandler) Score(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "invalid user id")
		return
	}
	view, err := h.trust.Current(c.Request.Context(), userID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, view)
}

// History handles GET /api/trust/:userId/history.
func (h *TrustHandler) History(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "invalid user id")
		return
	}
	page, limit, offset := parsePagination(c)
	snaps, err := h.trust.History(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondList(c, snaps, page, limit)
}
