package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/anavi/settlement/internal/domain"
)

// respondSuccess writes {"success": true, "data": data}.
func respondSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

// respondError writes {"success": false, "error": msg, "code": code}.
func respondError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   msg,
		"code":    code,
	})
}

// respondDomainError maps domain errors onto admin-facing status codes.
func respondDomainError(c *gin.Context, err error) {
	switch {
	case domain.IsNotFound(err):
		respondError(c, http.StatusNotFound, "not_found", err.Error())
	case domain.IsConflict(err):
		respondError(c, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, domain.ErrProcessorUnavailable):
		respondError(c, http.StatusBadGateway, "processor_unavailable", err.Error())
	default:
		respondError(c, http.StatusInternalServerError, "internal", "internal server error")
	}
}

// adminID returns the authenticated admin's UUID from the gin context.
func adminID(c *gin.Context) uuid.UUID {
	v, _ := c.Get("userID")
	s, _ := v.(string)
	id, _ := uuid.Parse(s)
	return id
}

// parsePagination extracts ?page= and ?limit= with admin-sized bounds.
func parsePagination(c *gin.Context) (page, limit, offset int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}
	return page, limit, (page - 1) * limit
}
