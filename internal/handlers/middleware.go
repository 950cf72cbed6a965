package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const operatorIDKey = "operatorId"

// Rejection messages returned with 401.
const (
	msgMissingAuth = "missing Authorization header"
	msgBadAuth     = "invalid Authorization header format"
	msgBadToken    = "invalid or expired token"
)

// requireOperator admits requests carrying a valid operator bearer token and
// stores the operator id on the context.
func (h *Handler) requireOperator(c *gin.Context) {
	token, msg := bearerToken(c.GetHeader("Authorization"))
	if msg != "" {
		h.reject(c, msg)
		return
	}

	id, err := h.services.ParseToken(token)
	if err != nil {
		h.log.Debugw("operator_token_rejected", "path", c.FullPath(), "err", err)
		h.reject(c, msgBadToken)
		return
	}

	c.Set(operatorIDKey, id)
	c.Next()
}

// bearerToken returns the token of an "Authorization: Bearer <token>" header,
// or the rejection message.
func bearerToken(header string) (string, string) {
	if header == "" {
		return "", msgMissingAuth
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", msgBadAuth
	}
	return strings.TrimSpace(token), ""
}

func (h *Handler) reject(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
}

// operatorID is the id set by requireOperator, 0 on public routes.
func operatorID(c *gin.Context) int { return c.GetInt(operatorIDKey) }
