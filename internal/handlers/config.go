package handlers

import (
	"errors"
	"net/http"

	"mothstation/internal/service"

	"github.com/gin-gonic/gin"
)

const redacted = "********"

// secretKeys are never returned by GET /api/v1/config.
var secretKeys = []string{"auth.signing_key"}

// @Summary      Current configuration
// @Tags         config
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/config [get]
// @Security     BearerAuth
func (h *Handler) getConfig(c *gin.Context) {
	settings := h.services.Configuration.Settings()
	for _, key := range secretKeys {
		if _, ok := settings[key]; ok {
			settings[key] = redacted
		}
	}
	c.JSON(http.StatusOK, settings)
}

// @Summary      Update configuration
// @Description  Partial update with flat keys, e.g. {"capture_interval":600,"relais_conf.3":false}. Out-of-range values are reset to defaults and reported with accepted=false. Task intervals apply after the next restart.
// @Tags         config
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/config [put]
// @Security     BearerAuth
func (h *Handler) updateConfig(c *gin.Context) {
	var values map[string]any
	if err := c.ShouldBindJSON(&values); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPre + err.Error()})
		return
	}
	if len(values) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no configuration values given"})
		return
	}

	accepted, err := h.services.Configuration.Update(c.Request.Context(), values)
	if err != nil {
		if errors.Is(err, service.ErrConfigRejected) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to save configuration", "config_update_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accepted": accepted})
}
