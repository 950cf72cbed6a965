package handlers

import (
	"context"
	"errors"
	"net/http"

	"mothstation/internal/hardware"
	"mothstation/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	statusOK     = "ok"
	statusPolled = "polled"

	errPoll           = "status poll incomplete"
	errRelay          = "failed to switch relay"
	errInvalidBodyPre = "invalid body: "
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...any) {
	if err != nil {
		fields := append([]any{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// actionContext detaches hardware actions from the request so a client
// hanging up mid-exposure does not abort the camera or the relay.
func actionContext(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}

type relayRequest struct {
	State string `json:"state" binding:"required"` // on | off
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      Current status snapshot
// @Tags         status
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api/v1/status [get]
func (h *Handler) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      h.services.Status.Snapshot(),
		"power_state": h.services.Power.State(),
	})
}

// @Summary      Last rendered status page
// @Tags         status
// @Produce      png
// @Success      200
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/status/image [get]
func (h *Handler) getStatusImage(c *gin.Context) {
	img, err := h.services.StatusImage()
	if err != nil {
		if errors.Is(err, service.ErrNoStatusImage) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to read status image", "status_image_failed", err)
		return
	}
	c.Data(http.StatusOK, "image/png", img)
}

// @Summary      Cached weather conditions
// @Tags         status
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api/v1/weather [get]
func (h *Handler) getWeather(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Weather.Current())
}

// @Summary      Take a picture now
// @Description  Runs one capture cycle. The frame is only saved when the disk has room and power save is off.
// @Tags         actions
// @Produce      json
// @Success      200  {object}  service.CaptureResult
// @Failure      401  {object}  map[string]string
// @Failure      503  {object}  service.CaptureResult
// @Failure      500  {object}  service.CaptureResult
// @Router       /api/v1/actions/capture [post]
// @Security     BearerAuth
func (h *Handler) capture(c *gin.Context) {
	res, err := h.services.TakePicture(actionContext(c))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, res)
	case errors.Is(err, hardware.ErrCameraUnavailable):
		c.JSON(http.StatusServiceUnavailable, res)
	default:
		c.JSON(http.StatusInternalServerError, res)
	}
}

// @Summary      Refresh the status now
// @Tags         actions
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/actions/poll [post]
// @Security     BearerAuth
func (h *Handler) poll(c *gin.Context) {
	if err := h.services.Poll(actionContext(c)); err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errPoll, "status_poll_request_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   statusPolled,
		"snapshot": h.services.Snapshot(),
	})
}

// @Summary      Reconnect the camera
// @Tags         actions
// @Produce      json
// @Success      200  {object}  map[string]bool
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/actions/reconnect [post]
// @Security     BearerAuth
func (h *Handler) reconnectCamera(c *gin.Context) {
	ok := h.services.ReconnectCamera(actionContext(c))
	c.JSON(http.StatusOK, gin.H{"camera_available": ok})
}

// @Summary      Switch the relay board
// @Description  "on" applies the configured channel defaults unless power save is active; "off" forces all channels off.
// @Tags         actions
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/actions/relay [post]
// @Security     BearerAuth
func (h *Handler) setRelay(c *gin.Context) {
	var req relayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPre + err.Error()})
		return
	}
	if err := h.services.SetRelais(actionContext(c), req.State); err != nil {
		if errors.Is(err, service.ErrInvalidRelayRequest) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, errRelay, "relay_request_failed", err, "state", req.State)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"power_state": h.services.Power.State(),
		"relays":      h.services.Relays(),
	})
}
