package handler

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edvault/edvault-api/internal/service"
	"github.com/edvault/edvault-api/pkg/response"
)

// MediaHandler streams artifact bytes for valid session tokens.
type MediaHandler struct {
	service *service.MediaService
	metrics *service.MetricsService
}

// NewMediaHandler creates a new handler.
func NewMediaHandler(svc *service.MediaService, metrics *service.MetricsService) *MediaHandler {
	return &MediaHandler{service: svc, metrics: metrics}
}

// Fetch godoc
// @Summary Fetch media artifact
// @Description Stream the artifact bound to a signed access token; the session is re-validated on every request
// @Tags Media
// @Produce octet-stream
// @Param token path string true "Signed access token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Router /media/{token} [get]
func (h *MediaHandler) Fetch(c *gin.Context) {
	start := time.Now()
	payload, err := h.service.Fetch(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer payload.Reader.Close() //nolint:errcheck

	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.Header("Content-Type", payload.MimeType)
	c.Status(200)
	_, _ = io.Copy(c.Writer, payload.Reader)
	h.metrics.ObserveMediaFetch(time.Since(start))
}
