package handler

import (
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edvault/edvault-api/internal/dto"
	"github.com/edvault/edvault-api/internal/models"
	"github.com/edvault/edvault-api/internal/service"
	appErrors "github.com/edvault/edvault-api/pkg/errors"
	"github.com/edvault/edvault-api/pkg/response"
)

type exportOpener interface {
	Open(filename string) (*os.File, error)
}

// AuditHandler exposes the trail query and export endpoints.
type AuditHandler struct {
	service *service.AuditService
	files   exportOpener
}

// NewAuditHandler creates a new handler.
func NewAuditHandler(svc *service.AuditService, files exportOpener) *AuditHandler {
	return &AuditHandler{service: svc, files: files}
}

// ListEvents godoc
// @Summary Query audit trail
// @Description List audit events newest first with optional filters
// @Tags Audit
// @Produce json
// @Param eventType query string false "Event type filter"
// @Param viewerId query string false "Viewer filter"
// @Param sessionId query string false "Session filter"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /audit/events [get]
func (h *AuditHandler) ListEvents(c *gin.Context) {
	filter := models.AuditFilter{
		EventType: c.Query("eventType"),
		ViewerID:  c.Query("viewerId"),
		SessionID: c.Query("sessionId"),
		Limit:     queryInt(c, "limit", 100),
		Offset:    queryInt(c, "offset", 0),
	}
	if raw := c.Query("since"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.Since = &ts
		}
	}
	if raw := c.Query("until"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.Until = &ts
		}
	}

	events, err := h.service.Query(c.Request.Context(), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, events, nil)
}

// RequestExport godoc
// @Summary Request audit export
// @Description Queue a CSV export of the selected audit slice
// @Tags Audit
// @Accept json
// @Produce json
// @Param payload body dto.AuditExportRequest true "Export selection"
// @Success 202 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /audit/exports [post]
func (h *AuditHandler) RequestExport(c *gin.Context) {
	var req dto.AuditExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export payload"))
		return
	}

	job, err := h.service.RequestExport(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Accepted(c, job)
}

// GetExport godoc
// @Summary Export status
// @Description Poll an export job; completed jobs carry a signed download URL
// @Tags Audit
// @Produce json
// @Param id path string true "Export job id"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /audit/exports/{id} [get]
func (h *AuditHandler) GetExport(c *gin.Context) {
	job, err := h.service.GetExport(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// DownloadExport godoc
// @Summary Download export file
// @Description Stream a completed export CSV against a signed download token
// @Tags Audit
// @Produce text/csv
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /audit/export-files/{token} [get]
func (h *AuditHandler) DownloadExport(c *gin.Context) {
	filename, err := h.service.ResolveDownload(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}

	file, err := h.files.Open(filename)
	if err != nil {
		response.Error(c, appErrors.ErrNotFound)
		return
	}
	defer file.Close() //nolint:errcheck

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, file)
}
