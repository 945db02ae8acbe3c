package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edvault/edvault-api/internal/dto"
	"github.com/edvault/edvault-api/internal/models"
	"github.com/edvault/edvault-api/internal/service"
	appErrors "github.com/edvault/edvault-api/pkg/errors"
	"github.com/edvault/edvault-api/pkg/response"
)

type approvalWorkflowService interface {
	Upload(ctx context.Context, meta dto.UploadContentRequest, upload service.ContentUpload, actor *models.JWTClaims) (*models.ContentItem, error)
	ListPending(ctx context.Context, filter dto.ContentFilter, actor *models.JWTClaims) ([]models.ContentItem, error)
	Approve(ctx context.Context, id string, req dto.ApproveContentRequest, actor *models.JWTClaims) (*models.ContentItem, error)
	Reject(ctx context.Context, id string, req dto.RejectContentRequest, actor *models.JWTClaims) (*models.ContentItem, error)
	SetPremium(ctx context.Context, id string, req dto.SetPremiumRequest, actor *models.JWTClaims) (*models.ContentItem, error)
	Delete(ctx context.Context, id string, actor *models.JWTClaims) error
}

// ContentHandler exposes the upload and approval workflow endpoints.
type ContentHandler struct {
	service        approvalWorkflowService
	maxUploadBytes int64
}

// NewContentHandler creates a new handler.
func NewContentHandler(svc approvalWorkflowService, maxUploadBytes int64) *ContentHandler {
	return &ContentHandler{service: svc, maxUploadBytes: maxUploadBytes}
}

// Upload godoc
// @Summary Upload content
// @Description Upload a new content artifact; it enters the review queue as pending
// @Tags Content
// @Accept multipart/form-data
// @Produce json
// @Param courseId formData string true "Course id"
// @Param unitId formData string true "Unit id"
// @Param kind formData string true "Content kind"
// @Param file formData file true "Artifact"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /content [post]
func (h *ContentHandler) Upload(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	var meta dto.UploadContentRequest
	if err := c.ShouldBind(&meta); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid upload metadata"))
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unreadable upload"))
		return
	}
	defer file.Close() //nolint:errcheck

	item, err := h.service.Upload(c.Request.Context(), meta, service.ContentUpload{
		Filename: fileHeader.Filename,
		Size:     fileHeader.Size,
		MimeType: fileHeader.Header.Get("Content-Type"),
		Content:  file,
	}, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, item)
}

// ListPending godoc
// @Summary List pending content
// @Description Review queue of items awaiting approval
// @Tags Content
// @Produce json
// @Param courseId query string false "Course filter"
// @Param kind query string false "Kind filter"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /content/pending [get]
func (h *ContentHandler) ListPending(c *gin.Context) {
	filter := dto.ContentFilter{
		CourseID: c.Query("courseId"),
		Kind:     models.ContentKind(c.Query("kind")),
		Limit:    queryInt(c, "limit", 50),
		Offset:   queryInt(c, "offset", 0),
	}

	items, err := h.service.ListPending(c.Request.Context(), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, items, nil)
}

// Approve godoc
// @Summary Approve content
// @Description Approve a pending item, optionally flagging it premium
// @Tags Content
// @Accept json
// @Produce json
// @Param id path string true "Content item id"
// @Param payload body dto.ApproveContentRequest true "Approval payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /content/{id}/approve [post]
func (h *ContentHandler) Approve(c *gin.Context) {
	var req dto.ApproveContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid approval payload"))
		return
	}

	item, err := h.service.Approve(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, item, nil)
}

// Reject godoc
// @Summary Reject content
// @Description Reject a pending item with reviewer notes
// @Tags Content
// @Accept json
// @Produce json
// @Param id path string true "Content item id"
// @Param payload body dto.RejectContentRequest true "Rejection payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /content/{id}/reject [post]
func (h *ContentHandler) Reject(c *gin.Context) {
	var req dto.RejectContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid rejection payload"))
		return
	}

	item, err := h.service.Reject(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, item, nil)
}

// SetPremium godoc
// @Summary Update premium flag
// @Description Toggle the premium flag on an approved item
// @Tags Content
// @Accept json
// @Produce json
// @Param id path string true "Content item id"
// @Param payload body dto.SetPremiumRequest true "Premium payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /content/{id}/premium [patch]
func (h *ContentHandler) SetPremium(c *gin.Context) {
	var req dto.SetPremiumRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid premium payload"))
		return
	}

	item, err := h.service.SetPremium(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, item, nil)
}

// Delete godoc
// @Summary Delete content
// @Description Soft-delete a content item
// @Tags Content
// @Produce json
// @Param id path string true "Content item id"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /content/{id} [delete]
func (h *ContentHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
