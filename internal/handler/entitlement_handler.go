package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edvault/edvault-api/internal/models"
	"github.com/edvault/edvault-api/internal/service"
	appErrors "github.com/edvault/edvault-api/pkg/errors"
	"github.com/edvault/edvault-api/pkg/response"
)

type entitlementResolver interface {
	Resolve(ctx context.Context, viewerID, contentItemID string) (models.Entitlement, error)
}

// EntitlementHandler exposes the access-decision endpoint.
type EntitlementHandler struct {
	service entitlementResolver
	metrics *service.MetricsService
}

// NewEntitlementHandler creates a new handler.
func NewEntitlementHandler(svc entitlementResolver, metrics *service.MetricsService) *EntitlementHandler {
	return &EntitlementHandler{service: svc, metrics: metrics}
}

// Resolve godoc
// @Summary Resolve entitlement
// @Description Decide whether a viewer may access a content item right now
// @Tags Entitlement
// @Produce json
// @Param content query string true "Content item id"
// @Param viewer query string false "Viewer id (admins only; defaults to the caller)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /entitlement [get]
func (h *EntitlementHandler) Resolve(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	contentItemID := c.Query("content")
	if contentItemID == "" {
		contentItemID = c.Query("contentItemId")
	}
	if contentItemID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "content is required"))
		return
	}

	viewerID := claims.UserID
	if requested := c.Query("viewer"); requested != "" && requested != claims.UserID {
		if claims.Role != models.RoleAdmin && claims.Role != models.RoleSuperAdmin {
			response.Error(c, appErrors.ErrForbidden)
			return
		}
		viewerID = requested
	}

	entitlement, err := h.service.Resolve(c.Request.Context(), viewerID, contentItemID)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.EntitlementDecision(string(entitlement.Status))

	response.JSON(c, http.StatusOK, entitlement, nil)
}
