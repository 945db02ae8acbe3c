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

type viewingSessionService interface {
	Start(ctx context.Context, req dto.StartSessionRequest, actor *models.JWTClaims, meta service.RequestMeta) (*models.SessionHandle, error)
	Heartbeat(ctx context.Context, sessionID string, actor *models.JWTClaims, meta service.RequestMeta) (*dto.HeartbeatResponse, error)
	ReportSecurityEvent(ctx context.Context, sessionID, kind string, actor *models.JWTClaims, meta service.RequestMeta) (*service.SecurityEventResult, error)
	End(ctx context.Context, sessionID string, req dto.EndSessionRequest, actor *models.JWTClaims, meta service.RequestMeta) (*models.ViewingSession, error)
	Get(ctx context.Context, sessionID string, actor *models.JWTClaims) (*models.ViewingSession, error)
}

// SessionHandler exposes the secure viewing session lifecycle.
type SessionHandler struct {
	service viewingSessionService
}

// NewSessionHandler creates a new handler.
func NewSessionHandler(svc viewingSessionService) *SessionHandler {
	return &SessionHandler{service: svc}
}

// Start godoc
// @Summary Start viewing session
// @Description Open a secure, time-boxed viewing session for a sensitive content item
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body dto.StartSessionRequest true "Session request"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Start(c *gin.Context) {
	var req dto.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid session payload"))
		return
	}

	handle, err := h.service.Start(c.Request.Context(), req, claimsFromContext(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, handle)
}

// Heartbeat godoc
// @Summary Session heartbeat
// @Description Report liveness and receive the authoritative remaining time
// @Tags Sessions
// @Produce json
// @Param id path string true "Session id"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Router /sessions/{id}/heartbeat [post]
func (h *SessionHandler) Heartbeat(c *gin.Context) {
	res, err := h.service.Heartbeat(c.Request.Context(), c.Param("id"), claimsFromContext(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}

// SecurityEvent godoc
// @Summary Report security violation
// @Description Record a client-observed violation attempt against the session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session id"
// @Param payload body dto.SecurityEventRequest true "Violation payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Router /sessions/{id}/security-event [post]
func (h *SessionHandler) SecurityEvent(c *gin.Context) {
	var req dto.SecurityEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid violation payload"))
		return
	}

	result, err := h.service.ReportSecurityEvent(c.Request.Context(), c.Param("id"), req.Kind, claimsFromContext(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result, nil)
}

// End godoc
// @Summary End viewing session
// @Description Close a session; ending an already-ended session is a no-op
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session id"
// @Param payload body dto.EndSessionRequest false "End payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id}/end [post]
func (h *SessionHandler) End(c *gin.Context) {
	var req dto.EndSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid end payload"))
			return
		}
	}

	session, err := h.service.End(c.Request.Context(), c.Param("id"), req, claimsFromContext(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, session, nil)
}

// Get godoc
// @Summary Get viewing session
// @Description Fetch a session's current state
// @Tags Sessions
// @Produce json
// @Param id path string true "Session id"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	session, err := h.service.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}
