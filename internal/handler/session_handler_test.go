package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvault/edvault-api/internal/dto"
	"github.com/edvault/edvault-api/internal/middleware"
	"github.com/edvault/edvault-api/internal/models"
	"github.com/edvault/edvault-api/internal/service"
	appErrors "github.com/edvault/edvault-api/pkg/errors"
)

type sessionServiceMock struct {
	startResp   *models.SessionHandle
	startErr    error
	beatResp    *dto.HeartbeatResponse
	beatErr     error
	eventResp   *service.SecurityEventResult
	eventErr    error
	endResp     *models.ViewingSession
	endErr      error
	getResp     *models.ViewingSession
	getErr      error
	lastStart   dto.StartSessionRequest
	lastEndReq  dto.EndSessionRequest
	lastKind    string
	startCalled bool
	endCalled   bool
}

func (m *sessionServiceMock) Start(ctx context.Context, req dto.StartSessionRequest, actor *models.JWTClaims, meta service.RequestMeta) (*models.SessionHandle, error) {
	m.startCalled = true
	m.lastStart = req
	return m.startResp, m.startErr
}

func (m *sessionServiceMock) Heartbeat(ctx context.Context, sessionID string, actor *models.JWTClaims, meta service.RequestMeta) (*dto.HeartbeatResponse, error) {
	return m.beatResp, m.beatErr
}

func (m *sessionServiceMock) ReportSecurityEvent(ctx context.Context, sessionID, kind string, actor *models.JWTClaims, meta service.RequestMeta) (*service.SecurityEventResult, error) {
	m.lastKind = kind
	return m.eventResp, m.eventErr
}

func (m *sessionServiceMock) End(ctx context.Context, sessionID string, req dto.EndSessionRequest, actor *models.JWTClaims, meta service.RequestMeta) (*models.ViewingSession, error) {
	m.endCalled = true
	m.lastEndReq = req
	return m.endResp, m.endErr
}

func (m *sessionServiceMock) Get(ctx context.Context, sessionID string, actor *models.JWTClaims) (*models.ViewingSession, error) {
	return m.getResp, m.getErr
}

func viewerContext(w *httptest.ResponseRecorder) (*gin.Context, *models.JWTClaims) {
	c, _ := gin.CreateTestContext(w)
	claims := &models.JWTClaims{UserID: "viewer-1", Role: models.RoleStudent}
	c.Set(middleware.ContextUserKey, claims)
	return c, claims
}

func TestSessionHandlerStart(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &sessionServiceMock{
		startResp: &models.SessionHandle{SessionID: "sess-1", AccessToken: "token", DurationSeconds: 600},
	}
	handler := NewSessionHandler(mockSvc)

	payload, _ := json.Marshal(dto.StartSessionRequest{ContentItemID: "item-1", AgreementAccepted: true})
	w := httptest.NewRecorder()
	c, _ := viewerContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/sessions", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Start(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, mockSvc.startCalled)
	assert.Equal(t, "item-1", mockSvc.lastStart.ContentItemID)
	assert.True(t, mockSvc.lastStart.AgreementAccepted)
}

func TestSessionHandlerStartConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &sessionServiceMock{startErr: appErrors.ErrSessionAlreadyActive}
	handler := NewSessionHandler(mockSvc)

	payload, _ := json.Marshal(dto.StartSessionRequest{ContentItemID: "item-1", AgreementAccepted: true})
	w := httptest.NewRecorder()
	c, _ := viewerContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/sessions", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Start(c)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestSessionHandlerStartAuditUnavailable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &sessionServiceMock{startErr: appErrors.ErrAuditUnavailable}
	handler := NewSessionHandler(mockSvc)

	payload, _ := json.Marshal(dto.StartSessionRequest{ContentItemID: "item-1", AgreementAccepted: true})
	w := httptest.NewRecorder()
	c, _ := viewerContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/sessions", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Start(c)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSessionHandlerStartInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewSessionHandler(&sessionServiceMock{})

	w := httptest.NewRecorder()
	c, _ := viewerContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/sessions", bytes.NewBufferString(`{"contentItemId":`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Start(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionHandlerHeartbeatGone(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &sessionServiceMock{beatErr: appErrors.ErrSessionEnded}
	handler := NewSessionHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := viewerContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/sessions/sess-1/heartbeat", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "sess-1"}}

	handler.Heartbeat(c)
	require.Equal(t, http.StatusGone, w.Code)
}

func TestSessionHandlerHeartbeatRemaining(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &sessionServiceMock{beatResp: &dto.HeartbeatResponse{RemainingSeconds: 120}}
	handler := NewSessionHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := viewerContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/sessions/sess-1/heartbeat", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "sess-1"}}

	handler.Heartbeat(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"remainingSeconds":120`)
}

func TestSessionHandlerSecurityEvent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &sessionServiceMock{eventResp: &service.SecurityEventResult{ViolationCount: 3, Terminated: true}}
	handler := NewSessionHandler(mockSvc)

	payload, _ := json.Marshal(dto.SecurityEventRequest{Kind: "screenshot"})
	w := httptest.NewRecorder()
	c, _ := viewerContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/sessions/sess-1/security-event", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "sess-1"}}

	handler.SecurityEvent(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "screenshot", mockSvc.lastKind)
	assert.Contains(t, w.Body.String(), `"terminated":true`)
}

func TestSessionHandlerEndEmptyBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &sessionServiceMock{endResp: &models.ViewingSession{ID: "sess-1", State: models.SessionStateEnded}}
	handler := NewSessionHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := viewerContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/sessions/sess-1/end", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "sess-1"}}

	handler.End(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mockSvc.endCalled)
	assert.Empty(t, mockSvc.lastEndReq.Reason)
}

func TestSessionHandlerGetNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &sessionServiceMock{getErr: appErrors.ErrSessionNotFound}
	handler := NewSessionHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := viewerContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/sessions/ghost", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "ghost"}}

	handler.Get(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}
