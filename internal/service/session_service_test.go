package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvault/edvault-api/internal/dto"
	"github.com/edvault/edvault-api/internal/models"
	"github.com/edvault/edvault-api/internal/repository"
	"github.com/edvault/edvault-api/pkg/config"
	appErrors "github.com/edvault/edvault-api/pkg/errors"
)

// fakeSessionStore mirrors the repository contract in memory, including the
// atomicity of Register and the first-closer-wins semantics of End.
type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*models.ViewingSession
	seq      int
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: map[string]*models.ViewingSession{}}
}

func (f *fakeSessionStore) Register(ctx context.Context, session *models.ViewingSession) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	consumed := 0
	for _, existing := range f.sessions {
		if existing.ViewerID != session.ViewerID || existing.ContentItemID != session.ContentItemID {
			continue
		}
		if existing.State == models.SessionStateActive {
			return consumed, repository.ErrActiveSessionExists
		}
		if existing.State == models.SessionStateEnded &&
			(existing.EndReason == nil || *existing.EndReason != models.EndReasonRevoked) {
			consumed++
		}
	}
	if session.MaxViews > 0 && consumed >= session.MaxViews {
		return consumed, repository.ErrViewLimitReached
	}

	f.seq++
	session.ID = fmt.Sprintf("sess-%d", f.seq)
	session.State = models.SessionStateActive
	session.CreatedAt = session.StartedAt
	stored := *session
	f.sessions[session.ID] = &stored
	return consumed, nil
}

func (f *fakeSessionStore) GetByID(ctx context.Context, id string) (*models.ViewingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *session
	return &copied, nil
}

func (f *fakeSessionStore) End(ctx context.Context, id string, reason models.EndReason, endedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[id]
	if !ok {
		return false, sql.ErrNoRows
	}
	if session.State != models.SessionStateActive {
		return false, nil
	}
	session.State = models.SessionStateEnded
	session.EndReason = &reason
	session.EndedAt = &endedAt
	return true, nil
}

func (f *fakeSessionStore) Touch(ctx context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if session, ok := f.sessions[id]; ok {
		session.LastHeartbeatAt = &at
	}
	return nil
}

func (f *fakeSessionStore) UpdateViolations(ctx context.Context, id string, count int, windowAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[id]
	if !ok {
		return sql.ErrNoRows
	}
	session.ViolationCount = count
	session.ViolationWindowAt = &windowAt
	return nil
}

func (f *fakeSessionStore) ListExpired(ctx context.Context, now time.Time, heartbeatTimeout time.Duration) ([]models.ViewingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var expired []models.ViewingSession
	for _, session := range f.sessions {
		if session.State != models.SessionStateActive {
			continue
		}
		silent := session.LastHeartbeatAt != nil && heartbeatTimeout > 0 &&
			session.LastHeartbeatAt.Before(now.Add(-heartbeatTimeout))
		if now.After(session.Deadline()) || silent {
			expired = append(expired, *session)
		}
	}
	return expired, nil
}

func (f *fakeSessionStore) get(id string) *models.ViewingSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *f.sessions[id]
	return &copied
}

type fakeAuthorizer struct {
	item *models.ContentItem
	err  error
}

func (f *fakeAuthorizer) Authorize(ctx context.Context, viewerID, contentItemID string) (*models.ContentItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	copied := *f.item
	return &copied, nil
}

type fakeTokenIssuer struct {
	err error
}

func (f *fakeTokenIssuer) Generate(sessionID, relPath string) (string, time.Time, error) {
	if f.err != nil {
		return "", time.Time{}, f.err
	}
	return "token-" + sessionID, time.Now().Add(time.Minute), nil
}

type recordingMetrics struct {
	mu       sync.Mutex
	started  int
	ended    map[string]int
	violated int
}

func (m *recordingMetrics) SessionStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started++
}

func (m *recordingMetrics) SessionEnded(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ended == nil {
		m.ended = map[string]int{}
	}
	m.ended[reason]++
}

func (m *recordingMetrics) SecurityViolation() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.violated++
}

type sessionFixture struct {
	svc     *SessionService
	store   *fakeSessionStore
	auth    *fakeAuthorizer
	signer  *fakeTokenIssuer
	audit   *fakeAuditLog
	metrics *recordingMetrics
}

func newSessionFixture(cfg config.SessionsConfig) *sessionFixture {
	if cfg.MaxViewsPastExams == 0 {
		cfg.MaxViewsPastExams = 1
	}
	if cfg.DurationPastExams == 0 {
		cfg.DurationPastExams = 30 * time.Minute
	}
	f := &sessionFixture{
		store: newFakeSessionStore(),
		auth: &fakeAuthorizer{item: &models.ContentItem{
			ID:                  "item-1",
			Kind:                models.ContentKindPastExams,
			ApprovalState:       models.ApprovalStateApproved,
			FilePath:            "content/exam.png",
			ViewDurationSeconds: 600,
		}},
		signer:  &fakeTokenIssuer{},
		audit:   &fakeAuditLog{},
		metrics: &recordingMetrics{},
	}
	policy := NewViewingPolicy(cfg)
	f.svc = NewSessionService(f.store, f.auth, f.audit, f.signer, policy, cfg, nil, f.metrics, nil)
	return f
}

func studentClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleStudent}
}

func startRequest() dto.StartSessionRequest {
	return dto.StartSessionRequest{ContentItemID: "item-1", AgreementAccepted: true}
}

func TestStartSessionIssuesHandle(t *testing.T) {
	f := newSessionFixture(config.SessionsConfig{})

	handle, err := f.svc.Start(context.Background(), startRequest(), studentClaims("viewer-1"), RequestMeta{IPAddress: "10.0.0.1"})
	require.NoError(t, err)
	assert.NotEmpty(t, handle.SessionID)
	assert.Equal(t, "token-"+handle.SessionID, handle.AccessToken)
	assert.Equal(t, 600, handle.DurationSeconds)
	assert.Equal(t, 1, handle.MaxViews)
	assert.Equal(t, 0, handle.ViewsConsumed)

	stored := f.store.get(handle.SessionID)
	assert.Equal(t, models.SessionStateActive, stored.State)
	assert.Equal(t, 600, stored.DurationSeconds)

	require.Len(t, f.audit.events, 1)
	assert.Equal(t, models.AuditEventSessionStarted, f.audit.events[0].EventType)
	assert.Equal(t, "10.0.0.1", f.audit.events[0].IPAddress)
	assert.Equal(t, 1, f.metrics.started)
}

func TestStartRequiresAgreement(t *testing.T) {
	f := newSessionFixture(config.SessionsConfig{})
	req := startRequest()
	req.AgreementAccepted = false

	_, err := f.svc.Start(context.Background(), req, studentClaims("viewer-1"), RequestMeta{})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestStartRejectsSecondActiveSession(t *testing.T) {
	f := newSessionFixture(config.SessionsConfig{MaxViewsPastExams: 3})

	_, err := f.svc.Start(context.Background(), startRequest(), studentClaims("viewer-1"), RequestMeta{})
	require.NoError(t, err)

	_, err = f.svc.Start(context.Background(), startRequest(), studentClaims("viewer-1"), RequestMeta{})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrSessionAlreadyActive))
}

func TestStartEnforcesViewLimit(t *testing.T) {
	f := newSessionFixture(config.SessionsConfig{MaxViewsPastExams: 1})

	handle, err := f.svc.Start(context.Background(), startRequest(), studentClaims("viewer-1"), RequestMeta{})
	require.NoError(t, err)
	_, err = f.svc.End(context.Background(), handle.SessionID, dto.EndSessionRequest{}, studentClaims("viewer-1"), RequestMeta{})
	require.NoError(t, err)

	_, err = f.svc.Start(context.Background(), startRequest(), studentClaims("viewer-1"), RequestMeta{})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrViewLimitExceeded))
}

func TestStartRevokedSessionDoesNotConsumeView(t *testing.T) {
	f := newSessionFixture(config.SessionsConfig{MaxViewsPastExams: 1})
	f.audit.err = context.DeadlineExceeded

	_, err := f.svc.Start(context.Background(), startRequest(), studentClaims("viewer-1"), RequestMeta{})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrAuditUnavailable))

	// The session registered before the failed audit append is revoked, not
	// counted, so the viewer's single allowed view survives the outage.
	f.audit.err = nil
	handle, err := f.svc.Start(context.Background(), startRequest(), studentClaims("viewer-1"), RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, 0, handle.ViewsConsumed)
}

func TestStartAuditFailureRevokesSession(t *testing.T) {
	f := newSessionFixture(config.SessionsConfig{})
	f.audit.err = context.DeadlineExceeded

	_, err := f.svc.Start(context.Background(), startRequest(), studentClaims("viewer-1"), RequestMeta{})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrAuditUnavailable))

	stored := f.store.get("sess-1")
	assert.Equal(t, models.SessionStateEnded, stored.State)
	require.NotNil(t, stored.EndReason)
	assert.Equal(t, models.EndReasonRevoked, *stored.EndReason)
}

func TestConcurrentStartsAdmitExactlyOne(t *testing.T) {
	f := newSessionFixture(config.SessionsConfig{MaxViewsPastExams: 5})

	const attempts = 10
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Start(context.Background(), startRequest(), studentClaims("viewer-1"), RequestMeta{})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded, rejected := 0, 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		require.True(t, appErrors.Is(err, appErrors.ErrSessionAlreadyActive))
		rejected++
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, attempts-1, rejected)
}

func TestHeartbeatReportsRemainingSeconds(t *testing.T) {
	f := newSessionFixture(config.SessionsConfig{})
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	f.svc.nowFn = func() time.Time { return started }

	handle, err := f.svc.Start(context.Background(), startRequest(), studentClaims("viewer-1"), RequestMeta{})
	require.NoError(t, err)

	f.svc.nowFn = func() time.Time { return started.Add(4 * time.Minute) }
	beat, err := f.svc.Heartbeat(context.Background(), handle.SessionID, studentClaims("viewer-1"), RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, 360, beat.RemainingSeconds)

	stored := f.store.get(handle.SessionID)
	require.NotNil(t, stored.LastHeartbeatAt)
}

func TestDurationSnapshotIgnoresLaterContentChanges(t *testing.T) {
	f := newSessionFixture(config.SessionsConfig{})
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	f.svc.nowFn = func() time.Time { return started }

	handle, err := f.svc.Start(context.Background(), startRequest(), studentClaims("viewer-1"), RequestMeta{})
	require.NoError(t, err)
	require.Equal(t, 600, handle.DurationSeconds)

	// Reconfiguring the content item mid-session must not move the deadline
	// of an already-running session.
	f.auth.item.ViewDurationSeconds = 60

	f.svc.nowFn = func() time.Time { return started.Add(4 * time.Minute) }
	beat, err := f.svc.Heartbeat(context.Background(), handle.SessionID, studentClaims("viewer-1"), RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, 360, beat.RemainingSeconds)
}

func TestHeartbeatPastDeadlineEndsSession(t *testing.T) {
	f := newSessionFixture(config.SessionsConfig{})
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	f.svc.nowFn = func() time.Time { return started }

	handle, err := f.svc.Start(context.Background(), startRequest(), studentClaims("viewer-1"), RequestMeta{})
	require.NoError(t, err)

	f.svc.nowFn = func() time.Time { return started.Add(11 * time.Minute) }
	_, err = f.svc.Heartbeat(context.Background(), handle.SessionID, studentClaims("viewer-1"), RequestMeta{})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrSessionEnded))

	stored := f.store.get(handle.SessionID)
	assert.Equal(t, models.SessionStateEnded, stored.State)
	require.NotNil(t, stored.EndReason)
	assert.Equal(t, models.EndReasonExpired, *stored.EndReason)
	assert.Equal(t, 1, f.metrics.ended["EXPIRED"])
}

func TestEndIsIdempotentFirstReasonWins(t *testing.T) {
	f := newSessionFixture(config.SessionsConfig{})
	viewer := studentClaims("viewer-1")

	handle, err := f.svc.Start(context.Background(), startRequest(), viewer, RequestMeta{})
	require.NoError(t, err)

	first, err := f.svc.End(context.Background(), handle.SessionID, dto.EndSessionRequest{Reason: "MANUAL"}, viewer, RequestMeta{})
	require.NoError(t, err)
	require.NotNil(t, first.EndReason)
	assert.Equal(t, models.EndReasonManual, *first.EndReason)

	second, err := f.svc.End(context.Background(), handle.SessionID, dto.EndSessionRequest{Reason: "REVOKED"}, viewer, RequestMeta{})
	require.NoError(t, err)
	require.NotNil(t, second.EndReason)
	assert.Equal(t, models.EndReasonManual, *second.EndReason)
	assert.Equal(t, 1, f.metrics.ended["MANUAL"])
}

func TestManualEndAfterDeadlineRecordsExpired(t *testing.T) {
	f := newSessionFixture(config.SessionsConfig{})
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	f.svc.nowFn = func() time.Time { return started }
	viewer := studentClaims("viewer-1")

	handle, err := f.svc.Start(context.Background(), startRequest(), viewer, RequestMeta{})
	require.NoError(t, err)

	f.svc.nowFn = func() time.Time { return started.Add(time.Hour) }
	session, err := f.svc.End(context.Background(), handle.SessionID, dto.EndSessionRequest{Reason: "MANUAL"}, viewer, RequestMeta{})
	require.NoError(t, err)
	require.NotNil(t, session.EndReason)
	assert.Equal(t, models.EndReasonExpired, *session.EndReason)
}

func TestEndRejectsInvalidReason(t *testing.T) {
	f := newSessionFixture(config.SessionsConfig{})
	viewer := studentClaims("viewer-1")

	handle, err := f.svc.Start(context.Background(), startRequest(), viewer, RequestMeta{})
	require.NoError(t, err)

	_, err = f.svc.End(context.Background(), handle.SessionID, dto.EndSessionRequest{Reason: "RAGEQUIT"}, viewer, RequestMeta{})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestEndRejectsServerReservedReasons(t *testing.T) {
	f := newSessionFixture(config.SessionsConfig{})
	viewer := studentClaims("viewer-1")

	handle, err := f.svc.Start(context.Background(), startRequest(), viewer, RequestMeta{})
	require.NoError(t, err)

	for _, reason := range []string{"REVOKED", "VIEW_LIMIT", "EXPIRED"} {
		_, err = f.svc.End(context.Background(), handle.SessionID, dto.EndSessionRequest{Reason: reason}, viewer, RequestMeta{})
		require.Error(t, err, reason)
		assert.True(t, appErrors.Is(err, appErrors.ErrValidation), reason)
	}

	stored := f.store.get(handle.SessionID)
	assert.Equal(t, models.SessionStateActive, stored.State)
}

func TestEndCannotLaunderViewLimit(t *testing.T) {
	f := newSessionFixture(config.SessionsConfig{MaxViewsPastExams: 1})
	viewer := studentClaims("viewer-1")

	handle, err := f.svc.Start(context.Background(), startRequest(), viewer, RequestMeta{})
	require.NoError(t, err)

	// A revoked row would not count as a consumed view, so the owning viewer
	// must not be able to pick that reason.
	_, err = f.svc.End(context.Background(), handle.SessionID, dto.EndSessionRequest{Reason: "REVOKED"}, viewer, RequestMeta{})
	require.Error(t, err)

	_, err = f.svc.End(context.Background(), handle.SessionID, dto.EndSessionRequest{}, viewer, RequestMeta{})
	require.NoError(t, err)

	_, err = f.svc.Start(context.Background(), startRequest(), viewer, RequestMeta{})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrViewLimitExceeded))
}

func TestEndByOtherViewerForbidden(t *testing.T) {
	f := newSessionFixture(config.SessionsConfig{})

	handle, err := f.svc.Start(context.Background(), startRequest(), studentClaims("viewer-1"), RequestMeta{})
	require.NoError(t, err)

	_, err = f.svc.End(context.Background(), handle.SessionID, dto.EndSessionRequest{}, studentClaims("viewer-2"), RequestMeta{})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestEndUnknownSessionNotFound(t *testing.T) {
	f := newSessionFixture(config.SessionsConfig{})

	_, err := f.svc.End(context.Background(), "ghost", dto.EndSessionRequest{}, studentClaims("viewer-1"), RequestMeta{})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrSessionNotFound))
}

func TestSecurityEventTerminatesAtLimit(t *testing.T) {
	f := newSessionFixture(config.SessionsConfig{
		ViolationLimit:        2,
		ViolationWindow:       time.Minute,
		TerminateOnViolations: true,
	})
	viewer := studentClaims("viewer-1")

	handle, err := f.svc.Start(context.Background(), startRequest(), viewer, RequestMeta{})
	require.NoError(t, err)

	first, err := f.svc.ReportSecurityEvent(context.Background(), handle.SessionID, "screenshot", viewer, RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, 1, first.ViolationCount)
	assert.False(t, first.Terminated)

	second, err := f.svc.ReportSecurityEvent(context.Background(), handle.SessionID, "screenshot", viewer, RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, 2, second.ViolationCount)
	assert.True(t, second.Terminated)

	stored := f.store.get(handle.SessionID)
	assert.Equal(t, models.SessionStateEnded, stored.State)
	require.NotNil(t, stored.EndReason)
	assert.Equal(t, models.EndReasonRevoked, *stored.EndReason)
	assert.Equal(t, 2, f.metrics.violated)
}

func TestSecurityEventWindowResets(t *testing.T) {
	f := newSessionFixture(config.SessionsConfig{
		ViolationLimit:        2,
		ViolationWindow:       time.Minute,
		TerminateOnViolations: true,
	})
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	f.svc.nowFn = func() time.Time { return started }
	viewer := studentClaims("viewer-1")

	handle, err := f.svc.Start(context.Background(), startRequest(), viewer, RequestMeta{})
	require.NoError(t, err)

	_, err = f.svc.ReportSecurityEvent(context.Background(), handle.SessionID, "screenshot", viewer, RequestMeta{})
	require.NoError(t, err)

	// Outside the rolling window the count starts over.
	f.svc.nowFn = func() time.Time { return started.Add(2 * time.Minute) }
	result, err := f.svc.ReportSecurityEvent(context.Background(), handle.SessionID, "screenshot", viewer, RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.ViolationCount)
	assert.False(t, result.Terminated)
}

func TestValidateForMediaClosesExpiredInline(t *testing.T) {
	f := newSessionFixture(config.SessionsConfig{})
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	f.svc.nowFn = func() time.Time { return started }

	handle, err := f.svc.Start(context.Background(), startRequest(), studentClaims("viewer-1"), RequestMeta{})
	require.NoError(t, err)

	session, err := f.svc.ValidateForMedia(context.Background(), handle.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateActive, session.State)

	f.svc.nowFn = func() time.Time { return started.Add(time.Hour) }
	_, err = f.svc.ValidateForMedia(context.Background(), handle.SessionID)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrSessionEnded))

	stored := f.store.get(handle.SessionID)
	assert.Equal(t, models.SessionStateEnded, stored.State)
}

func TestSweepOnceClosesExpiredSessions(t *testing.T) {
	f := newSessionFixture(config.SessionsConfig{HeartbeatTimeout: 2 * time.Minute})
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	f.svc.nowFn = func() time.Time { return started }

	handle, err := f.svc.Start(context.Background(), startRequest(), studentClaims("viewer-1"), RequestMeta{})
	require.NoError(t, err)

	sweepAt := started.Add(time.Hour)
	f.svc.nowFn = func() time.Time { return sweepAt }
	f.svc.SweepOnce(context.Background(), sweepAt)

	stored := f.store.get(handle.SessionID)
	assert.Equal(t, models.SessionStateEnded, stored.State)
	require.NotNil(t, stored.EndReason)
	assert.Equal(t, models.EndReasonExpired, *stored.EndReason)
}

func TestSweepOnceClosesHeartbeatSilentSessions(t *testing.T) {
	f := newSessionFixture(config.SessionsConfig{HeartbeatTimeout: 2 * time.Minute})
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	f.svc.nowFn = func() time.Time { return started }
	viewer := studentClaims("viewer-1")

	handle, err := f.svc.Start(context.Background(), startRequest(), viewer, RequestMeta{})
	require.NoError(t, err)
	_, err = f.svc.Heartbeat(context.Background(), handle.SessionID, viewer, RequestMeta{})
	require.NoError(t, err)

	// Still inside the viewing window but silent for longer than the
	// heartbeat timeout.
	sweepAt := started.Add(5 * time.Minute)
	f.svc.nowFn = func() time.Time { return sweepAt }
	f.svc.SweepOnce(context.Background(), sweepAt)

	stored := f.store.get(handle.SessionID)
	assert.Equal(t, models.SessionStateEnded, stored.State)
}
