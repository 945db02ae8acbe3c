package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edvault/edvault-api/internal/dto"
	"github.com/edvault/edvault-api/internal/models"
	"github.com/edvault/edvault-api/internal/repository"
	"github.com/edvault/edvault-api/pkg/config"
	appErrors "github.com/edvault/edvault-api/pkg/errors"
)

type sessionStore interface {
	Register(ctx context.Context, session *models.ViewingSession) (int, error)
	GetByID(ctx context.Context, id string) (*models.ViewingSession, error)
	End(ctx context.Context, id string, reason models.EndReason, endedAt time.Time) (bool, error)
	Touch(ctx context.Context, id string, at time.Time) error
	UpdateViolations(ctx context.Context, id string, count int, windowAt time.Time) error
	ListExpired(ctx context.Context, now time.Time, heartbeatTimeout time.Duration) ([]models.ViewingSession, error)
}

type contentAuthorizer interface {
	Authorize(ctx context.Context, viewerID, contentItemID string) (*models.ContentItem, error)
}

type accessTokenIssuer interface {
	Generate(sessionID, relPath string) (string, time.Time, error)
}

type sessionMetrics interface {
	SessionStarted()
	SessionEnded(reason string)
	SecurityViolation()
}

// RequestMeta carries per-request client metadata into the audit trail.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// SecurityEventResult reports how a violation report was handled.
type SecurityEventResult struct {
	ViolationCount int  `json:"violationCount"`
	Terminated     bool `json:"terminated"`
}

// SessionService supervises secure viewing sessions: one live session per
// (viewer, content item) pair, a fixed wall-clock deadline snapshotted at
// start, and a lifetime view allowance enforced against ended sessions.
// The expiry sweep is a janitor; every access path checks the deadline
// inline and that check is authoritative.
type SessionService struct {
	sessions     sessionStore
	entitlements contentAuthorizer
	audit        auditAppender
	signer       accessTokenIssuer
	policy       ViewingPolicy
	cfg          config.SessionsConfig
	validator    *validator.Validate
	metrics      sessionMetrics
	logger       *zap.Logger
	nowFn        func() time.Time
}

// NewSessionService constructs the supervisor.
func NewSessionService(sessions sessionStore, entitlements contentAuthorizer, audit auditAppender, signer accessTokenIssuer, policy ViewingPolicy, cfg config.SessionsConfig, validate *validator.Validate, metrics sessionMetrics, logger *zap.Logger) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		sessions:     sessions,
		entitlements: entitlements,
		audit:        audit,
		signer:       signer,
		policy:       policy,
		cfg:          cfg,
		validator:    validate,
		metrics:      metrics,
		logger:       logger,
		nowFn:        time.Now,
	}
}

// Start opens a session for the viewer on a sensitive content item. Failure
// to record the start in the audit trail fails the whole operation: the
// freshly registered session is revoked and no access is granted.
func (s *SessionService) Start(ctx context.Context, req dto.StartSessionRequest, actor *models.JWTClaims, meta RequestMeta) (*models.SessionHandle, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session request")
	}
	viewerID, err := resolveViewer(req.ViewerID, actor)
	if err != nil {
		return nil, err
	}
	if !req.AgreementAccepted {
		return nil, appErrors.Clone(appErrors.ErrValidation, "viewing agreement must be accepted")
	}

	item, err := s.entitlements.Authorize(ctx, viewerID, req.ContentItemID)
	if err != nil {
		return nil, err
	}
	if !s.policy.SessionRequired(item.Kind) {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "content kind does not require a viewing session")
	}

	duration := item.ViewDurationSeconds
	if duration <= 0 {
		duration = int(s.policy.DefaultDuration(item.Kind).Seconds())
	}

	now := s.nowFn().UTC()
	session := &models.ViewingSession{
		ViewerID:        viewerID,
		ContentItemID:   item.ID,
		StartedAt:       now,
		DurationSeconds: duration,
		MaxViews:        s.policy.MaxViews(item.Kind),
	}
	viewsConsumed, err := s.sessions.Register(ctx, session)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrViewLimitReached):
			return nil, appErrors.ErrViewLimitExceeded
		case errors.Is(err, repository.ErrActiveSessionExists):
			return nil, appErrors.ErrSessionAlreadyActive
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register session")
		}
	}

	if err := s.appendSessionAudit(ctx, session, models.AuditEventSessionStarted, meta,
		fmt.Sprintf(`{"contentItemId":%q,"durationSeconds":%d}`, item.ID, duration)); err != nil {
		if _, revokeErr := s.sessions.End(ctx, session.ID, models.EndReasonRevoked, s.nowFn().UTC()); revokeErr != nil {
			s.logger.Error("failed to revoke session after audit failure",
				zap.String("session_id", session.ID), zap.Error(revokeErr))
		}
		return nil, appErrors.Clone(appErrors.ErrAuditUnavailable, "session start could not be recorded")
	}

	token, expiresAt, err := s.signer.Generate(session.ID, item.FilePath)
	if err != nil {
		if _, revokeErr := s.sessions.End(ctx, session.ID, models.EndReasonRevoked, s.nowFn().UTC()); revokeErr != nil {
			s.logger.Error("failed to revoke session after token failure",
				zap.String("session_id", session.ID), zap.Error(revokeErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue access token")
	}

	if s.metrics != nil {
		s.metrics.SessionStarted()
	}
	return &models.SessionHandle{
		SessionID:       session.ID,
		AccessToken:     token,
		DurationSeconds: duration,
		MaxViews:        session.MaxViews,
		ViewsConsumed:   viewsConsumed,
		TokenExpiresAt:  expiresAt,
	}, nil
}

// Heartbeat checks the session inline against its deadline and reports the
// authoritative remaining time. A heartbeat past the deadline ends the
// session right there instead of waiting for the sweep.
func (s *SessionService) Heartbeat(ctx context.Context, sessionID string, actor *models.JWTClaims, meta RequestMeta) (*dto.HeartbeatResponse, error) {
	session, err := s.ownedActiveSession(ctx, sessionID, actor, meta)
	if err != nil {
		return nil, err
	}

	now := s.nowFn().UTC()
	if err := s.sessions.Touch(ctx, sessionID, now); err != nil {
		s.logger.Warn("failed to record heartbeat", zap.String("session_id", sessionID), zap.Error(err))
	}
	return &dto.HeartbeatResponse{RemainingSeconds: session.RemainingSeconds(now)}, nil
}

// ReportSecurityEvent records a client-observed violation attempt. Violations
// are counted over a rolling window; crossing the configured limit terminates
// the session when termination is enabled.
func (s *SessionService) ReportSecurityEvent(ctx context.Context, sessionID, kind string, actor *models.JWTClaims, meta RequestMeta) (*SecurityEventResult, error) {
	session, err := s.ownedActiveSession(ctx, sessionID, actor, meta)
	if err != nil {
		return nil, err
	}

	now := s.nowFn().UTC()
	count := session.ViolationCount + 1
	windowAt := now
	if session.ViolationWindowAt != nil && now.Sub(*session.ViolationWindowAt) < s.cfg.ViolationWindow {
		windowAt = *session.ViolationWindowAt
	} else {
		count = 1
	}
	if err := s.sessions.UpdateViolations(ctx, sessionID, count, windowAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record violation")
	}
	if s.metrics != nil {
		s.metrics.SecurityViolation()
	}

	if err := s.appendSessionAudit(ctx, session, models.AuditEventSecurityViolation, meta,
		fmt.Sprintf(`{"kind":%q,"violationCount":%d}`, kind, count)); err != nil {
		s.logger.Error("audit append failed for security event",
			zap.String("session_id", sessionID), zap.Error(err))
	}

	result := &SecurityEventResult{ViolationCount: count}
	if s.cfg.TerminateOnViolations && s.cfg.ViolationLimit > 0 && count >= s.cfg.ViolationLimit {
		if _, err := s.endWithReason(ctx, session, models.EndReasonRevoked, meta); err != nil {
			return nil, err
		}
		result.Terminated = true
	}
	return result, nil
}

// End closes a session. Idempotent: ending an ended session is a no-op and
// the first recorded reason stands. Callers may only close manually;
// EXPIRED is derived from the deadline and REVOKED/VIEW_LIMIT are reserved
// for server-side paths, since a revoked row does not count as a consumed
// view. A manual end arriving after the deadline records the expiry, not
// the manual close.
func (s *SessionService) End(ctx context.Context, sessionID string, req dto.EndSessionRequest, actor *models.JWTClaims, meta RequestMeta) (*models.ViewingSession, error) {
	session, err := s.loadOwnedSession(ctx, sessionID, actor)
	if err != nil {
		return nil, err
	}
	if session.State == models.SessionStateEnded {
		return session, nil
	}

	switch models.EndReason(req.Reason) {
	case "", models.EndReasonManual:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid end reason")
	}
	reason := models.EndReasonManual
	if s.nowFn().UTC().After(session.Deadline()) {
		reason = models.EndReasonExpired
	}

	return s.endWithReason(ctx, session, reason, meta)
}

// Get returns the session for its owner or an admin.
func (s *SessionService) Get(ctx context.Context, sessionID string, actor *models.JWTClaims) (*models.ViewingSession, error) {
	return s.loadOwnedSession(ctx, sessionID, actor)
}

// ValidateForMedia re-checks a session on a media fetch. Only an active,
// in-deadline session passes; an expired one is closed inline.
func (s *SessionService) ValidateForMedia(ctx context.Context, sessionID string) (*models.ViewingSession, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if repository.IsSessionNotFound(err) {
			return nil, appErrors.ErrSessionNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if session.State == models.SessionStateEnded {
		return nil, appErrors.ErrSessionEnded
	}
	if s.nowFn().UTC().After(session.Deadline()) {
		if _, err := s.endWithReason(ctx, session, models.EndReasonExpired, RequestMeta{}); err != nil {
			s.logger.Error("failed to close expired session on media fetch",
				zap.String("session_id", sessionID), zap.Error(err))
		}
		return nil, appErrors.ErrSessionEnded
	}
	return session, nil
}

// RunSweeper closes expired and heartbeat-silent sessions until the context
// is cancelled. It is a janitor for rows nobody touches; inline deadline
// checks remain the authority on every access path.
func (s *SessionService) RunSweeper(ctx context.Context) {
	interval := s.cfg.SweepInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("session sweeper started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("session sweeper stopped")
			return
		case <-ticker.C:
			s.SweepOnce(ctx, s.nowFn().UTC())
		}
	}
}

// SweepOnce performs one sweep pass at the given instant.
func (s *SessionService) SweepOnce(ctx context.Context, now time.Time) {
	expired, err := s.sessions.ListExpired(ctx, now, s.cfg.HeartbeatTimeout)
	if err != nil {
		s.logger.Error("sweep listing failed", zap.Error(err))
		return
	}
	for i := range expired {
		session := expired[i]
		if _, err := s.endWithReason(ctx, &session, models.EndReasonExpired, RequestMeta{}); err != nil {
			s.logger.Error("sweep failed to end session",
				zap.String("session_id", session.ID), zap.Error(err))
		}
	}
	if len(expired) > 0 {
		s.logger.Info("sweep closed expired sessions", zap.Int("count", len(expired)))
	}
}

func (s *SessionService) endWithReason(ctx context.Context, session *models.ViewingSession, reason models.EndReason, meta RequestMeta) (*models.ViewingSession, error) {
	endedAt := s.nowFn().UTC()
	ended, err := s.sessions.End(ctx, session.ID, reason, endedAt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to end session")
	}
	if !ended {
		// Lost the race to another closer; their reason stands.
		current, err := s.sessions.GetByID(ctx, session.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload session")
		}
		return current, nil
	}

	session.State = models.SessionStateEnded
	session.EndReason = &reason
	session.EndedAt = &endedAt
	if s.metrics != nil {
		s.metrics.SessionEnded(string(reason))
	}

	if err := s.appendSessionAudit(ctx, session, models.AuditEventSessionEnded, meta,
		fmt.Sprintf(`{"reason":%q}`, reason)); err != nil {
		s.logger.Error("audit append failed for session end",
			zap.String("session_id", session.ID), zap.Error(err))
	}
	return session, nil
}

// ownedActiveSession loads the session, enforces ownership, and applies the
// inline deadline check, closing the session when it has lapsed.
func (s *SessionService) ownedActiveSession(ctx context.Context, sessionID string, actor *models.JWTClaims, meta RequestMeta) (*models.ViewingSession, error) {
	session, err := s.loadOwnedSession(ctx, sessionID, actor)
	if err != nil {
		return nil, err
	}
	if session.State == models.SessionStateEnded {
		return nil, appErrors.ErrSessionEnded
	}
	if s.nowFn().UTC().After(session.Deadline()) {
		if _, err := s.endWithReason(ctx, session, models.EndReasonExpired, meta); err != nil {
			s.logger.Error("failed to close expired session inline",
				zap.String("session_id", sessionID), zap.Error(err))
		}
		return nil, appErrors.ErrSessionEnded
	}
	return session, nil
}

func (s *SessionService) loadOwnedSession(ctx context.Context, sessionID string, actor *models.JWTClaims) (*models.ViewingSession, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if repository.IsSessionNotFound(err) {
			return nil, appErrors.ErrSessionNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if session.ViewerID != actor.UserID && actor.Role != models.RoleAdmin && actor.Role != models.RoleSuperAdmin {
		return nil, appErrors.ErrForbidden
	}
	return session, nil
}

func (s *SessionService) appendSessionAudit(ctx context.Context, session *models.ViewingSession, eventType string, meta RequestMeta, detail string) error {
	event := &models.AuditEvent{
		SessionID: &session.ID,
		ViewerID:  &session.ViewerID,
		EventType: eventType,
		Detail:    []byte(detail),
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	}
	return s.audit.Append(ctx, event)
}

func resolveViewer(requested string, actor *models.JWTClaims) (string, error) {
	if actor == nil {
		return "", appErrors.ErrUnauthorized
	}
	if requested == "" || requested == actor.UserID {
		return actor.UserID, nil
	}
	if actor.Role == models.RoleAdmin || actor.Role == models.RoleSuperAdmin {
		return requested, nil
	}
	return "", appErrors.ErrForbidden
}
