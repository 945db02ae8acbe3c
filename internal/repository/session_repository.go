package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/edvault/edvault-api/internal/models"
)

const sessionColumns = `id, viewer_id, content_item_id, state, started_at, duration_seconds,
       max_views, end_reason, ended_at, last_heartbeat_at, violation_count, violation_window_at, created_at`

// ErrViewLimitReached is returned by Register when the ended-session count
// already meets the max for the pair.
var ErrViewLimitReached = errors.New("view limit reached")

// ErrActiveSessionExists is returned by Register when the pair already has a
// live session.
var ErrActiveSessionExists = errors.New("active session exists")

// SessionRepository is the session store: the registry of live and ended
// viewing sessions. Ended rows are never deleted; counting them is the
// persisted view counter. All register/end paths for one
// (viewer, content item) pair serialize on a Postgres advisory lock, and a
// partial unique index on active pairs backstops the exclusivity guarantee.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Register atomically checks the view count and inserts the new active
// session. The advisory lock makes the count-then-insert a single unit with
// respect to concurrent Register and End calls for the same pair; different
// pairs do not contend.
func (r *SessionRepository) Register(ctx context.Context, session *models.ViewingSession) (viewsConsumed int, err error) {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	session.State = models.SessionStateActive

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin session register: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = lockPair(ctx, tx, session.ViewerID, session.ContentItemID); err != nil {
		return 0, err
	}

	const countQuery = `SELECT COUNT(*) FROM viewing_sessions
	WHERE viewer_id = $1 AND content_item_id = $2 AND state = $3 AND end_reason <> $4`
	if err = tx.GetContext(ctx, &viewsConsumed, countQuery,
		session.ViewerID, session.ContentItemID, models.SessionStateEnded, models.EndReasonRevoked); err != nil {
		return 0, fmt.Errorf("count ended sessions: %w", err)
	}
	if session.MaxViews > 0 && viewsConsumed >= session.MaxViews {
		err = ErrViewLimitReached
		return viewsConsumed, err
	}

	const insertQuery = `INSERT INTO viewing_sessions
	(id, viewer_id, content_item_id, state, started_at, duration_seconds, max_views, violation_count, created_at)
	VALUES (:id, :viewer_id, :content_item_id, :state, :started_at, :duration_seconds, :max_views, 0, :created_at)`
	if _, err = tx.NamedExecContext(ctx, insertQuery, session); err != nil {
		if isUniqueViolation(err) {
			err = ErrActiveSessionExists
			return viewsConsumed, err
		}
		return viewsConsumed, fmt.Errorf("insert session: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return viewsConsumed, fmt.Errorf("commit session register: %w", err)
	}
	return viewsConsumed, nil
}

// GetByID retrieves one session row.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.ViewingSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM viewing_sessions WHERE id = $1`
	var session models.ViewingSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// End transitions a session to ended, stamping the first reason to arrive.
// Ending an already-ended session reports ended=false without error, so the
// expiry sweep and manual closes can race safely.
func (r *SessionRepository) End(ctx context.Context, id string, reason models.EndReason, endedAt time.Time) (ended bool, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin session end: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var pair struct {
		ViewerID      string `db:"viewer_id"`
		ContentItemID string `db:"content_item_id"`
	}
	if err = tx.GetContext(ctx, &pair,
		`SELECT viewer_id, content_item_id FROM viewing_sessions WHERE id = $1`, id); err != nil {
		return false, err
	}
	if err = lockPair(ctx, tx, pair.ViewerID, pair.ContentItemID); err != nil {
		return false, err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE viewing_sessions SET state = $2, end_reason = $3, ended_at = $4
		 WHERE id = $1 AND state = $5`,
		id, models.SessionStateEnded, reason, endedAt, models.SessionStateActive)
	if err != nil {
		return false, fmt.Errorf("end session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check end rows: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit session end: %w", err)
	}
	return affected > 0, nil
}

// Touch records a heartbeat timestamp on an active session.
func (r *SessionRepository) Touch(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE viewing_sessions SET last_heartbeat_at = $2 WHERE id = $1 AND state = $3`
	if _, err := r.db.ExecContext(ctx, query, id, at, models.SessionStateActive); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// UpdateViolations stores the rolling violation counter and window start.
func (r *SessionRepository) UpdateViolations(ctx context.Context, id string, count int, windowAt time.Time) error {
	const query = `UPDATE viewing_sessions SET violation_count = $2, violation_window_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, count, windowAt); err != nil {
		return fmt.Errorf("update session violations: %w", err)
	}
	return nil
}

// ListExpired returns active sessions past their wall-clock deadline, or
// silent beyond the heartbeat timeout when one is configured.
func (r *SessionRepository) ListExpired(ctx context.Context, now time.Time, heartbeatTimeout time.Duration) ([]models.ViewingSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM viewing_sessions
	WHERE state = $1 AND (started_at + duration_seconds * INTERVAL '1 second') <= $2`
	args := []interface{}{models.SessionStateActive, now}
	if heartbeatTimeout > 0 {
		query = `SELECT ` + sessionColumns + ` FROM viewing_sessions
	WHERE state = $1 AND ((started_at + duration_seconds * INTERVAL '1 second') <= $2
	   OR COALESCE(last_heartbeat_at, started_at) <= $3)`
		args = append(args, now.Add(-heartbeatTimeout))
	}
	var sessions []models.ViewingSession
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("list expired sessions: %w", err)
	}
	return sessions, nil
}

// CountEndedViews returns consumed views for a pair (ended, not revoked).
func (r *SessionRepository) CountEndedViews(ctx context.Context, viewerID, contentItemID string) (int, error) {
	const query = `SELECT COUNT(*) FROM viewing_sessions
	WHERE viewer_id = $1 AND content_item_id = $2 AND state = $3 AND end_reason <> $4`
	var count int
	if err := r.db.GetContext(ctx, &count, query,
		viewerID, contentItemID, models.SessionStateEnded, models.EndReasonRevoked); err != nil {
		return 0, fmt.Errorf("count ended views: %w", err)
	}
	return count, nil
}

// IsSessionNotFound reports whether the error is the no-rows signal.
func IsSessionNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func lockPair(ctx context.Context, tx *sqlx.Tx, viewerID, contentItemID string) error {
	if _, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1 || ':' || $2))`, viewerID, contentItemID); err != nil {
		return fmt.Errorf("acquire pair lock: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
