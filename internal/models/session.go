package models

import "time"

// SessionState is the viewing session lifecycle. Created -> active -> ended;
// no other transitions exist.
type SessionState string

const (
	SessionStateCreated SessionState = "CREATED"
	SessionStateActive  SessionState = "ACTIVE"
	SessionStateEnded   SessionState = "ENDED"
)

// EndReason records why a session ended. The first reason wins; ending an
// already-ended session is a no-op.
type EndReason string

const (
	EndReasonManual    EndReason = "MANUAL"
	EndReasonExpired   EndReason = "EXPIRED"
	EndReasonViewLimit EndReason = "VIEW_LIMIT"
	EndReasonRevoked   EndReason = "REVOKED"
)

// ViewingSession is a server-tracked, time-boxed grant of one viewing of a
// sensitive content item. Ended rows are retained forever; counting them is
// how consumed views are tracked.
type ViewingSession struct {
	ID            string       `db:"id" json:"id"`
	ViewerID      string       `db:"viewer_id" json:"viewerId"`
	ContentItemID string       `db:"content_item_id" json:"contentItemId"`
	State         SessionState `db:"state" json:"state"`
	StartedAt     time.Time    `db:"started_at" json:"startedAt"`
	// DurationSeconds is snapshotted from the content item at start and
	// never changes afterwards, even if the item's configuration does.
	DurationSeconds   int        `db:"duration_seconds" json:"durationSeconds"`
	MaxViews          int        `db:"max_views" json:"maxViews"`
	EndReason         *EndReason `db:"end_reason" json:"endReason,omitempty"`
	EndedAt           *time.Time `db:"ended_at" json:"endedAt,omitempty"`
	LastHeartbeatAt   *time.Time `db:"last_heartbeat_at" json:"lastHeartbeatAt,omitempty"`
	ViolationCount    int        `db:"violation_count" json:"violationCount"`
	ViolationWindowAt *time.Time `db:"violation_window_at" json:"-"`
	CreatedAt         time.Time  `db:"created_at" json:"createdAt"`
}

// Deadline is the wall-clock instant the session expires, independent of
// heartbeats.
func (s *ViewingSession) Deadline() time.Time {
	return s.StartedAt.Add(time.Duration(s.DurationSeconds) * time.Second)
}

// RemainingSeconds returns the seconds left before the deadline, floored at zero.
func (s *ViewingSession) RemainingSeconds(now time.Time) int {
	remaining := int(s.Deadline().Sub(now).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// SessionHandle is the opaque grant returned by Start. The access token is
// the only way to fetch media bytes; the raw storage path stays server-side.
type SessionHandle struct {
	SessionID       string    `json:"sessionId"`
	AccessToken     string    `json:"accessToken"`
	DurationSeconds int       `json:"durationSeconds"`
	MaxViews        int       `json:"maxViews"`
	ViewsConsumed   int       `json:"viewsConsumed"`
	TokenExpiresAt  time.Time `json:"tokenExpiresAt"`
}
