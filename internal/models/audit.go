package models

import "time"

// Audit event types cover the session lifecycle and the approval workflow.
// Values are part of the external contract and are stable.
const (
	AuditEventSessionStarted    = "session_started"
	AuditEventSessionHeartbeat  = "session_heartbeat"
	AuditEventSessionEnded      = "session_ended"
	AuditEventSecurityViolation = "security_violation_attempted"
	AuditEventContentApproved   = "content_approved"
	AuditEventContentRejected   = "content_rejected"
	AuditEventContentDeleted    = "content_deleted"
	AuditEventEntitlementDenied = "entitlement_denied"
)

// AuditEvent is an immutable record of a security- or workflow-relevant
// occurrence. The log is append-only; rows are never updated or deleted.
type AuditEvent struct {
	ID        string    `db:"id" json:"id"`
	SessionID *string   `db:"session_id" json:"sessionId,omitempty"`
	ViewerID  *string   `db:"viewer_id" json:"viewerId,omitempty"`
	EventType string    `db:"event_type" json:"eventType"`
	Detail    []byte    `db:"detail" json:"detail,omitempty"`
	IPAddress string    `db:"ip_address" json:"ipAddress"`
	UserAgent string    `db:"user_agent" json:"userAgent"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// AuditFilter narrows audit listings for the admin query endpoint.
type AuditFilter struct {
	EventType string
	ViewerID  string
	SessionID string
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}
