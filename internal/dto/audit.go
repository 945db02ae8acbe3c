package dto

import "time"

// AuditExportRequest selects the slice of the audit trail to export.
type AuditExportRequest struct {
	EventType string     `json:"eventType"`
	ViewerID  string     `json:"viewerId"`
	Since     *time.Time `json:"since"`
	Until     *time.Time `json:"until"`
}

// AuditExportJob describes the status of an export request.
type AuditExportJob struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	RequestedBy string     `json:"requestedBy"`
	RequestedAt time.Time  `json:"requestedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	DownloadURL string     `json:"downloadUrl,omitempty"`
	Error       string     `json:"error,omitempty"`
}
