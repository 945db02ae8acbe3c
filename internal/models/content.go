package models

import "time"

// ContentKind classifies uploaded material. Sensitive kinds (CATs, past
// exams) are only reachable through a secure viewing session.
type ContentKind string

const (
	ContentKindVideo       ContentKind = "VIDEO"
	ContentKindNotes       ContentKind = "NOTES"
	ContentKindCATs        ContentKind = "CATS"
	ContentKindAssignments ContentKind = "ASSIGNMENTS"
	ContentKindPastExams   ContentKind = "PAST_EXAMS"
)

// ApprovalState tracks the review lifecycle of a content item. Approved and
// rejected are terminal; a re-upload creates a new item.
type ApprovalState string

const (
	ApprovalStatePending  ApprovalState = "PENDING"
	ApprovalStateApproved ApprovalState = "APPROVED"
	ApprovalStateRejected ApprovalState = "REJECTED"
)

// ContentItem represents one piece of uploaded material.
type ContentItem struct {
	ID            string        `db:"id" json:"id"`
	CourseID      string        `db:"course_id" json:"courseId"`
	UnitID        string        `db:"unit_id" json:"unitId"`
	TopicID       *string       `db:"topic_id" json:"topicId,omitempty"`
	Kind          ContentKind   `db:"kind" json:"kind"`
	ApprovalState ApprovalState `db:"approval_state" json:"approvalState"`
	IsPremium     bool          `db:"is_premium" json:"isPremium"`
	GatingYear    int           `db:"gating_year" json:"gatingYear"`
	FilePath      string        `db:"file_path" json:"-"`
	MimeType      string        `db:"mime_type" json:"mimeType"`
	SizeBytes     int64         `db:"size_bytes" json:"sizeBytes"`
	// ViewDurationSeconds is the configured secure-viewing window. Sessions
	// snapshot it at start, so later edits never shorten a live session.
	ViewDurationSeconds int        `db:"view_duration_seconds" json:"viewDurationSeconds"`
	UploadedBy          string     `db:"uploaded_by" json:"uploadedBy"`
	ReviewedBy          *string    `db:"reviewed_by" json:"reviewedBy,omitempty"`
	ReviewNotes         *string    `db:"review_notes" json:"reviewNotes,omitempty"`
	UploadedAt          time.Time  `db:"uploaded_at" json:"uploadedAt"`
	ReviewedAt          *time.Time `db:"reviewed_at" json:"reviewedAt,omitempty"`
	DeletedAt           *time.Time `db:"deleted_at" json:"deletedAt,omitempty"`
}

// Visible reports whether the item can be served at all.
func (c *ContentItem) Visible() bool {
	return c != nil && c.ApprovalState == ApprovalStateApproved && c.DeletedAt == nil
}

// ContentFilter narrows review-queue listings.
type ContentFilter struct {
	State    ApprovalState
	CourseID string
	Kind     ContentKind
	Limit    int
	Offset   int
}
