package dto

import "github.com/edvault/edvault-api/internal/models"

// UploadContentRequest carries metadata for a new pending content item.
type UploadContentRequest struct {
	CourseID            string  `form:"courseId" json:"courseId" validate:"required"`
	UnitID              string  `form:"unitId" json:"unitId" validate:"required"`
	TopicID             *string `form:"topicId" json:"topicId,omitempty"`
	Kind                string  `form:"kind" json:"kind" validate:"required"`
	ViewDurationSeconds int     `form:"viewDurationSeconds" json:"viewDurationSeconds"`
}

// ApproveContentRequest promotes a pending item. The reviewer identity comes
// from the access token, not the body.
type ApproveContentRequest struct {
	Notes      string `json:"notes"`
	IsPremium  bool   `json:"isPremium"`
	GatingYear int    `json:"gatingYear"`
}

// RejectContentRequest permanently rejects a pending item.
type RejectContentRequest struct {
	Notes string `json:"notes" validate:"required"`
}

// SetPremiumRequest toggles the premium flag on an approved item.
type SetPremiumRequest struct {
	IsPremium  bool `json:"isPremium"`
	GatingYear int  `json:"gatingYear"`
}

// ContentFilter narrows review-queue listings.
type ContentFilter struct {
	CourseID string
	Kind     models.ContentKind
	Limit    int
	Offset   int
}
