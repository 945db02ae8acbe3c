package models

import "time"

// Subscription maps (viewer, course, year) to an access window. Rows are
// produced by the billing collaborator; this service only ever reads them.
type Subscription struct {
	ID        string    `db:"id" json:"id"`
	ViewerID  string    `db:"viewer_id" json:"viewerId"`
	CourseID  string    `db:"course_id" json:"courseId"`
	Year      int       `db:"year" json:"year"`
	Active    bool      `db:"active" json:"active"`
	ExpiresAt time.Time `db:"expires_at" json:"expiresAt"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Usable reports whether the subscription grants access at the given instant.
func (s *Subscription) Usable(now time.Time) bool {
	return s != nil && s.Active && s.ExpiresAt.After(now)
}
