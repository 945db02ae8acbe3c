package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/edvault/edvault-api/internal/models"
)

// SubscriptionRepository reads the billing collaborator's subscription
// table. This service never writes to it.
type SubscriptionRepository struct {
	db *sqlx.DB
}

// NewSubscriptionRepository constructs the repository.
func NewSubscriptionRepository(db *sqlx.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// Find returns the subscription for (viewer, course, year), or nil when the
// viewer never purchased one.
func (r *SubscriptionRepository) Find(ctx context.Context, viewerID, courseID string, year int) (*models.Subscription, error) {
	const query = `SELECT id, viewer_id, course_id, year, active, expires_at, created_at
	FROM subscriptions
	WHERE viewer_id = $1 AND course_id = $2 AND year = $3
	ORDER BY expires_at DESC LIMIT 1`
	var sub models.Subscription
	if err := r.db.GetContext(ctx, &sub, query, viewerID, courseID, year); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}
