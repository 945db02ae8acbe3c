package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edvault/edvault-api/internal/models"
)

const contentColumns = `id, course_id, unit_id, topic_id, kind, approval_state, is_premium,
       gating_year, file_path, mime_type, size_bytes, view_duration_seconds,
       uploaded_by, reviewed_by, review_notes, uploaded_at, reviewed_at, deleted_at`

// ContentRepository persists content items and their approval state.
type ContentRepository struct {
	db *sqlx.DB
}

// NewContentRepository constructs the repository.
func NewContentRepository(db *sqlx.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

// Create stores a new pending content item.
func (r *ContentRepository) Create(ctx context.Context, item *models.ContentItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.UploadedAt.IsZero() {
		item.UploadedAt = time.Now().UTC()
	}
	item.ApprovalState = models.ApprovalStatePending
	const query = `INSERT INTO content_items
	(id, course_id, unit_id, topic_id, kind, approval_state, is_premium, gating_year,
	 file_path, mime_type, size_bytes, view_duration_seconds, uploaded_by, uploaded_at)
	VALUES (:id, :course_id, :unit_id, :topic_id, :kind, :approval_state, :is_premium, :gating_year,
	 :file_path, :mime_type, :size_bytes, :view_duration_seconds, :uploaded_by, :uploaded_at)`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("create content item: %w", err)
	}
	return nil
}

// GetByID retrieves one content item, including soft-deleted rows. Callers
// decide whether a deleted row is visible.
func (r *ContentRepository) GetByID(ctx context.Context, id string) (*models.ContentItem, error) {
	query := `SELECT ` + contentColumns + ` FROM content_items WHERE id = $1`
	var item models.ContentItem
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// Approve promotes a pending item in a single check-and-set statement. The
// WHERE clause carries the state precondition, so concurrent reviews cannot
// both apply. The audit event is inserted in the same transaction: when the
// append fails the approval rolls back and never becomes visible. Returns
// sql.ErrNoRows when the precondition failed.
func (r *ContentRepository) Approve(ctx context.Context, id, reviewerID, notes string, isPremium bool, gatingYear int, reviewedAt time.Time, event *models.AuditEvent) (*models.ContentItem, error) {
	query := `UPDATE content_items
	SET approval_state = $2, is_premium = $3, gating_year = $4,
	    reviewed_by = $5, review_notes = $6, reviewed_at = $7
	WHERE id = $1 AND approval_state = $8 AND deleted_at IS NULL
	RETURNING ` + contentColumns
	return r.reviewTx(ctx, event, func(tx *sqlx.Tx, item *models.ContentItem) error {
		return tx.GetContext(ctx, item, query, id,
			models.ApprovalStateApproved, isPremium, gatingYear,
			reviewerID, notes, reviewedAt, models.ApprovalStatePending)
	})
}

// Reject marks a pending item rejected with the same check-and-set guard and
// the same transactional audit append.
func (r *ContentRepository) Reject(ctx context.Context, id, reviewerID, notes string, reviewedAt time.Time, event *models.AuditEvent) (*models.ContentItem, error) {
	query := `UPDATE content_items
	SET approval_state = $2, reviewed_by = $3, review_notes = $4, reviewed_at = $5
	WHERE id = $1 AND approval_state = $6 AND deleted_at IS NULL
	RETURNING ` + contentColumns
	return r.reviewTx(ctx, event, func(tx *sqlx.Tx, item *models.ContentItem) error {
		return tx.GetContext(ctx, item, query, id,
			models.ApprovalStateRejected, reviewerID, notes, reviewedAt, models.ApprovalStatePending)
	})
}

// reviewTx runs the review statement and the audit append in one transaction.
func (r *ContentRepository) reviewTx(ctx context.Context, event *models.AuditEvent, update func(tx *sqlx.Tx, item *models.ContentItem) error) (*models.ContentItem, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin review tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var item models.ContentItem
	if err := update(tx, &item); err != nil {
		return nil, err
	}
	if event != nil {
		if err := appendAuditEventTx(ctx, tx, event); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit review tx: %w", err)
	}
	return &item, nil
}

// SetPremium toggles the premium flag on an already-approved item.
func (r *ContentRepository) SetPremium(ctx context.Context, id string, isPremium bool, gatingYear int) (*models.ContentItem, error) {
	query := `UPDATE content_items
	SET is_premium = $2, gating_year = $3
	WHERE id = $1 AND approval_state = $4 AND deleted_at IS NULL
	RETURNING ` + contentColumns
	var item models.ContentItem
	err := r.db.GetContext(ctx, &item, query, id, isPremium, gatingYear, models.ApprovalStateApproved)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// SoftDelete marks an item deleted. Deleting an already-deleted row is a
// no-op so administrative deletes stay idempotent.
func (r *ContentRepository) SoftDelete(ctx context.Context, id string, deletedAt time.Time) error {
	const query = `UPDATE content_items SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, deletedAt)
	if err != nil {
		return fmt.Errorf("soft delete content item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check content delete rows: %w", err)
	}
	if affected == 0 {
		// Distinguish "never existed" from "already deleted".
		var exists bool
		if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM content_items WHERE id = $1)`, id); err != nil {
			return fmt.Errorf("check content existence: %w", err)
		}
		if !exists {
			return sql.ErrNoRows
		}
	}
	return nil
}

// List returns content items applying filters, excluding deleted rows.
func (r *ContentRepository) List(ctx context.Context, filter models.ContentFilter) ([]models.ContentItem, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + contentColumns + ` FROM content_items`)
	args := make([]interface{}, 0, 3)
	conditions := []string{"deleted_at IS NULL"}

	if filter.State != "" {
		args = append(args, filter.State)
		conditions = append(conditions, fmt.Sprintf("approval_state = $%d", len(args)))
	}
	if filter.CourseID != "" {
		args = append(args, filter.CourseID)
		conditions = append(conditions, fmt.Sprintf("course_id = $%d", len(args)))
	}
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		conditions = append(conditions, fmt.Sprintf("kind = $%d", len(args)))
	}

	builder.WriteString(" WHERE ")
	builder.WriteString(strings.Join(conditions, " AND "))
	builder.WriteString(" ORDER BY uploaded_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var records []models.ContentItem
	if err := r.db.SelectContext(ctx, &records, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list content items: %w", err)
	}
	return records, nil
}

// IsNotFound reports whether the error is the repository's no-rows signal.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
