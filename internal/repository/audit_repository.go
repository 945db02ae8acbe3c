package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edvault/edvault-api/internal/models"
)

// ErrAuditAppendFailed marks a failed audit insert inside a larger
// transaction, so callers can map it separately from the primary statement.
var ErrAuditAppendFailed = errors.New("audit append failed")

const auditInsertQuery = `INSERT INTO audit_events
	(id, session_id, viewer_id, event_type, detail, ip_address, user_agent, created_at)
	VALUES (:id, :session_id, :viewer_id, :event_type, :detail, :ip_address, :user_agent, :created_at)`

// AuditRepository appends and queries the immutable audit trail.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts one audit event. There is no update or delete path.
func (r *AuditRepository) Append(ctx context.Context, event *models.AuditEvent) error {
	stampAuditEvent(event)
	if _, err := r.db.NamedExecContext(ctx, auditInsertQuery, event); err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// appendAuditEventTx inserts one audit event inside the caller's transaction.
func appendAuditEventTx(ctx context.Context, tx *sqlx.Tx, event *models.AuditEvent) error {
	stampAuditEvent(event)
	if _, err := tx.NamedExecContext(ctx, auditInsertQuery, event); err != nil {
		return fmt.Errorf("%w: %v", ErrAuditAppendFailed, err)
	}
	return nil
}

func stampAuditEvent(event *models.AuditEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
}

// List returns audit events matching the filter, newest first.
func (r *AuditRepository) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEvent, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT id, session_id, viewer_id, event_type, detail, ip_address, user_agent, created_at
	FROM audit_events`)
	args := make([]interface{}, 0, 5)
	conditions := make([]string, 0, 5)

	if filter.EventType != "" {
		args = append(args, filter.EventType)
		conditions = append(conditions, fmt.Sprintf("event_type = $%d", len(args)))
	}
	if filter.ViewerID != "" {
		args = append(args, filter.ViewerID)
		conditions = append(conditions, fmt.Sprintf("viewer_id = $%d", len(args)))
	}
	if filter.SessionID != "" {
		args = append(args, filter.SessionID)
		conditions = append(conditions, fmt.Sprintf("session_id = $%d", len(args)))
	}
	if filter.Since != nil {
		args = append(args, *filter.Since)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.Until != nil {
		args = append(args, *filter.Until)
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var events []models.AuditEvent
	if err := r.db.SelectContext(ctx, &events, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	return events, nil
}
