package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/edvault/edvault-api/internal/models"
)

func newContentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func contentRows(id string, state models.ApprovalState) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "course_id", "unit_id", "topic_id", "kind", "approval_state", "is_premium",
		"gating_year", "file_path", "mime_type", "size_bytes", "view_duration_seconds",
		"uploaded_by", "reviewed_by", "review_notes", "uploaded_at", "reviewed_at", "deleted_at",
	}).AddRow(id, "course-1", "unit-1", nil, models.ContentKindPastExams, state, false,
		0, "content/exam.png", "image/png", 2048, 1800,
		"uploader-1", nil, nil, time.Now(), nil, nil)
}

func reviewAuditEvent(eventType string) *models.AuditEvent {
	reviewer := "reviewer-1"
	return &models.AuditEvent{ViewerID: &reviewer, EventType: eventType, Detail: []byte(`{}`)}
}

func TestContentRepositoryApprove(t *testing.T) {
	db, mock, cleanup := newContentRepoMock(t)
	defer cleanup()
	repo := NewContentRepository(db)

	reviewedAt := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE content_items").
		WithArgs("item-1", models.ApprovalStateApproved, true, 2026,
			"reviewer-1", "looks good", reviewedAt, models.ApprovalStatePending).
		WillReturnRows(contentRows("item-1", models.ApprovalStateApproved))
	mock.ExpectExec("INSERT INTO audit_events").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	item, err := repo.Approve(context.Background(), "item-1", "reviewer-1", "looks good", true, 2026, reviewedAt,
		reviewAuditEvent(models.AuditEventContentApproved))
	require.NoError(t, err)
	require.Equal(t, models.ApprovalStateApproved, item.ApprovalState)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContentRepositoryApprovePreconditionFailed(t *testing.T) {
	db, mock, cleanup := newContentRepoMock(t)
	defer cleanup()
	repo := NewContentRepository(db)

	reviewedAt := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE content_items").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.Approve(context.Background(), "item-1", "reviewer-1", "", false, 0, reviewedAt,
		reviewAuditEvent(models.AuditEventContentApproved))
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContentRepositoryApproveRollsBackOnAuditFailure(t *testing.T) {
	db, mock, cleanup := newContentRepoMock(t)
	defer cleanup()
	repo := NewContentRepository(db)

	reviewedAt := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE content_items").
		WillReturnRows(contentRows("item-1", models.ApprovalStateApproved))
	mock.ExpectExec("INSERT INTO audit_events").
		WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	_, err := repo.Approve(context.Background(), "item-1", "reviewer-1", "", false, 0, reviewedAt,
		reviewAuditEvent(models.AuditEventContentApproved))
	require.ErrorIs(t, err, ErrAuditAppendFailed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContentRepositorySoftDeleteIdempotent(t *testing.T) {
	db, mock, cleanup := newContentRepoMock(t)
	defer cleanup()
	repo := NewContentRepository(db)

	deletedAt := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE content_items SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL")).
		WithArgs("item-1", deletedAt).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM content_items WHERE id = $1)")).
		WithArgs("item-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := repo.SoftDelete(context.Background(), "item-1", deletedAt)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContentRepositorySoftDeleteMissing(t *testing.T) {
	db, mock, cleanup := newContentRepoMock(t)
	defer cleanup()
	repo := NewContentRepository(db)

	deletedAt := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE content_items SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL")).
		WithArgs("ghost", deletedAt).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM content_items WHERE id = $1)")).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := repo.SoftDelete(context.Background(), "ghost", deletedAt)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContentRepositoryListFiltersByState(t *testing.T) {
	db, mock, cleanup := newContentRepoMock(t)
	defer cleanup()
	repo := NewContentRepository(db)

	mock.ExpectQuery("SELECT .+ FROM content_items WHERE deleted_at IS NULL AND approval_state = \\$1").
		WithArgs(models.ApprovalStatePending).
		WillReturnRows(contentRows("item-1", models.ApprovalStatePending))

	items, err := repo.List(context.Background(), models.ContentFilter{State: models.ApprovalStatePending})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
