package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edvault/edvault-api/internal/dto"
	"github.com/edvault/edvault-api/internal/models"
	"github.com/edvault/edvault-api/internal/repository"
	appErrors "github.com/edvault/edvault-api/pkg/errors"
)

type contentStore interface {
	Create(ctx context.Context, item *models.ContentItem) error
	GetByID(ctx context.Context, id string) (*models.ContentItem, error)
	Approve(ctx context.Context, id, reviewerID, notes string, isPremium bool, gatingYear int, reviewedAt time.Time, event *models.AuditEvent) (*models.ContentItem, error)
	Reject(ctx context.Context, id, reviewerID, notes string, reviewedAt time.Time, event *models.AuditEvent) (*models.ContentItem, error)
	SetPremium(ctx context.Context, id string, isPremium bool, gatingYear int) (*models.ContentItem, error)
	SoftDelete(ctx context.Context, id string, deletedAt time.Time) error
	List(ctx context.Context, filter models.ContentFilter) ([]models.ContentItem, error)
}

type auditAppender interface {
	Append(ctx context.Context, event *models.AuditEvent) error
}

type contentCacheInvalidator interface {
	Delete(ctx context.Context, key string) error
}

type contentFileStorage interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Delete(filename string) error
}

// ContentUpload carries upload metadata and the stream reader.
type ContentUpload struct {
	Filename string
	Size     int64
	MimeType string
	Content  io.Reader
}

// ApprovalService is the review workflow: it owns every approval-state
// transition of the content catalog. Pending -> approved or rejected, both
// terminal for the review cycle; a re-upload creates a fresh item.
type ApprovalService struct {
	repo      contentStore
	audit     auditAppender
	cache     contentCacheInvalidator
	storage   contentFileStorage
	policy    ViewingPolicy
	validator *validator.Validate
	logger    *zap.Logger
}

// NewApprovalService constructs the workflow service.
func NewApprovalService(repo contentStore, audit auditAppender, cache contentCacheInvalidator, storage contentFileStorage, policy ViewingPolicy, validate *validator.Validate, logger *zap.Logger) *ApprovalService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalService{repo: repo, audit: audit, cache: cache, storage: storage, policy: policy, validator: validate, logger: logger}
}

// Upload stores the artifact and creates a pending content item.
func (s *ApprovalService) Upload(ctx context.Context, meta dto.UploadContentRequest, upload ContentUpload, actor *models.JWTClaims) (*models.ContentItem, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(meta); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid upload metadata")
	}
	kind := models.ContentKind(strings.ToUpper(meta.Kind))
	switch kind {
	case models.ContentKindVideo, models.ContentKindNotes, models.ContentKindCATs,
		models.ContentKindAssignments, models.ContentKindPastExams:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid content kind")
	}
	if upload.Content == nil || upload.Size <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file is required")
	}

	duration := meta.ViewDurationSeconds
	if duration <= 0 {
		duration = int(s.policy.DefaultDuration(kind).Seconds())
	}

	filename := generateArtifactName(string(kind), upload.Filename)
	path, err := s.storage.SaveStream(filename, upload.Content)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist artifact")
	}

	item := &models.ContentItem{
		CourseID:            meta.CourseID,
		UnitID:              meta.UnitID,
		TopicID:             meta.TopicID,
		Kind:                kind,
		FilePath:            path,
		MimeType:            upload.MimeType,
		SizeBytes:           upload.Size,
		ViewDurationSeconds: duration,
		UploadedBy:          actor.UserID,
	}
	if err := s.repo.Create(ctx, item); err != nil {
		_ = s.storage.Delete(path)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create content item")
	}
	return item, nil
}

// Approve promotes a pending item and sets its premium flag. The audit trail
// is a compliance requirement: the state change and the audit append commit
// together, so a failed append leaves the item pending and the caller sees
// AUDIT_UNAVAILABLE.
func (s *ApprovalService) Approve(ctx context.Context, id string, req dto.ApproveContentRequest, actor *models.JWTClaims) (*models.ContentItem, error) {
	if err := requireReviewer(actor); err != nil {
		return nil, err
	}
	if req.IsPremium && req.GatingYear <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "gatingYear required for premium content")
	}

	event := &models.AuditEvent{
		ViewerID:  &actor.UserID,
		EventType: models.AuditEventContentApproved,
		Detail:    []byte(fmt.Sprintf(`{"contentItemId":%q,"isPremium":%t,"gatingYear":%d}`, id, req.IsPremium, req.GatingYear)),
	}
	item, err := s.repo.Approve(ctx, id, actor.UserID, req.Notes, req.IsPremium, req.GatingYear, time.Now().UTC(), event)
	if err != nil {
		return nil, s.reviewError(ctx, id, err)
	}
	s.invalidate(ctx, item.ID)
	return item, nil
}

// Reject marks a pending item rejected; it becomes permanently invisible to
// entitlement checks.
func (s *ApprovalService) Reject(ctx context.Context, id string, req dto.RejectContentRequest, actor *models.JWTClaims) (*models.ContentItem, error) {
	if err := requireReviewer(actor); err != nil {
		return nil, err
	}

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "rejection notes are required")
	}

	event := &models.AuditEvent{
		ViewerID:  &actor.UserID,
		EventType: models.AuditEventContentRejected,
		Detail:    []byte(fmt.Sprintf(`{"contentItemId":%q}`, id)),
	}
	item, err := s.repo.Reject(ctx, id, actor.UserID, req.Notes, time.Now().UTC(), event)
	if err != nil {
		return nil, s.reviewError(ctx, id, err)
	}
	s.invalidate(ctx, item.ID)
	return item, nil
}

// SetPremium toggles the premium flag on an already-approved item without
// re-review.
func (s *ApprovalService) SetPremium(ctx context.Context, id string, req dto.SetPremiumRequest, actor *models.JWTClaims) (*models.ContentItem, error) {
	if err := requireReviewer(actor); err != nil {
		return nil, err
	}
	if req.IsPremium && req.GatingYear <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "gatingYear required for premium content")
	}

	item, err := s.repo.SetPremium(ctx, id, req.IsPremium, req.GatingYear)
	if err != nil {
		return nil, s.reviewError(ctx, id, err)
	}
	s.invalidate(ctx, item.ID)
	return item, nil
}

// Delete soft-deletes an item. Idempotent; in-flight sessions referencing
// the item fail closed on their next media or heartbeat access.
func (s *ApprovalService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin && actor.Role != models.RoleSuperAdmin {
		return appErrors.ErrForbidden
	}

	if err := s.repo.SoftDelete(ctx, id, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete content item")
	}
	s.invalidate(ctx, id)

	if err := s.audit.Append(ctx, &models.AuditEvent{
		ViewerID:  &actor.UserID,
		EventType: models.AuditEventContentDeleted,
		Detail:    []byte(fmt.Sprintf(`{"contentItemId":%q}`, id)),
	}); err != nil {
		s.logger.Error("audit append failed after delete", zap.String("content_item_id", id), zap.Error(err))
	}
	return nil
}

// ListPending returns the review queue.
func (s *ApprovalService) ListPending(ctx context.Context, filter dto.ContentFilter, actor *models.JWTClaims) ([]models.ContentItem, error) {
	if err := requireReviewer(actor); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, models.ContentFilter{
		State:    models.ApprovalStatePending,
		CourseID: filter.CourseID,
		Kind:     filter.Kind,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	})
}

// reviewError maps a failed review transaction: a rolled-back audit append
// surfaces as AuditUnavailable, a failed check-and-set as NotFound or
// InvalidState.
func (s *ApprovalService) reviewError(ctx context.Context, id string, err error) error {
	if errors.Is(err, repository.ErrAuditAppendFailed) {
		s.logger.Error("audit append failed, review rolled back", zap.String("content_item_id", id), zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrAuditUnavailable.Code, appErrors.ErrAuditUnavailable.Status, appErrors.ErrAuditUnavailable.Message)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "review operation failed")
	}
	item, getErr := s.repo.GetByID(ctx, id)
	if getErr != nil || item.DeletedAt != nil {
		return appErrors.ErrNotFound
	}
	return appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("content item is %s", strings.ToLower(string(item.ApprovalState))))
}

func (s *ApprovalService) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, repository.ContentKey(id)); err != nil {
		s.logger.Warn("content cache invalidation failed", zap.String("content_item_id", id), zap.Error(err))
	}
}

func requireReviewer(actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	switch actor.Role {
	case models.RoleReviewer, models.RoleAdmin, models.RoleSuperAdmin:
		return nil
	}
	return appErrors.ErrForbidden
}

func generateArtifactName(kind, original string) string {
	ext := strings.ToLower(filepath.Ext(original))
	if ext == "" {
		ext = ".bin"
	}
	return fmt.Sprintf("content/%s_%d_%s%s", strings.ToLower(kind), time.Now().Unix(), randomSuffix(), ext)
}

func randomSuffix() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
