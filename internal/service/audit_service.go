package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edvault/edvault-api/internal/dto"
	"github.com/edvault/edvault-api/internal/models"
	"github.com/edvault/edvault-api/pkg/config"
	"github.com/edvault/edvault-api/pkg/export"
	appErrors "github.com/edvault/edvault-api/pkg/errors"
	"github.com/edvault/edvault-api/pkg/jobs"
)

type auditLister interface {
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEvent, error)
}

type exportFileStore interface {
	Save(filename string, data []byte) (string, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type exportTokenSigner interface {
	Generate(sessionID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (sessionID, relPath string, expiresAt time.Time, err error)
}

const (
	exportStatusQueued    = "queued"
	exportStatusRunning   = "running"
	exportStatusCompleted = "completed"
	exportStatusFailed    = "failed"
)

// AuditService queries the trail and runs CSV exports as background jobs.
// Export files are short-lived and fetched with the same signed-token scheme
// used for media, keyed on the export job instead of a viewing session.
type AuditService struct {
	repo     auditLister
	files    exportFileStore
	exporter *export.CSVExporter
	signer   exportTokenSigner
	queue    *jobs.Queue
	cfg      config.AuditConfig
	logger   *zap.Logger

	mu      sync.RWMutex
	exports map[string]*dto.AuditExportJob
}

// NewAuditService constructs the audit service. Call StartWorkers before
// accepting export requests and StopWorkers on shutdown.
func NewAuditService(repo auditLister, files exportFileStore, signer exportTokenSigner, cfg config.AuditConfig, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &AuditService{
		repo:     repo,
		files:    files,
		exporter: export.NewCSVExporter(),
		signer:   signer,
		cfg:      cfg,
		logger:   logger,
		exports:  make(map[string]*dto.AuditExportJob),
	}
	s.queue = jobs.NewQueue("audit-export", s.handleExportJob, jobs.QueueConfig{
		Workers:    cfg.WorkerConcurrency,
		MaxRetries: cfg.WorkerRetries,
		Logger:     logger,
	})
	return s
}

// StartWorkers starts the export worker pool.
func (s *AuditService) StartWorkers(ctx context.Context) {
	s.queue.Start(ctx)
}

// StopWorkers drains and stops the export worker pool.
func (s *AuditService) StopWorkers() {
	s.queue.Stop()
}

// Query lists audit events for admins.
func (s *AuditService) Query(ctx context.Context, filter models.AuditFilter, actor *models.JWTClaims) ([]models.AuditEvent, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	events, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit events")
	}
	return events, nil
}

// RequestExport queues a CSV export of the selected trail slice and returns
// the job descriptor to poll.
func (s *AuditService) RequestExport(ctx context.Context, req dto.AuditExportRequest, actor *models.JWTClaims) (*dto.AuditExportJob, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	job := &dto.AuditExportJob{
		ID:          uuid.NewString(),
		Status:      exportStatusQueued,
		RequestedBy: actor.UserID,
		RequestedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.exports[job.ID] = job
	s.mu.Unlock()

	if err := s.queue.Enqueue(jobs.Job{
		ID:      job.ID,
		Type:    "audit_export",
		Payload: req,
	}); err != nil {
		s.setExportFailed(job.ID, err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue export")
	}
	return job, nil
}

// GetExport returns a job descriptor by id.
func (s *AuditService) GetExport(ctx context.Context, id string, actor *models.JWTClaims) (*dto.AuditExportJob, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.exports[id]
	if !ok {
		return nil, appErrors.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

// ResolveDownload validates an export download token and returns the stored
// file name.
func (s *AuditService) ResolveDownload(token string) (string, error) {
	jobID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return "", appErrors.Clone(appErrors.ErrAccessDenied, "invalid or expired download token")
	}
	s.mu.RLock()
	job, ok := s.exports[jobID]
	s.mu.RUnlock()
	if !ok || job.Status != exportStatusCompleted {
		return "", appErrors.ErrNotFound
	}
	return relPath, nil
}

// CleanupExports deletes export files past their TTL.
func (s *AuditService) CleanupExports() {
	deleted, err := s.files.CleanupOlderThan(s.cfg.ExportTTL)
	if err != nil {
		s.logger.Error("export cleanup failed", zap.Error(err))
		return
	}
	if len(deleted) > 0 {
		s.logger.Info("removed expired export files", zap.Int("count", len(deleted)))
	}
}

func (s *AuditService) handleExportJob(ctx context.Context, job jobs.Job) error {
	req, ok := job.Payload.(dto.AuditExportRequest)
	if !ok {
		s.setExportFailed(job.ID, fmt.Errorf("bad export payload"))
		return nil
	}
	s.setExportStatus(job.ID, exportStatusRunning)

	filter := models.AuditFilter{
		EventType: req.EventType,
		ViewerID:  req.ViewerID,
		Since:     req.Since,
		Until:     req.Until,
		Limit:     1000,
	}

	headers := []string{"id", "session_id", "viewer_id", "event_type", "detail", "ip_address", "user_agent", "created_at"}
	rows := make([]map[string]string, 0, 256)
	for {
		events, err := s.repo.List(ctx, filter)
		if err != nil {
			s.setExportFailed(job.ID, err)
			return err
		}
		for _, e := range events {
			rows = append(rows, map[string]string{
				"id":         e.ID,
				"session_id": deref(e.SessionID),
				"viewer_id":  deref(e.ViewerID),
				"event_type": e.EventType,
				"detail":     string(e.Detail),
				"ip_address": e.IPAddress,
				"user_agent": e.UserAgent,
				"created_at": e.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
		if len(events) < filter.Limit {
			break
		}
		filter.Offset += filter.Limit
	}

	payload, err := s.exporter.Render(export.Dataset{Headers: headers, Rows: rows})
	if err != nil {
		s.setExportFailed(job.ID, err)
		return err
	}

	filename := fmt.Sprintf("audit_%s.csv", job.ID)
	if _, err := s.files.Save(filename, payload); err != nil {
		s.setExportFailed(job.ID, err)
		return err
	}

	token, _, err := s.signer.Generate(job.ID, filename)
	if err != nil {
		s.setExportFailed(job.ID, err)
		return err
	}

	now := time.Now().UTC()
	s.mu.Lock()
	if rec, ok := s.exports[job.ID]; ok {
		rec.Status = exportStatusCompleted
		rec.CompletedAt = &now
		rec.DownloadURL = "/audit/export-files/" + token
	}
	s.mu.Unlock()
	s.logger.Info("audit export completed", zap.String("job_id", job.ID), zap.Int("rows", len(rows)))
	return nil
}

func (s *AuditService) setExportStatus(id, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.exports[id]; ok {
		rec.Status = status
	}
}

func (s *AuditService) setExportFailed(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.exports[id]; ok {
		rec.Status = exportStatusFailed
		rec.Error = err.Error()
	}
}

func requireAdmin(actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin && actor.Role != models.RoleSuperAdmin {
		return appErrors.ErrForbidden
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
