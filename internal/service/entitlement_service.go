package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/edvault/edvault-api/internal/models"
	"github.com/edvault/edvault-api/internal/repository"
	"github.com/edvault/edvault-api/pkg/config"
	appErrors "github.com/edvault/edvault-api/pkg/errors"
)

type contentGetter interface {
	GetByID(ctx context.Context, id string) (*models.ContentItem, error)
}

type subscriptionFinder interface {
	Find(ctx context.Context, viewerID, courseID string, year int) (*models.Subscription, error)
}

type contentCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// EntitlementService answers "may this viewer access this content item right
// now". The answer is computed fresh on every call and never persisted;
// denials carry a distinct not_approved or not_found reason.
type EntitlementService struct {
	content  contentGetter
	subs     subscriptionFinder
	cache    contentCache
	audit    auditAppender
	pricing  config.PricingConfig
	cacheTTL time.Duration
	logger   *zap.Logger
	nowFn    func() time.Time
}

// NewEntitlementService constructs the resolver.
func NewEntitlementService(content contentGetter, subs subscriptionFinder, cache contentCache, audit auditAppender, pricing config.PricingConfig, cacheTTL time.Duration, logger *zap.Logger) *EntitlementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EntitlementService{
		content:  content,
		subs:     subs,
		cache:    cache,
		audit:    audit,
		pricing:  pricing,
		cacheTTL: cacheTTL,
		logger:   logger,
		nowFn:    time.Now,
	}
}

// Resolve decides the entitlement for a viewer and a content item. It is a
// pure read apart from the content cache: callers may hit it once per
// resource per page render, so denials stay cheap and leave no trace. The
// audited denial lives on the Authorize path.
func (s *EntitlementService) Resolve(ctx context.Context, viewerID, contentItemID string) (models.Entitlement, error) {
	item, err := s.loadContent(ctx, contentItemID)
	if err != nil {
		return models.Entitlement{}, err
	}
	if item == nil || item.DeletedAt != nil {
		return models.Entitlement{Status: models.EntitlementDenied, Reason: models.DenialReasonNotFound}, nil
	}
	if item.ApprovalState != models.ApprovalStateApproved {
		return models.Entitlement{Status: models.EntitlementDenied, Reason: models.DenialReasonNotApproved}, nil
	}
	if !item.IsPremium {
		return models.Entitlement{Status: models.EntitlementGranted}, nil
	}

	sub, err := s.subs.Find(ctx, viewerID, item.CourseID, item.GatingYear)
	if err != nil {
		return models.Entitlement{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up subscription")
	}
	if sub != nil && sub.Usable(s.nowFn().UTC()) {
		return models.Entitlement{Status: models.EntitlementGranted}, nil
	}
	return models.Entitlement{
		Status:     models.EntitlementPaymentRequired,
		PriceCents: s.pricing.PremiumYearPriceCents,
	}, nil
}

// Authorize is Resolve plus an error mapping for callers that need a hard
// yes/no, such as session start.
func (s *EntitlementService) Authorize(ctx context.Context, viewerID, contentItemID string) (*models.ContentItem, error) {
	item, err := s.loadContent(ctx, contentItemID)
	if err != nil {
		return nil, err
	}
	if item == nil || item.DeletedAt != nil || item.ApprovalState != models.ApprovalStateApproved {
		reason := models.DenialReasonNotFound
		if item != nil && item.DeletedAt == nil {
			reason = models.DenialReasonNotApproved
		}
		s.auditDenial(ctx, viewerID, contentItemID, reason)
		return nil, appErrors.ErrAccessDenied
	}
	if !item.IsPremium {
		return item, nil
	}

	sub, err := s.subs.Find(ctx, viewerID, item.CourseID, item.GatingYear)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up subscription")
	}
	if sub == nil || !sub.Usable(s.nowFn().UTC()) {
		s.auditDenial(ctx, viewerID, contentItemID, "payment_required")
		return nil, appErrors.Clone(appErrors.ErrAccessDenied, "active subscription required")
	}
	return item, nil
}

// loadContent reads through the Redis cache. Subscriptions are deliberately
// never cached; only the item row is, and every approval mutation
// invalidates it.
func (s *EntitlementService) loadContent(ctx context.Context, id string) (*models.ContentItem, error) {
	key := repository.ContentKey(id)
	if s.cache != nil {
		var cached models.ContentItem
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		} else if !appErrors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("content cache read failed", zap.String("content_item_id", id), zap.Error(err))
		}
	}

	item, err := s.content.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load content item")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, item, s.cacheTTL); err != nil {
			s.logger.Warn("content cache write failed", zap.String("content_item_id", id), zap.Error(err))
		}
	}
	return item, nil
}

// auditDenial records a refused access attempt, best-effort. Only Authorize
// emits it: a refused session start is an access attempt worth a trail row,
// a denied Resolve is routine page rendering.
func (s *EntitlementService) auditDenial(ctx context.Context, viewerID, contentItemID, reason string) {
	if s.audit == nil {
		return
	}
	event := &models.AuditEvent{
		ViewerID:  &viewerID,
		EventType: models.AuditEventEntitlementDenied,
		Detail:    []byte(fmt.Sprintf(`{"contentItemId":%q,"reason":%q}`, contentItemID, reason)),
	}
	if err := s.audit.Append(ctx, event); err != nil {
		s.logger.Warn("audit append failed for denial", zap.String("content_item_id", contentItemID), zap.Error(err))
	}
}
