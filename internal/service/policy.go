package service

import (
	"time"

	"github.com/edvault/edvault-api/internal/models"
	"github.com/edvault/edvault-api/pkg/config"
)

// ViewingPolicy is the single authoritative policy table keyed by content
// kind. Numbers come from configuration, not code.
type ViewingPolicy struct {
	cfg config.SessionsConfig
}

// NewViewingPolicy builds the policy table from configuration.
func NewViewingPolicy(cfg config.SessionsConfig) ViewingPolicy {
	return ViewingPolicy{cfg: cfg}
}

// MaxViews returns the lifetime view allowance for a kind. Zero means the
// kind is not view-limited and needs no secure session.
func (p ViewingPolicy) MaxViews(kind models.ContentKind) int {
	switch kind {
	case models.ContentKindPastExams:
		return p.cfg.MaxViewsPastExams
	case models.ContentKindCATs:
		return p.cfg.MaxViewsCATs
	default:
		return 0
	}
}

// DefaultDuration returns the viewing window used when an item does not
// carry its own configured duration.
func (p ViewingPolicy) DefaultDuration(kind models.ContentKind) time.Duration {
	switch kind {
	case models.ContentKindPastExams:
		return p.cfg.DurationPastExams
	case models.ContentKindCATs:
		return p.cfg.DurationCATs
	default:
		return 0
	}
}

// SessionRequired reports whether the kind may only be viewed through a
// secure viewing session.
func (p ViewingPolicy) SessionRequired(kind models.ContentKind) bool {
	return p.MaxViews(kind) > 0
}
