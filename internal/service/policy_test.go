package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/edvault/edvault-api/internal/models"
	"github.com/edvault/edvault-api/pkg/config"
)

func TestViewingPolicyTable(t *testing.T) {
	policy := NewViewingPolicy(config.SessionsConfig{
		MaxViewsPastExams: 1,
		MaxViewsCATs:      3,
		DurationPastExams: 30 * time.Minute,
		DurationCATs:      20 * time.Minute,
	})

	assert.Equal(t, 1, policy.MaxViews(models.ContentKindPastExams))
	assert.Equal(t, 3, policy.MaxViews(models.ContentKindCATs))
	assert.Equal(t, 0, policy.MaxViews(models.ContentKindNotes))

	assert.Equal(t, 30*time.Minute, policy.DefaultDuration(models.ContentKindPastExams))
	assert.Equal(t, 20*time.Minute, policy.DefaultDuration(models.ContentKindCATs))

	assert.True(t, policy.SessionRequired(models.ContentKindPastExams))
	assert.True(t, policy.SessionRequired(models.ContentKindCATs))
	assert.False(t, policy.SessionRequired(models.ContentKindVideo))
	assert.False(t, policy.SessionRequired(models.ContentKindNotes))
}
