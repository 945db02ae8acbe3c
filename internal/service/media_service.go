package service

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/edvault/edvault-api/internal/models"
	"github.com/edvault/edvault-api/pkg/export"
	appErrors "github.com/edvault/edvault-api/pkg/errors"
)

type accessTokenParser interface {
	Parse(token string, allowExpired bool) (sessionID, relPath string, expiresAt time.Time, err error)
}

type mediaReader interface {
	Open(filename string) (*os.File, error)
}

type sessionValidator interface {
	ValidateForMedia(ctx context.Context, sessionID string) (*models.ViewingSession, error)
}

// MediaPayload is the resolved artifact ready to stream.
type MediaPayload struct {
	Reader      io.ReadCloser
	MimeType    string
	Watermarked bool
}

// MediaService streams artifact bytes against a signed access token. The
// token alone is never enough: the embedded session is re-validated on every
// request, so a terminated or expired session cuts off access immediately
// even while the token is still within its own TTL.
type MediaService struct {
	tokens      accessTokenParser
	files       mediaReader
	sessions    sessionValidator
	watermarker *export.Watermarker
	watermark   bool
	logger      *zap.Logger
	nowFn       func() time.Time
}

// NewMediaService constructs the media gateway.
func NewMediaService(tokens accessTokenParser, files mediaReader, sessions sessionValidator, watermarker *export.Watermarker, watermarkEnabled bool, logger *zap.Logger) *MediaService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MediaService{
		tokens:      tokens,
		files:       files,
		sessions:    sessions,
		watermarker: watermarker,
		watermark:   watermarkEnabled,
		logger:      logger,
		nowFn:       time.Now,
	}
}

// Fetch validates the token and its session, then returns the artifact.
// Watermarkable images are re-rendered with the viewer identity baked in.
func (s *MediaService) Fetch(ctx context.Context, token string) (*MediaPayload, error) {
	sessionID, relPath, _, err := s.tokens.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrAccessDenied, "invalid or expired access token")
	}

	session, err := s.sessions.ValidateForMedia(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	file, err := s.files.Open(relPath)
	if err != nil {
		s.logger.Error("artifact missing for valid token",
			zap.String("session_id", sessionID), zap.Error(err))
		return nil, appErrors.ErrNotFound
	}

	mimeType := mimeFromPath(relPath)
	imageType := watermarkImageType(mimeType)
	if !s.watermark || s.watermarker == nil || imageType == "" {
		return &MediaPayload{Reader: file, MimeType: mimeType}, nil
	}

	raw, err := io.ReadAll(file)
	_ = file.Close()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read artifact")
	}
	rendered, err := s.watermarker.Render(export.WatermarkInput{
		Image:     raw,
		ImageType: imageType,
		ViewerID:  session.ViewerID,
		SessionID: session.ID,
		IssuedAt:  s.nowFn().UTC(),
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to watermark artifact")
	}
	return &MediaPayload{
		Reader:      io.NopCloser(bytes.NewReader(rendered)),
		MimeType:    "application/pdf",
		Watermarked: true,
	}, nil
}

func mimeFromPath(path string) string {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".png"):
		return "image/png"
	case strings.HasSuffix(lower, ".jpg"), strings.HasSuffix(lower, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(lower, ".pdf"):
		return "application/pdf"
	case strings.HasSuffix(lower, ".mp4"):
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}

func watermarkImageType(mimeType string) string {
	switch mimeType {
	case "image/png":
		return "PNG"
	case "image/jpeg":
		return "JPG"
	}
	return ""
}
