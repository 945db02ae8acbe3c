package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// WatermarkInput bundles an image artifact with the identity stamped into it.
type WatermarkInput struct {
	Image     []byte
	ImageType string // "PNG" or "JPG"
	ViewerID  string
	SessionID string
	IssuedAt  time.Time
}

// Watermarker renders a sensitive image artifact onto a PDF page with the
// viewer identity and timestamp baked into the delivered pixels. The client
// never receives the clean artifact, so stripping an overlay is not possible.
type Watermarker struct{}

// NewWatermarker constructs a watermarker.
func NewWatermarker() *Watermarker {
	return &Watermarker{}
}

// Render produces the watermarked PDF bytes.
func (w *Watermarker) Render(in WatermarkInput) ([]byte, error) {
	if len(in.Image) == 0 {
		return nil, fmt.Errorf("watermark requires image bytes")
	}
	imageType := strings.ToUpper(in.ImageType)
	if imageType != "PNG" && imageType != "JPG" {
		return nil, fmt.Errorf("unsupported image type %q", in.ImageType)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	opts := gofpdf.ImageOptions{ImageType: imageType, ReadDpi: true}
	name := fmt.Sprintf("artifact-%s", in.SessionID)
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(in.Image))
	pageW, pageH := pdf.GetPageSize()
	pdf.ImageOptions(name, 0, 0, pageW, 0, false, opts, 0, "")

	stamp := fmt.Sprintf("%s · %s", in.ViewerID, in.IssuedAt.UTC().Format(time.RFC3339))

	pdf.SetFont("Arial", "B", 28)
	pdf.SetTextColor(128, 128, 128)
	pdf.SetAlpha(0.35, "Normal")
	for y := pageH / 4; y < pageH; y += pageH / 3 {
		pdf.TransformBegin()
		pdf.TransformRotate(40, pageW/2, y)
		pdf.Text(pageW/6, y, stamp)
		pdf.TransformEnd()
	}
	pdf.SetAlpha(1.0, "Normal")

	pdf.SetFont("Arial", "", 7)
	pdf.SetTextColor(80, 80, 80)
	pdf.Text(4, pageH-4, fmt.Sprintf("session %s · issued to %s", in.SessionID, in.ViewerID))

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render watermarked pdf: %w", err)
	}
	return buf.Bytes(), nil
}
