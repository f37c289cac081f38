package extract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	"github.com/corpusindex/corpusindex/internal/embed"
	corpuserrors "github.com/corpusindex/corpusindex/internal/errors"
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".webp": true, ".tiff": true, ".tif": true,
}

// ImageExtractor describes and OCRs images through a vision-language model,
// and parses whatever EXIF/GPS metadata the file carries.
type ImageExtractor struct {
	vlm *embed.VLMClient
}

// NewImageExtractor creates an ImageExtractor. vlm may be nil, in which case
// Extract returns description/OCR fields empty but still reports dimensions
// and metadata — callers that disabled the VLM fallback still get something.
func NewImageExtractor(vlm *embed.VLMClient) *ImageExtractor {
	return &ImageExtractor{vlm: vlm}
}

var _ Extractor = (*ImageExtractor)(nil)

func (e *ImageExtractor) Supports(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

func (e *ImageExtractor) Extract(ctx context.Context, path string) (ExtractResult, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, corpuserrors.FileNotFoundError(fmt.Sprintf("reading %s", path), err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, corpuserrors.UnsupportedFileTypeError(fmt.Sprintf("decoding image %s", path), err)
	}

	result := ImageResult{
		Width:  cfg.Width,
		Height: cfg.Height,
	}

	if meta := extractEXIF(raw); meta != "" {
		result.Metadata = meta
	}

	if e.vlm != nil {
		desc, ocr, err := e.vlm.AnalyzeDocumentImage(ctx, raw)
		if err != nil {
			return nil, corpuserrors.UpstreamUnavailableError(fmt.Sprintf("vlm analysis of %s", path), err)
		}
		result.Description = desc
		result.OCRText = ocr
	}

	return result, nil
}

// extractEXIF parses EXIF tags (including GPS) and formats them as a short
// prose block, e.g. "Taken 2024-03-01 14:22:10 with Canon EOS R5 at
// 35.681, 139.767." Returns "" if the file carries no EXIF segment.
func extractEXIF(raw []byte) string {
	x, err := exif.Decode(bytes.NewReader(raw))
	if err != nil {
		return ""
	}

	var parts []string

	if dt, err := x.DateTime(); err == nil {
		parts = append(parts, fmt.Sprintf("Taken %s", dt.Format("2006-01-02 15:04:05")))
	}

	make_, _ := x.Get(exif.Make)
	model, _ := x.Get(exif.Model)
	if make_ != nil || model != nil {
		parts = append(parts, fmt.Sprintf("with %s %s", tagString(make_), tagString(model)))
	}

	if lat, long, err := x.LatLong(); err == nil {
		parts = append(parts, fmt.Sprintf("at %.3f, %.3f", lat, long))
	}

	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, " ") + "."
}

func tagString(t *tiff.Tag) string {
	if t == nil {
		return ""
	}
	s, err := t.StringVal()
	if err != nil {
		return t.String()
	}
	return s
}
