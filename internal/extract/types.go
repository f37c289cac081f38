// Package extract turns a file on disk into a searchable textual
// representation: one Extractor implementation per media family, dispatched
// through a fixed-priority Registry.
package extract

import (
	"context"
	"time"

	"github.com/corpusindex/corpusindex/internal/chunk"
)

// ExtractionMethod records how a PDF's text was obtained.
type ExtractionMethod string

const (
	// MethodText means the PDF's embedded text layer was sufficient.
	MethodText ExtractionMethod = "text"
	// MethodVLMNeeded means no usable text layer was found; every page
	// needs the VLM fallback.
	MethodVLMNeeded ExtractionMethod = "vlm_needed"
	// MethodHybrid means some pages had text and others need the VLM
	// fallback (a scanned appendix in an otherwise text PDF, say).
	MethodHybrid ExtractionMethod = "hybrid_needed"
)

// ExtractResult is a tagged union: the concrete type returned tells which
// variant a value is, and callers switch on that type. isExtractResult is
// unexported so only this package can add variants.
type ExtractResult interface {
	isExtractResult()
}

// TextResult is the output of extracting a plain-text file.
type TextResult struct {
	Text      string
	Encoding  string
	LineCount int
}

func (TextResult) isExtractResult() {}

// PDFResult is the output of extracting a PDF.
type PDFResult struct {
	Text             string
	PageCount        int
	Title            string
	Author           string
	ExtractionMethod ExtractionMethod
	// PagesNeedingVLM holds zero-based page indices whose extracted
	// character count fell below the configured per-page threshold.
	PagesNeedingVLM []int
}

func (PDFResult) isExtractResult() {}

// OfficeResult is the output of extracting a Word/Excel/PowerPoint document.
type OfficeResult struct {
	Text       string
	SheetCount int
	SlideCount int
	Paragraphs int
}

func (OfficeResult) isExtractResult() {}

// AudioResult is the output of transcribing an audio file.
type AudioResult struct {
	Text     string
	Language string
	Duration time.Duration
	Segments []chunk.Segment
}

func (AudioResult) isExtractResult() {}

// VideoResult is the output of transcribing a video file's audio track.
type VideoResult struct {
	Text     string
	Language string
	Duration time.Duration
	Segments []chunk.Segment
	Width    int
	Height   int
}

func (VideoResult) isExtractResult() {}

// ImageResult is the output of describing and OCR-ing an image via a VLM,
// plus any embedded EXIF metadata (including GPS). XMP packets are not read.
type ImageResult struct {
	Description string
	OCRText     string
	Width       int
	Height      int
	// Metadata is a prose-formatted block of EXIF/GPS fields, empty if
	// the image carried none.
	Metadata string
}

func (ImageResult) isExtractResult() {}

// Extractor turns a file's bytes into an ExtractResult. Implementations must
// be stateless between calls and safe to invoke from multiple goroutines
// concurrently.
type Extractor interface {
	// Supports reports whether this extractor handles the file at path,
	// typically by extension.
	Supports(path string) bool
	// Extract reads path and returns its textual representation.
	Extract(ctx context.Context, path string) (ExtractResult, error)
}
