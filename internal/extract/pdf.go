package extract

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"path/filepath"
	"strings"

	fitz "github.com/gen2brain/go-fitz"

	corpuserrors "github.com/corpusindex/corpusindex/internal/errors"
)

// DefaultMinCharsPerPage is the extracted-character threshold below which a
// page is flagged as needing the VLM fallback (scanned or image-only page).
const DefaultMinCharsPerPage = 100

// PDFExtractor extracts text per page via MuPDF, flagging pages whose
// extracted text falls below minCharsPerPage as candidates for the VLM
// fallback engine.
type PDFExtractor struct {
	minCharsPerPage int
}

// NewPDFExtractor creates a PDFExtractor. A minCharsPerPage of 0 uses
// DefaultMinCharsPerPage.
func NewPDFExtractor(minCharsPerPage int) *PDFExtractor {
	if minCharsPerPage <= 0 {
		minCharsPerPage = DefaultMinCharsPerPage
	}
	return &PDFExtractor{minCharsPerPage: minCharsPerPage}
}

var _ Extractor = (*PDFExtractor)(nil)

func (e *PDFExtractor) Supports(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

func (e *PDFExtractor) Extract(ctx context.Context, path string) (ExtractResult, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, corpuserrors.UnsupportedFileTypeError(fmt.Sprintf("opening pdf %s", path), err)
	}
	defer func() { _ = doc.Close() }()

	pageCount := doc.NumPage()
	var sb strings.Builder
	var needsVLM []int

	for i := 0; i < pageCount; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		pageText, err := doc.Text(i)
		if err != nil {
			// A single unreadable page (corrupt content stream) doesn't
			// fail the whole document; it's just another VLM candidate.
			needsVLM = append(needsVLM, i)
			continue
		}

		trimmed := strings.TrimSpace(pageText)
		if len(trimmed) < e.minCharsPerPage {
			needsVLM = append(needsVLM, i)
		}

		sb.WriteString(pageText)
		sb.WriteString("\n\n")
	}

	method := MethodText
	switch {
	case len(needsVLM) == pageCount && pageCount > 0:
		method = MethodVLMNeeded
	case len(needsVLM) > 0:
		method = MethodHybrid
	}

	title, author := pdfMetadata(doc)

	return PDFResult{
		Text:             strings.TrimSpace(sb.String()),
		PageCount:        pageCount,
		Title:            title,
		Author:           author,
		ExtractionMethod: method,
		PagesNeedingVLM:  needsVLM,
	}, nil
}

func pdfMetadata(doc *fitz.Document) (title, author string) {
	meta := doc.Metadata()
	return meta["title"], meta["author"]
}

// RenderPageImage rasterizes one page of path at dpi and returns it as PNG
// bytes, for the VLM fallback engine to hand to a vision-language model.
func RenderPageImage(path string, page int, dpi float64) ([]byte, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, corpuserrors.UnsupportedFileTypeError(fmt.Sprintf("opening pdf %s", path), err)
	}
	defer func() { _ = doc.Close() }()

	img, err := doc.ImageDPI(page, dpi)
	if err != nil {
		return nil, corpuserrors.IOError(fmt.Sprintf("rendering page %d of %s", page, path), err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, corpuserrors.InternalError(fmt.Sprintf("encoding rendered page %d", page), err)
	}
	return buf.Bytes(), nil
}
