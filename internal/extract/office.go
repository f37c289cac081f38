package extract

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	corpuserrors "github.com/corpusindex/corpusindex/internal/errors"
)

var officeExtensions = map[string]bool{
	".docx": true, ".xlsx": true, ".pptx": true,
}

// OfficeExtractor extracts text from Office Open XML documents: Word
// (paragraphs), Excel (sheets, serialized as pipe-joined rows, prefixed
// "[Sheet: name]"), and PowerPoint (slide text, prefixed "[Slide N]").
type OfficeExtractor struct{}

// NewOfficeExtractor creates an OfficeExtractor.
func NewOfficeExtractor() *OfficeExtractor {
	return &OfficeExtractor{}
}

var _ Extractor = (*OfficeExtractor)(nil)

func (e *OfficeExtractor) Supports(path string) bool {
	return officeExtensions[strings.ToLower(filepath.Ext(path))]
}

func (e *OfficeExtractor) Extract(ctx context.Context, path string) (ExtractResult, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return extractXLSX(path)
	case ".docx":
		return extractDOCX(path)
	case ".pptx":
		return extractPPTX(path)
	default:
		return nil, corpuserrors.UnsupportedFileTypeError(fmt.Sprintf("unrecognized office extension: %s", path), nil)
	}
}

func extractXLSX(path string) (ExtractResult, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, corpuserrors.UnsupportedFileTypeError(fmt.Sprintf("opening xlsx %s", path), err)
	}
	defer func() { _ = f.Close() }()

	var sb strings.Builder
	sheets := f.GetSheetList()
	for _, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		sb.WriteString(fmt.Sprintf("[Sheet: %s]\n", sheet))
		for _, row := range rows {
			sb.WriteString(strings.Join(row, " | "))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	return OfficeResult{
		Text:       strings.TrimSpace(sb.String()),
		SheetCount: len(sheets),
	}, nil
}

// docxDocument models enough of word/document.xml to pull paragraph text.
type docxDocument struct {
	XMLName xml.Name `xml:"document"`
	Body    struct {
		Paragraphs []struct {
			Runs []struct {
				Text string `xml:"t"`
			} `xml:"r"`
		} `xml:"p"`
	} `xml:"body"`
}

func extractDOCX(path string) (ExtractResult, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, corpuserrors.UnsupportedFileTypeError(fmt.Sprintf("opening docx %s", path), err)
	}
	defer func() { _ = r.Close() }()

	var raw []byte
	for _, f := range r.File {
		if f.Name == "word/document.xml" {
			rc, err := f.Open()
			if err != nil {
				return nil, corpuserrors.IOError(fmt.Sprintf("reading word/document.xml in %s", path), err)
			}
			raw, err = io.ReadAll(rc)
			_ = rc.Close()
			if err != nil {
				return nil, corpuserrors.IOError(fmt.Sprintf("reading word/document.xml in %s", path), err)
			}
			break
		}
	}
	if raw == nil {
		return nil, corpuserrors.UnsupportedFileTypeError(fmt.Sprintf("%s has no word/document.xml", path), nil)
	}

	var doc docxDocument
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, corpuserrors.UnsupportedFileTypeError(fmt.Sprintf("parsing word/document.xml in %s", path), err)
	}

	var sb strings.Builder
	count := 0
	for _, p := range doc.Body.Paragraphs {
		var para strings.Builder
		for _, run := range p.Runs {
			para.WriteString(run.Text)
		}
		if para.Len() > 0 {
			sb.WriteString(para.String())
			sb.WriteString("\n")
			count++
		}
	}

	return OfficeResult{
		Text:       strings.TrimSpace(sb.String()),
		Paragraphs: count,
	}, nil
}

var pptxSlideTextRe = regexp.MustCompile(`<a:t>([^<]*)</a:t>`)
var pptxSlideNumRe = regexp.MustCompile(`slide(\d+)\.xml$`)

func extractPPTX(path string) (ExtractResult, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, corpuserrors.UnsupportedFileTypeError(fmt.Sprintf("opening pptx %s", path), err)
	}
	defer func() { _ = r.Close() }()

	type slide struct {
		num  int
		text string
	}
	var slides []slide

	for _, f := range r.File {
		if !strings.HasPrefix(f.Name, "ppt/slides/slide") || !strings.HasSuffix(f.Name, ".xml") {
			continue
		}
		match := pptxSlideNumRe.FindStringSubmatch(f.Name)
		if match == nil {
			continue
		}
		num, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			continue
		}
		raw, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			continue
		}

		var text strings.Builder
		for _, m := range pptxSlideTextRe.FindAllSubmatch(raw, -1) {
			text.Write(m[1])
			text.WriteString(" ")
		}
		slides = append(slides, slide{num: num, text: strings.TrimSpace(text.String())})
	}

	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var sb strings.Builder
	for _, s := range slides {
		if s.text == "" {
			continue
		}
		sb.WriteString(fmt.Sprintf("[Slide %d]\n%s\n\n", s.num, s.text))
	}

	return OfficeResult{
		Text:       strings.TrimSpace(sb.String()),
		SlideCount: len(slides),
	}, nil
}
