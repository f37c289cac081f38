package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"

	corpuserrors "github.com/corpusindex/corpusindex/internal/errors"
)

// ErrUnsupportedEncoding is returned when none of the probed encodings
// could decode a file's bytes.
var ErrUnsupportedEncoding = corpuserrors.UnsupportedFileTypeError("no supported text encoding decoded this file", nil)

var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".markdown": true, ".rst": true,
	".log": true, ".csv": true, ".tsv": true, ".json": true,
	".yaml": true, ".yml": true, ".xml": true, ".html": true, ".htm": true,
}

// textCodecs is the fixed probe order: UTF-8, UTF-16 (BOM-detected),
// Shift_JIS, EUC-JP, CP932 (treated as Shift_JIS's superset, since
// golang.org/x/text has no separate CP932 transformer and the two decode
// identically for the characters a personal corpus is likely to contain).
var textCodecs = []struct {
	name string
	dec  encoding.Encoding
}{
	{"Shift_JIS", japanese.ShiftJIS},
	{"EUC-JP", japanese.EUCJP},
	{"CP932", japanese.ShiftJIS},
}

// TextExtractor reads plain-text files, probing encodings in a fixed order
// until one decodes cleanly.
type TextExtractor struct{}

// NewTextExtractor creates a TextExtractor.
func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

var _ Extractor = (*TextExtractor)(nil)

// Supports matches common plain-text extensions and files with no
// extension. It is registered last in DefaultRegistry; a file with any
// other extension is not handled by it.
func (e *TextExtractor) Supports(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return textExtensions[ext] || ext == ""
}

// Extract decodes the file at path, trying UTF-8 first (the common case,
// detected without a transform pass), then UTF-16 via BOM sniffing, then the
// Japanese legacy encodings in order.
func (e *TextExtractor) Extract(ctx context.Context, path string) (ExtractResult, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, corpuserrors.FileNotFoundError(fmt.Sprintf("reading %s", path), err)
	}

	text, enc, err := decodeText(raw)
	if err != nil {
		return nil, err
	}

	return TextResult{
		Text:      text,
		Encoding:  enc,
		LineCount: strings.Count(text, "\n") + 1,
	}, nil
}

func decodeText(raw []byte) (string, string, error) {
	if len(raw) == 0 {
		return "", "UTF-8", nil
	}

	if utf8.Valid(raw) {
		return string(raw), "UTF-8", nil
	}

	if text, ok := decodeUTF16(raw); ok {
		return text, "UTF-16", nil
	}

	for _, codec := range textCodecs {
		decoded, err := codec.dec.NewDecoder().Bytes(raw)
		if err != nil {
			continue
		}
		// The legacy decoders substitute U+FFFD for invalid bytes instead of
		// failing, so a substitution counts as a failed decode.
		if utf8.Valid(decoded) && !bytes.ContainsRune(decoded, utf8.RuneError) {
			return string(decoded), codec.name, nil
		}
	}

	return "", "", ErrUnsupportedEncoding
}

func decodeUTF16(raw []byte) (string, bool) {
	var bomEnc encoding.Encoding
	switch {
	case bytes.HasPrefix(raw, []byte{0xFF, 0xFE}):
		bomEnc = unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM)
	case bytes.HasPrefix(raw, []byte{0xFE, 0xFF}):
		bomEnc = unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM)
	default:
		return "", false
	}

	decoded, err := bomEnc.NewDecoder().Bytes(raw)
	if err != nil || !utf8.Valid(decoded) {
		return "", false
	}
	return string(decoded), true
}
