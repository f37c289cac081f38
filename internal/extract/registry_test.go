package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExtractor struct {
	ext    string
	result ExtractResult
}

func (s stubExtractor) Supports(path string) bool { return pathHasExt(path, s.ext) }
func (s stubExtractor) Extract(ctx context.Context, path string) (ExtractResult, error) {
	return s.result, nil
}

func pathHasExt(path, ext string) bool {
	if len(path) < len(ext) {
		return false
	}
	return path[len(path)-len(ext):] == ext
}

func TestRegistry_Dispatch_FirstMatchWins(t *testing.T) {
	specific := stubExtractor{ext: ".docx", result: OfficeResult{Text: "specific"}}
	general := stubExtractor{ext: "", result: TextResult{Text: "general"}}

	reg := NewRegistry(specific, general)

	e, ok := reg.Dispatch("report.docx")
	require.True(t, ok)
	result, err := e.Extract(context.Background(), "report.docx")
	require.NoError(t, err)
	assert.Equal(t, OfficeResult{Text: "specific"}, result)

	e, ok = reg.Dispatch("notes.txt")
	require.True(t, ok)
	result, err = e.Extract(context.Background(), "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, TextResult{Text: "general"}, result)
}

func TestRegistry_Dispatch_NoMatch(t *testing.T) {
	reg := NewRegistry(stubExtractor{ext: ".docx"})
	_, ok := reg.Dispatch("notes.pdf")
	assert.False(t, ok)
}

func TestRegistry_Dispatch_Empty(t *testing.T) {
	reg := NewRegistry()
	_, ok := reg.Dispatch("anything.txt")
	assert.False(t, ok)
}
