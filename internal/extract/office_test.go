package extract

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestOfficeExtractor_Supports(t *testing.T) {
	e := NewOfficeExtractor()
	assert.True(t, e.Supports("report.docx"))
	assert.True(t, e.Supports("budget.xlsx"))
	assert.True(t, e.Supports("deck.pptx"))
	assert.False(t, e.Supports("notes.txt"))
}

func TestOfficeExtractor_Extract_XLSX(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Name"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "Amount"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "Coffee"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", 4.5))

	dir := t.TempDir()
	path := filepath.Join(dir, "budget.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	result, err := NewOfficeExtractor().Extract(context.Background(), path)
	require.NoError(t, err)

	or, ok := result.(OfficeResult)
	require.True(t, ok)
	assert.Equal(t, 1, or.SheetCount)
	assert.Contains(t, or.Text, "[Sheet: Sheet1]")
	assert.Contains(t, or.Text, "Name | Amount")
	assert.Contains(t, or.Text, "Coffee | 4.5")
}

const minimalDocxXML = `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second </w:t></w:r><w:r><w:t>paragraph.</w:t></w:r></w:p>
  </w:body>
</w:document>`

func TestOfficeExtractor_Extract_DOCX(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.docx")
	writeZip(t, path, map[string]string{"word/document.xml": minimalDocxXML})

	result, err := NewOfficeExtractor().Extract(context.Background(), path)
	require.NoError(t, err)

	or, ok := result.(OfficeResult)
	require.True(t, ok)
	assert.Equal(t, 2, or.Paragraphs)
	assert.Contains(t, or.Text, "First paragraph.")
	assert.Contains(t, or.Text, "Second paragraph.")
}

const minimalSlideXML = `<?xml version="1.0" encoding="UTF-8"?>
<p:sld xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main">
  <a:t>Quarterly Results</a:t>
</p:sld>`

func TestOfficeExtractor_Extract_PPTX(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deck.pptx")
	writeZip(t, path, map[string]string{"ppt/slides/slide1.xml": minimalSlideXML})

	result, err := NewOfficeExtractor().Extract(context.Background(), path)
	require.NoError(t, err)

	or, ok := result.(OfficeResult)
	require.True(t, ok)
	assert.Equal(t, 1, or.SlideCount)
	assert.Contains(t, or.Text, "[Slide 1]")
	assert.Contains(t, or.Text, "Quarterly Results")
}

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	w := zip.NewWriter(f)
	for name, content := range files {
		entry, err := w.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}
