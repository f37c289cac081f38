package extract

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	require.NoError(t, png.Encode(f, img))
}

func TestImageExtractor_Supports(t *testing.T) {
	e := NewImageExtractor(nil)
	assert.True(t, e.Supports("photo.jpg"))
	assert.True(t, e.Supports("scan.PNG"))
	assert.False(t, e.Supports("notes.txt"))
}

func TestImageExtractor_Extract_DimensionsNoVLM(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.png")
	writePNG(t, path, 64, 32)

	result, err := NewImageExtractor(nil).Extract(context.Background(), path)
	require.NoError(t, err)

	ir, ok := result.(ImageResult)
	require.True(t, ok)
	assert.Equal(t, 64, ir.Width)
	assert.Equal(t, 32, ir.Height)
	assert.Empty(t, ir.Description)
	assert.Empty(t, ir.OCRText)
	assert.Empty(t, ir.Metadata, "PNG test fixtures carry no EXIF segment")
}

func TestImageExtractor_Extract_MissingFile(t *testing.T) {
	_, err := NewImageExtractor(nil).Extract(context.Background(), "/nonexistent/photo.jpg")
	assert.Error(t, err)
}
