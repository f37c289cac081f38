package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVideoExtractor_Supports(t *testing.T) {
	e := NewVideoExtractor(nil)
	assert.True(t, e.Supports("clip.mp4"))
	assert.True(t, e.Supports("movie.MKV"))
	assert.False(t, e.Supports("notes.txt"))
}

func TestVideoExtractor_Extract_NoTranscriber_ReturnsError(t *testing.T) {
	e := NewVideoExtractor(nil)
	_, err := e.Extract(context.Background(), "clip.mp4")
	assert.Error(t, err)
}
