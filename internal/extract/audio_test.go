package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubTranscriber struct {
	result TranscriptResult
	err    error
}

func (s stubTranscriber) Transcribe(ctx context.Context, path string) (TranscriptResult, error) {
	return s.result, s.err
}

func TestAudioExtractor_Supports(t *testing.T) {
	e := NewAudioExtractor(nil)
	assert.True(t, e.Supports("voicenote.mp3"))
	assert.True(t, e.Supports("interview.WAV"))
	assert.False(t, e.Supports("notes.txt"))
}

func TestAudioExtractor_Extract_NoTranscriber_ReturnsError(t *testing.T) {
	e := NewAudioExtractor(nil)
	_, err := e.Extract(context.Background(), "voicenote.mp3")
	assert.Error(t, err)
}
