package extract

import (
	"context"
	"path/filepath"
	"strings"
)

var audioExtensions = map[string]bool{
	".mp3": true, ".wav": true, ".m4a": true, ".flac": true,
	".ogg": true, ".aac": true, ".wma": true,
}

// AudioExtractor transcribes an audio file's full spoken content via a
// Transcriber, preserving per-segment timing for ChunkWithTimestamps.
type AudioExtractor struct {
	transcriber Transcriber
}

// NewAudioExtractor creates an AudioExtractor. transcriber may be nil, in
// which case Extract returns an error rather than silently skipping audio.
func NewAudioExtractor(transcriber Transcriber) *AudioExtractor {
	return &AudioExtractor{transcriber: transcriber}
}

var _ Extractor = (*AudioExtractor)(nil)

func (e *AudioExtractor) Supports(path string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(path))]
}

func (e *AudioExtractor) Extract(ctx context.Context, path string) (ExtractResult, error) {
	if e.transcriber == nil {
		return nil, errNoTranscriber
	}

	transcript, err := e.transcriber.Transcribe(ctx, path)
	if err != nil {
		return nil, err
	}

	info, err := probeMedia(ctx, path)
	if err != nil {
		// Duration is a nice-to-have; a transcript with no duration is
		// still useful, so fall back rather than failing the extraction.
		info = mediaInfo{}
	}

	return AudioResult{
		Text:     transcript.Text,
		Language: transcript.Language,
		Duration: secondsToDuration(info.durationSeconds),
		Segments: transcript.Segments,
	}, nil
}
