package extract

import (
	"context"

	"github.com/corpusindex/corpusindex/internal/chunk"
	"github.com/corpusindex/corpusindex/internal/embed"
)

// Transcriber turns an audio stream into a timed transcript. The default
// implementation speaks to a local Whisper-compatible HTTP server
// (see whisper.go); tests and offline deployments can substitute a stub.
type Transcriber interface {
	// Transcribe reads the audio/video file at path (ffmpeg extracts the
	// audio track first for video) and returns its transcript.
	Transcribe(ctx context.Context, path string) (TranscriptResult, error)
}

// TranscriptResult is a Transcriber's raw output, shared by the audio and
// video extractors.
type TranscriptResult struct {
	Text     string
	Language string
	Segments []chunk.Segment
}

// Dependencies bundles the external clients and tuning knobs DefaultRegistry
// wires into the per-media extractors.
type Dependencies struct {
	VLM             *embed.VLMClient
	Transcriber     Transcriber
	MinCharsPerPage int
}
