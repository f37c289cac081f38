package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	corpuserrors "github.com/corpusindex/corpusindex/internal/errors"
)

var videoExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".mkv": true, ".avi": true,
	".webm": true, ".m4v": true,
}

var errNoTranscriber = corpuserrors.New(corpuserrors.ErrCodeUpstreamUnavailable, "no transcriber configured", nil)

// VideoExtractor demuxes a video's audio track with ffmpeg, transcribes it
// the same way AudioExtractor does, and reports the video's pixel
// dimensions from ffprobe.
type VideoExtractor struct {
	transcriber Transcriber
}

// NewVideoExtractor creates a VideoExtractor. transcriber may be nil, in
// which case Extract returns an error.
func NewVideoExtractor(transcriber Transcriber) *VideoExtractor {
	return &VideoExtractor{transcriber: transcriber}
}

var _ Extractor = (*VideoExtractor)(nil)

func (e *VideoExtractor) Supports(path string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(path))]
}

func (e *VideoExtractor) Extract(ctx context.Context, path string) (ExtractResult, error) {
	if e.transcriber == nil {
		return nil, errNoTranscriber
	}

	info, err := probeMedia(ctx, path)
	if err != nil {
		return nil, err
	}

	tmpAudio, err := os.CreateTemp("", "corpusindex-audio-*.wav")
	if err != nil {
		return nil, corpuserrors.InternalError("creating temp audio file", err)
	}
	tmpAudioPath := tmpAudio.Name()
	_ = tmpAudio.Close()
	defer func() { _ = os.Remove(tmpAudioPath) }()

	if err := extractAudioTrack(ctx, path, tmpAudioPath); err != nil {
		return nil, err
	}

	transcript, err := e.transcriber.Transcribe(ctx, tmpAudioPath)
	if err != nil {
		return nil, fmt.Errorf("transcribing audio track of %s: %w", path, err)
	}

	return VideoResult{
		Text:     transcript.Text,
		Language: transcript.Language,
		Duration: secondsToDuration(info.durationSeconds),
		Segments: transcript.Segments,
		Width:    info.width,
		Height:   info.height,
	}, nil
}
