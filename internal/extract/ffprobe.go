package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	corpuserrors "github.com/corpusindex/corpusindex/internal/errors"
)

// mediaInfo is the subset of ffprobe's JSON output this package cares about.
// Shelling out to the ffprobe/ffmpeg binaries is the standard way Go
// programs touch audio/video containers; no pure-Go library in the
// ecosystem decodes the breadth of container/codec combinations a personal
// media corpus can contain the way the actual ffmpeg project does.
type mediaInfo struct {
	durationSeconds float64
	width           int
	height          int
}

func probeMedia(ctx context.Context, path string) (mediaInfo, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path)

	out, err := cmd.Output()
	if err != nil {
		return mediaInfo{}, corpuserrors.UpstreamUnavailableError(fmt.Sprintf("ffprobe %s", path), err)
	}

	var parsed struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
		Streams []struct {
			CodecType string `json:"codec_type"`
			Width     int    `json:"width"`
			Height    int    `json:"height"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(out, &parsed); err != nil {
		return mediaInfo{}, corpuserrors.InternalError("parsing ffprobe output", err)
	}

	info := mediaInfo{}
	if d, err := strconv.ParseFloat(parsed.Format.Duration, 64); err == nil {
		info.durationSeconds = d
	}
	for _, s := range parsed.Streams {
		if s.CodecType == "video" && s.Width > 0 {
			info.width = s.Width
			info.height = s.Height
			break
		}
	}
	return info, nil
}

// extractAudioTrack uses ffmpeg to demux path's audio into a mono 16kHz WAV
// file at the caller-chosen outPath, the format Whisper-family models
// expect. It returns only an error; the caller owns outPath.
func extractAudioTrack(ctx context.Context, path, outPath string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y", "-i", path,
		"-vn", "-ac", "1", "-ar", "16000",
		outPath)
	if err := cmd.Run(); err != nil {
		return corpuserrors.New(corpuserrors.ErrCodeTranscriptionFailed, fmt.Sprintf("extracting audio track from %s", path), err)
	}
	return nil
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
