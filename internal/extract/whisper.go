package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/corpusindex/corpusindex/internal/chunk"
	corpuserrors "github.com/corpusindex/corpusindex/internal/errors"
)

// DefaultWhisperHost is the default endpoint for a local whisper.cpp or
// faster-whisper server speaking the OpenAI-compatible transcription API.
const DefaultWhisperHost = "http://localhost:8081"

// HTTPTranscriber transcribes audio through a remote Whisper-compatible HTTP
// endpoint, using a plain http.Client on the default transport whose Timeout
// bounds each whole request.
type HTTPTranscriber struct {
	client *http.Client
	host   string
}

// NewHTTPTranscriber creates an HTTPTranscriber against host. An empty host
// uses DefaultWhisperHost.
func NewHTTPTranscriber(host string, timeout time.Duration) *HTTPTranscriber {
	if host == "" {
		host = DefaultWhisperHost
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &HTTPTranscriber{
		client: &http.Client{Timeout: timeout},
		host:   host,
	}
}

var _ Transcriber = (*HTTPTranscriber)(nil)

type whisperSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type whisperResponse struct {
	Text     string           `json:"text"`
	Language string           `json:"language"`
	Segments []whisperSegment `json:"segments"`
}

// Transcribe uploads the audio file at path to /v1/audio/transcriptions
// (the OpenAI-compatible shape most local Whisper servers implement) and
// requests verbose_json so segment timing comes back alongside the text.
func (t *HTTPTranscriber) Transcribe(ctx context.Context, path string) (TranscriptResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return TranscriptResult{}, corpuserrors.FileNotFoundError(fmt.Sprintf("reading %s", path), err)
	}
	defer func() { _ = f.Close() }()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return TranscriptResult{}, corpuserrors.InternalError("building transcription request", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return TranscriptResult{}, corpuserrors.IOError(fmt.Sprintf("reading %s", path), err)
	}
	_ = writer.WriteField("response_format", "verbose_json")
	if err := writer.Close(); err != nil {
		return TranscriptResult{}, corpuserrors.InternalError("building transcription request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.host+"/v1/audio/transcriptions", &body)
	if err != nil {
		return TranscriptResult{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := t.client.Do(req)
	if err != nil {
		return TranscriptResult{}, corpuserrors.UpstreamUnavailableError(fmt.Sprintf("transcribing %s", path), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return TranscriptResult{}, corpuserrors.New(corpuserrors.ErrCodeTranscriptionFailed,
			fmt.Sprintf("transcription server returned %d: %s", resp.StatusCode, string(respBody)), nil)
	}

	var parsed whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return TranscriptResult{}, corpuserrors.New(corpuserrors.ErrCodeTranscriptionFailed, "decoding transcription response", err)
	}

	segments := make([]chunk.Segment, len(parsed.Segments))
	for i, s := range parsed.Segments {
		segments[i] = chunk.Segment{Text: s.Text, Start: s.Start, End: s.End}
	}

	return TranscriptResult{
		Text:     parsed.Text,
		Language: parsed.Language,
		Segments: segments,
	}, nil
}
