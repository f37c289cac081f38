package embed

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// DefaultVLMModel is the default vision-language model for image
// description and document OCR.
const DefaultVLMModel = "llava"

const (
	defaultDescribePrompt = "Describe this image in detail, including any visible text, objects, people, and context."
	defaultOCRPrompt      = "Transcribe all text visible in this image, verbatim, preserving line breaks. " +
		"If the image contains no legible text, respond with exactly: " + noTextFoundSentinel
)

// FallbackVLMModels are tried in order if the primary VLM is not installed.
var FallbackVLMModels = []string{
	"llava-llama3",
	"bakllava",
	"moondream",
}

// VLMConfig configures the VLM client.
type VLMConfig struct {
	// Host is the Ollama-compatible API endpoint (default: http://localhost:11434)
	Host string

	// Model is the primary vision-language model (default: llava)
	Model string

	// FallbackModels are tried in order if the primary model is unavailable
	FallbackModels []string

	// Timeout for a single generate request (default: DefaultWarmTimeout)
	Timeout time.Duration

	// ConnectTimeout (default: 5s) is stored but not applied; the startup
	// catalog probe runs under DefaultColdTimeout.
	ConnectTimeout time.Duration

	// MaxRetries for transient failures (default: 3)
	MaxRetries int

	// PoolSize for the HTTP connection pool (default: 4)
	PoolSize int

	// SkipHealthCheck skips the startup catalog probe (for testing)
	SkipHealthCheck bool
}

// DefaultVLMConfig returns sensible defaults.
func DefaultVLMConfig() VLMConfig {
	return VLMConfig{
		Host:           DefaultOllamaHost,
		Model:          DefaultVLMModel,
		FallbackModels: FallbackVLMModels,
		Timeout:        DefaultWarmTimeout,
		ConnectTimeout: OllamaConnectTimeout,
		MaxRetries:     DefaultMaxRetries,
		PoolSize:       OllamaPoolSize,
	}
}

// VLMClient describes and transcribes images through an Ollama-compatible
// vision-language model. It builds its own pooled transport with the same
// transport.go helpers the embedding client uses, probes the catalog the same
// way, and follows the retry pattern of ollama.go.
type VLMClient struct {
	client    *http.Client
	transport *http.Transport
	config    VLMConfig
	modelName string

	mu     sync.Mutex
	closed bool
}

// NewVLMClient creates a VLM client. Unless SkipHealthCheck is set, it
// probes the model catalog for the primary model or a declared fallback at
// startup, failing fast with ErrNoVLMAvailable if neither is installed.
func NewVLMClient(ctx context.Context, cfg VLMConfig) (*VLMClient, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultVLMModel
	}
	if cfg.FallbackModels == nil {
		cfg.FallbackModels = FallbackVLMModels
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultWarmTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = OllamaConnectTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = OllamaPoolSize
	}

	client, transport := newHTTPClient(cfg.PoolSize)

	v := &VLMClient{
		client:    client,
		transport: transport,
		config:    cfg,
		modelName: cfg.Model,
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, DefaultColdTimeout)
		defer cancel()

		models, err := listOllamaModels(checkCtx, v.client, v.config.Host)
		if err != nil {
			transport.CloseIdleConnections()
			return nil, fmt.Errorf("failed to connect to Ollama: %w", err)
		}
		actual, err := selectAvailableModel(models, cfg.Model, cfg.FallbackModels)
		if err != nil {
			transport.CloseIdleConnections()
			return nil, ErrNoVLMAvailable
		}
		v.modelName = actual
	}

	return v, nil
}

// ModelName returns the resolved model identifier (primary or fallback).
func (v *VLMClient) ModelName() string {
	return v.modelName
}

// Describe returns a natural-language description of the image. An empty
// prompt uses a general-purpose description prompt.
func (v *VLMClient) Describe(ctx context.Context, image []byte, prompt string) (string, error) {
	if prompt == "" {
		prompt = defaultDescribePrompt
	}
	return v.generate(ctx, image, prompt)
}

// ExtractText runs an OCR-specialized prompt over the image and collapses
// the model's "no text found" sentinel to an empty string.
func (v *VLMClient) ExtractText(ctx context.Context, image []byte) (string, error) {
	text, err := v.generate(ctx, image, defaultOCRPrompt)
	if err != nil {
		return "", err
	}
	if strings.EqualFold(strings.TrimSpace(text), noTextFoundSentinel) {
		return "", nil
	}
	return text, nil
}

// AnalyzeDocumentImage runs a description and an OCR pass over the same
// rendered page image, used by the VLM fallback engine for scanned or
// image-only PDF pages.
func (v *VLMClient) AnalyzeDocumentImage(ctx context.Context, image []byte) (description, ocrText string, err error) {
	description, err = v.Describe(ctx, image, "")
	if err != nil {
		return "", "", fmt.Errorf("describe: %w", err)
	}
	ocrText, err = v.ExtractText(ctx, image)
	if err != nil {
		return "", "", fmt.Errorf("extract text: %w", err)
	}
	return description, ocrText, nil
}

// generate performs a single-image /api/generate request with retry and
// linear timeout backoff, mirroring OllamaEmbedder.doEmbedWithRetry.
func (v *VLMClient) generate(ctx context.Context, image []byte, prompt string) (string, error) {
	v.mu.Lock()
	closed := v.closed
	v.mu.Unlock()
	if closed {
		return "", fmt.Errorf("vlm client is closed")
	}

	encoded := base64.StdEncoding.EncodeToString(image)

	var lastErr error
	for attempt := 0; attempt < v.config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		if attempt > 0 {
			backoff := time.Duration(100<<attempt) * time.Millisecond
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		timeout := v.config.Timeout * time.Duration(attempt+1)
		timeoutCtx, cancel := context.WithTimeout(ctx, timeout)

		text, err := v.doGenerate(timeoutCtx, prompt, encoded)
		cancel()
		if err == nil {
			return text, nil
		}
		lastErr = err

		slog.Debug("vlm_generate_attempt_failed",
			slog.Int("attempt", attempt+1),
			slog.Duration("timeout", timeout),
			slog.String("error", err.Error()))

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}

	return "", fmt.Errorf("vlm generate failed after %d attempts: %w", v.config.MaxRetries, lastErr)
}

func (v *VLMClient) doGenerate(ctx context.Context, prompt, imageB64 string) (string, error) {
	reqBody := ollamaGenerateRequest{
		Model:  v.modelName,
		Prompt: prompt,
		Images: []string{imageB64},
		Stream: false,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.config.Host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to connect to Ollama: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("generate failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	return strings.TrimSpace(result.Response), nil
}

// Close releases pooled connections.
func (v *VLMClient) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	v.closed = true
	if v.transport != nil {
		v.transport.CloseIdleConnections()
	}
	return nil
}
