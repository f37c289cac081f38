package embed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// newHTTPClient builds a connection-pooled client shared by the embedding
// and VLM clients. IdleConnTimeout is kept short (10s rather than the
// default 90s) because CLI indexing runs are short-lived and we want
// connections cleaned up quickly after Ctrl+C.
//
// The client itself carries no Timeout: callers apply context.WithTimeout
// per request so retry logic can scale the timeout per attempt.
func newHTTPClient(poolSize int) (*http.Client, *http.Transport) {
	transport := &http.Transport{
		MaxIdleConns:        poolSize,
		MaxIdleConnsPerHost: poolSize,
		MaxConnsPerHost:     poolSize * 2,
		IdleConnTimeout:     10 * time.Second,
		DisableKeepAlives:   false,
	}
	return &http.Client{Transport: transport}, transport
}

// forceCloseTransport replaces client's transport with one that disables
// keep-alives, so goroutines blocked reading from the old transport's
// connections unblock with EOF/error instead of waiting out the HTTP
// timeout. Returns the new transport.
func forceCloseTransport(client *http.Client, old *http.Transport, poolSize int) *http.Transport {
	old.CloseIdleConnections()
	fresh := &http.Transport{
		MaxIdleConns:        poolSize,
		MaxIdleConnsPerHost: poolSize,
		MaxConnsPerHost:     poolSize * 2,
		IdleConnTimeout:     10 * time.Second,
		DisableKeepAlives:   true,
	}
	client.Transport = fresh
	return fresh
}

// listOllamaModels fetches the installed model catalog from /api/tags.
func listOllamaModels(ctx context.Context, client *http.Client, host string) ([]OllamaModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, host+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ollama: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result OllamaModelListResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return result.Models, nil
}

// selectAvailableModel picks the first of primary/fallbacks present in
// models, matching case-insensitively and tolerating a missing ":tag" suffix
// on either side of the comparison.
func selectAvailableModel(models []OllamaModelInfo, primary string, fallbacks []string) (string, error) {
	available := make(map[string]string, len(models)*2)
	for _, m := range models {
		name := strings.ToLower(m.Name)
		available[name] = m.Name
		base := strings.Split(name, ":")[0]
		if _, exists := available[base]; !exists {
			available[base] = m.Name
		}
	}

	candidates := make([]string, 0, len(fallbacks)+1)
	candidates = append(candidates, primary)
	candidates = append(candidates, fallbacks...)

	for _, candidate := range candidates {
		name := strings.ToLower(candidate)
		if actual, ok := available[name]; ok {
			return actual, nil
		}
		base := strings.Split(name, ":")[0]
		if actual, ok := available[base]; ok {
			return actual, nil
		}
	}

	return "", fmt.Errorf("no model available (tried %s and %v)", primary, fallbacks)
}
