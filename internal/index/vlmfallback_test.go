package index

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubVLM struct {
	textForPage map[int]string
	errForPage  map[int]error
	delay       time.Duration
}

func (s *stubVLM) ExtractText(ctx context.Context, image []byte) (string, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	page := int(image[0])
	if err, ok := s.errForPage[page]; ok {
		return "", err
	}
	return s.textForPage[page], nil
}

func fakeRenderer(called *[]int) func(string, int, float64) ([]byte, error) {
	return func(_ string, page int, _ float64) ([]byte, error) {
		*called = append(*called, page)
		return []byte{byte(page)}, nil
	}
}

func newTestFallbackEngine(vlm vlmTextExtractor, cfg VLMFallbackConfig, render func(string, int, float64) ([]byte, error)) *VLMFallbackEngine {
	e := NewVLMFallbackEngine(vlm, cfg)
	e.renderPage = render
	return e
}

func TestVLMFallback_MergesSuccessfulPagesInOrder(t *testing.T) {
	var called []int
	vlm := &stubVLM{textForPage: map[int]string{0: "first page text", 1: "second page text"}}
	e := newTestFallbackEngine(vlm, VLMFallbackConfig{}, fakeRenderer(&called))

	merged, summary, err := e.Process(context.Background(), "doc.pdf", "original text", []int{1, 0})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Successful)
	assert.Contains(t, merged, "original text")
	assert.Contains(t, merged, "--- VLM Extracted Text ---")

	firstIdx := strings.Index(merged, "[Page 1]")
	secondIdx := strings.Index(merged, "[Page 2]")
	require.NotEqual(t, -1, firstIdx)
	require.NotEqual(t, -1, secondIdx)
	assert.Less(t, firstIdx, secondIdx)
}

func TestVLMFallback_NoPagesSucceedReturnsOriginalUnchanged(t *testing.T) {
	var called []int
	vlm := &stubVLM{errForPage: map[int]error{0: errors.New("boom")}}
	e := newTestFallbackEngine(vlm, VLMFallbackConfig{}, fakeRenderer(&called))

	merged, summary, err := e.Process(context.Background(), "doc.pdf", "original text", []int{0})
	require.NoError(t, err)
	assert.Equal(t, "original text", merged)
	assert.Equal(t, 1, summary.Failed)
}

func TestVLMFallback_EmptyPagesIsNoOp(t *testing.T) {
	var called []int
	vlm := &stubVLM{}
	e := newTestFallbackEngine(vlm, VLMFallbackConfig{}, fakeRenderer(&called))

	merged, summary, err := e.Process(context.Background(), "doc.pdf", "original text", nil)
	require.NoError(t, err)
	assert.Equal(t, "original text", merged)
	assert.Equal(t, FallbackSummary{}, summary)
	assert.Empty(t, called)
}

func TestVLMFallback_CapsPagesAtMaxPages(t *testing.T) {
	var called []int
	vlm := &stubVLM{textForPage: map[int]string{0: "a", 1: "b", 2: "c"}}
	e := newTestFallbackEngine(vlm, VLMFallbackConfig{MaxPages: 2}, fakeRenderer(&called))

	_, summary, err := e.Process(context.Background(), "doc.pdf", "original", []int{0, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Successful)
	assert.Len(t, called, 2)
}

func TestVLMFallback_PageTimeoutRecordsTimedOut(t *testing.T) {
	var called []int
	vlm := &stubVLM{delay: 50 * time.Millisecond}
	e := newTestFallbackEngine(vlm, VLMFallbackConfig{PageTimeout: 5 * time.Millisecond}, fakeRenderer(&called))

	_, summary, err := e.Process(context.Background(), "doc.pdf", "original", []int{0})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TimedOut)
}

func TestVLMFallback_SequentialVsWorkerPoolBothProcessAllPages(t *testing.T) {
	var calledSeq, calledPool []int
	vlm := &stubVLM{textForPage: map[int]string{0: "a", 1: "b", 2: "c"}}

	seq := newTestFallbackEngine(vlm, VLMFallbackConfig{Workers: 1}, fakeRenderer(&calledSeq))
	_, seqSummary, err := seq.Process(context.Background(), "doc.pdf", "x", []int{0, 1, 2})
	require.NoError(t, err)

	pool := newTestFallbackEngine(vlm, VLMFallbackConfig{Workers: 4}, fakeRenderer(&calledPool))
	_, poolSummary, err := pool.Process(context.Background(), "doc.pdf", "x", []int{0, 1, 2})
	require.NoError(t, err)

	assert.Equal(t, seqSummary, poolSummary)
	assert.Len(t, calledSeq, 3)
	assert.Len(t, calledPool, 3)
}

func TestVLMFallback_PagesProcessedCounterIncrements(t *testing.T) {
	var called []int
	vlm := &stubVLM{textForPage: map[int]string{0: "a", 1: "b"}}
	e := newTestFallbackEngine(vlm, VLMFallbackConfig{}, fakeRenderer(&called))

	_, _, err := e.Process(context.Background(), "doc.pdf", "x", []int{0, 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), e.PagesProcessed())
}

func TestVLMFallback_RenderErrorCountsAsFailed(t *testing.T) {
	vlm := &stubVLM{}
	e := newTestFallbackEngine(vlm, VLMFallbackConfig{}, func(string, int, float64) ([]byte, error) {
		return nil, fmt.Errorf("render failed")
	})

	merged, summary, err := e.Process(context.Background(), "doc.pdf", "original", []int{0})
	require.NoError(t, err)
	assert.Equal(t, "original", merged)
	assert.Equal(t, 1, summary.Failed)
}
