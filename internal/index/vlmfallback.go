package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/corpusindex/corpusindex/internal/extract"
)

// vlmTextExtractor is the subset of embed.VLMClient the fallback engine
// needs, narrowed so tests can substitute a stub.
type vlmTextExtractor interface {
	ExtractText(ctx context.Context, image []byte) (string, error)
}

// VLMFallbackConfig configures the page-rendering/timeout/worker-pool policy
// used when a PDF's text layer is insufficient for some of its pages.
type VLMFallbackConfig struct {
	// DPI is the rasterization resolution used when rendering a PDF page
	// to an image for the VLM.
	DPI float64

	// PageTimeout bounds a single page's VLM call. Zero means 60s.
	PageTimeout time.Duration

	// MaxPages caps how many of the requested pages are processed. Zero
	// means unbounded; pages beyond the cap are dropped with a warning.
	MaxPages int

	// Workers is the size of the concurrent page-processing pool. Values
	// <= 1 run pages sequentially.
	Workers int
}

// pageOutcome is the per-page result of a VLM fallback pass.
type pageOutcome struct {
	page    int
	text    string
	ok      bool
	timeout bool
	err     error
}

// FallbackSummary reports how a VLM fallback run resolved each page.
type FallbackSummary struct {
	Successful int
	Failed     int
	TimedOut   int
}

// VLMFallbackEngine renders PDF pages that yielded too little embedded text
// and asks a VLM to read them, merging the result back into the original
// extracted text.
type VLMFallbackEngine struct {
	vlm        vlmTextExtractor
	config     VLMFallbackConfig
	renderPage func(path string, page int, dpi float64) ([]byte, error)

	pagesProcessed atomic.Int64
}

// NewVLMFallbackEngine creates a fallback engine around the given VLM text
// extractor. Zero-value config fields take their documented defaults.
func NewVLMFallbackEngine(vlm vlmTextExtractor, config VLMFallbackConfig) *VLMFallbackEngine {
	if config.PageTimeout <= 0 {
		config.PageTimeout = 60 * time.Second
	}
	if config.DPI <= 0 {
		config.DPI = 150
	}
	return &VLMFallbackEngine{vlm: vlm, config: config, renderPage: extract.RenderPageImage}
}

// PagesProcessed returns the running count of pages the engine has sent to
// the VLM, across every call to Process on this engine.
func (e *VLMFallbackEngine) PagesProcessed() int64 {
	return e.pagesProcessed.Load()
}

// Process renders each page in pages from pdfPath and runs it through the
// VLM, then merges the successful pages' text after originalText behind a
// divider. If no page succeeds, originalText is returned unchanged.
func (e *VLMFallbackEngine) Process(ctx context.Context, pdfPath string, originalText string, pages []int) (string, FallbackSummary, error) {
	pages = e.cappedPages(pages)
	if len(pages) == 0 {
		return originalText, FallbackSummary{}, nil
	}

	outcomes := make([]pageOutcome, len(pages))

	workers := e.config.Workers
	if workers <= 1 {
		for i, page := range pages {
			outcomes[i] = e.processPage(ctx, pdfPath, page, i+1, len(pages))
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		var mu sync.Mutex
		for i, page := range pages {
			i, page := i, page
			g.Go(func() error {
				outcome := e.processPage(gctx, pdfPath, page, i+1, len(pages))
				mu.Lock()
				outcomes[i] = outcome
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait() // per-page errors are captured in outcomes, never aborts the batch
	}

	return e.merge(originalText, outcomes)
}

// cappedPages truncates pages to MaxPages (0 = unbounded), logging a warning
// for any dropped page.
func (e *VLMFallbackEngine) cappedPages(pages []int) []int {
	if e.config.MaxPages <= 0 || len(pages) <= e.config.MaxPages {
		return pages
	}
	slog.Warn("VLM fallback page cap exceeded, dropping remainder",
		slog.Int("requested", len(pages)), slog.Int("max_pages", e.config.MaxPages))
	return pages[:e.config.MaxPages]
}

// processPage renders one page to a temp PNG, invokes the VLM with a
// per-page timeout, and always cleans up the temp file.
func (e *VLMFallbackEngine) processPage(ctx context.Context, pdfPath string, page, ordinal, total int) pageOutcome {
	slog.Info("VLM fallback processing page", slog.Int("page", page), slog.String("progress", fmt.Sprintf("%d/%d", ordinal, total)))

	image, err := e.renderPage(pdfPath, page, e.config.DPI)
	if err != nil {
		return pageOutcome{page: page, err: fmt.Errorf("render page %d: %w", page, err)}
	}

	tmp, err := os.CreateTemp("", "vlm-fallback-*.png")
	if err != nil {
		return pageOutcome{page: page, err: fmt.Errorf("create temp image for page %d: %w", page, err)}
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(image); err != nil {
		tmp.Close()
		return pageOutcome{page: page, err: fmt.Errorf("write temp image for page %d: %w", page, err)}
	}
	tmp.Close()

	pageCtx, cancel := context.WithTimeout(ctx, e.config.PageTimeout)
	defer cancel()

	text, err := e.vlm.ExtractText(pageCtx, image)
	e.pagesProcessed.Add(1)
	if err != nil {
		if pageCtx.Err() != nil {
			return pageOutcome{page: page, timeout: true, err: err}
		}
		return pageOutcome{page: page, err: err}
	}

	return pageOutcome{page: page, text: text, ok: true}
}

// merge appends successful pages' text to originalText behind a divider, in
// ascending page order, and logs a final summary.
func (e *VLMFallbackEngine) merge(originalText string, outcomes []pageOutcome) (string, FallbackSummary, error) {
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].page < outcomes[j].page })

	var summary FallbackSummary
	var merged string
	for _, o := range outcomes {
		switch {
		case o.ok:
			summary.Successful++
			merged += fmt.Sprintf("\n[Page %d]\n%s\n", o.page+1, o.text)
		case o.timeout:
			summary.TimedOut++
		default:
			summary.Failed++
		}
	}

	slog.Info("VLM fallback complete",
		slog.Int("successful", summary.Successful),
		slog.Int("failed", summary.Failed),
		slog.Int("timed_out", summary.TimedOut))

	if summary.Successful == 0 {
		return originalText, summary, nil
	}

	return originalText + "\n\n--- VLM Extracted Text ---\n" + merged, summary, nil
}
