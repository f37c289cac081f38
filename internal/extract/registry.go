package extract

// Registry is a fixed-priority list of Extractors. Dispatch walks the list
// in order and returns the first whose Supports matches, so a more specific
// predicate (e.g. a particular office subtype) should be registered ahead of
// a broader one.
type Registry struct {
	entries []Extractor
}

// NewRegistry builds a Registry from extractors in priority order.
func NewRegistry(extractors ...Extractor) *Registry {
	return &Registry{entries: extractors}
}

// Dispatch returns the first registered Extractor whose Supports(path) is
// true, or false if none match.
func (r *Registry) Dispatch(path string) (Extractor, bool) {
	for _, e := range r.entries {
		if e.Supports(path) {
			return e, true
		}
	}
	return nil, false
}

// DefaultRegistry builds the standard extractor set in the priority order
// the orchestrator expects: images and audio/video first (unambiguous by
// extension), then office documents, then PDF, then plain text (its listed
// extensions and extensionless files) last.
func DefaultRegistry(deps Dependencies) *Registry {
	return NewRegistry(
		NewImageExtractor(deps.VLM),
		NewAudioExtractor(deps.Transcriber),
		NewVideoExtractor(deps.Transcriber),
		NewOfficeExtractor(),
		NewPDFExtractor(deps.MinCharsPerPage),
		NewTextExtractor(),
	)
}
