package extraction

import (
	"sync"

	"github.com/kailas-cloud/docextract/internal/domain"
)

// Factory builds the model binding from resolved settings.
type Factory func(settings domain.Settings) (domain.Extractor, error)

// Handle owns the process-wide extractor. The first successful Get builds it;
// later calls return the same instance and ignore their settings argument.
// A failed build is not kept, so the next Get tries again.
type Handle struct {
	mu      sync.Mutex
	factory Factory
	ext     domain.Extractor
}

// NewHandle creates an empty handle.
func NewHandle(f Factory) *Handle {
	return &Handle{factory: f}
}

// Get returns the shared extractor, building it on first use.
func (h *Handle) Get(settings domain.Settings) (domain.Extractor, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.ext != nil {
		return h.ext, nil
	}

	ext, err := h.factory(settings)
	if err != nil {
		return nil, err
	}
	h.ext = ext
	return ext, nil
}
