package pipeline

import (
	"context"

	"github.com/kailas-cloud/docextract/internal/domain"
)

// SettingsSource resolves the model settings once per process.
type SettingsSource interface {
	Get() (*domain.Settings, error)
}

// ImageLoader validates and decodes an input image.
type ImageLoader interface {
	ValidateAndLoad(ctx context.Context, path string) (domain.ValidatedImage, error)
}

// PromptSource returns prompt templates by key.
type PromptSource interface {
	Get(ctx context.Context, key domain.PromptKey) (string, error)
}

// ExtractorHandle hands out the shared extractor.
type ExtractorHandle interface {
	Get(settings domain.Settings) (domain.Extractor, error)
}

// ObjectFetcher downloads remote inputs to a local file.
type ObjectFetcher interface {
	Handles(path string) bool
	Fetch(ctx context.Context, uri string) (string, func(), error)
}
