package domain

import (
	"context"
	"image"
)

// Settings is the immutable model configuration resolved once per process.
type Settings struct {
	APIKey      string
	Model       string
	Temperature float64
	TopP        float64
}

// ValidatedImage is a decoded raster that passed path, format and dimension checks.
// Data keeps the original encoded bytes, which is what the model receives.
type ValidatedImage struct {
	Path     string
	Format   string
	MIMEType string
	Width    int
	Height   int
	Raster   image.Image
	Data     []byte
}

// PromptKey names a prompt template.
type PromptKey string

const (
	// PromptSystem holds the model's system instructions.
	PromptSystem PromptKey = "system"
	// PromptExtraction holds the per-document extraction instructions.
	PromptExtraction PromptKey = "extraction"
)

// Valid reports whether k is a known template key.
func (k PromptKey) Valid() bool {
	return k == PromptSystem || k == PromptExtraction
}

// ExtractionRequest is everything one model call needs.
type ExtractionRequest struct {
	Image        ValidatedImage
	SystemPrompt string
	UserPrompt   string
	Temperature  float64
	TopP         float64
}

// Usage is the token accounting attached to a model response.
type Usage struct {
	InputTokens  int
	OutputTokens int
	Note         string
}

// Total returns input plus output tokens.
func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

// Usage notes.
const (
	UsageNoteReported    = "Populated from model response usage metadata"
	UsageNoteUnavailable = "Usage metadata unavailable in model response; counts default to zero"
	UsageNoteCached      = "Served from result cache; no tokens consumed"
)

// ExtractionResponse is the raw model payload plus its usage record.
type ExtractionResponse struct {
	Text  string
	Usage Usage
}

// Extractor is the model capability shared by the transport binding and its decorators.
type Extractor interface {
	Extract(ctx context.Context, req ExtractionRequest) (ExtractionResponse, error)
}

// HealthChecker verifies model endpoint availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
