// Package pipeline runs one document image through settings, validation, prompts and the model.
package pipeline

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docextract/internal/domain"
	"github.com/kailas-cloud/docextract/internal/logger"
	"github.com/kailas-cloud/docextract/internal/metrics"
)

// Service is the pipeline orchestrator. Steps run in order; the first error ends the run
// and reaches the caller unchanged. Only the extractor retries.
type Service struct {
	settings SettingsSource
	images   ImageLoader
	prompts  PromptSource
	handle   ExtractorHandle
	objects  ObjectFetcher
	schema   *jsonschema.Schema
	strict   bool
	logger   *zap.Logger
}

// New creates a Service.
func New(
	settings SettingsSource,
	images ImageLoader,
	prompts PromptSource,
	handle ExtractorHandle,
	logger *zap.Logger,
) *Service {
	schema, err := compileContractSchema()
	if err != nil {
		// the schema is a constant; failing here is a programming error
		panic(err)
	}
	return &Service{
		settings: settings,
		images:   images,
		prompts:  prompts,
		handle:   handle,
		schema:   schema,
		logger:   logger,
	}
}

// WithObjectFetcher enables remote (s3://) inputs.
func (s *Service) WithObjectFetcher(f ObjectFetcher) *Service {
	s.objects = f
	return s
}

// WithStrictSchema makes a contract mismatch fail the run instead of logging a warning.
func (s *Service) WithStrictSchema(strict bool) *Service {
	s.strict = strict
	return s
}

// Run extracts one document from the image at path.
func (s *Service) Run(ctx context.Context, path string) (*domain.Document, error) {
	ctx = logger.With(ctx, s.logger,
		zap.String("run_id", uuid.NewString()),
		zap.String("path", path),
	)
	log := logger.FromContext(ctx)

	doc, err := s.run(ctx, path)
	if err != nil {
		kind := domain.KindOf(err)
		metrics.PipelineRunsTotal.WithLabelValues(kind).Inc()
		log.Error("Pipeline failed", zap.String("error_kind", kind), zap.Error(err))
		return nil, err
	}

	detected := doc.DetectedType()
	label := string(detected)
	if !detected.Valid() {
		label = "unknown"
	}
	metrics.PipelineRunsTotal.WithLabelValues("success").Inc()
	metrics.DocumentsTotal.WithLabelValues(label).Inc()
	log.Info("Pipeline completed",
		zap.String("detected_type", string(detected)),
		zap.Int("input_tokens", doc.UsageMetadata.InputTokens),
		zap.Int("output_tokens", doc.UsageMetadata.OutputTokens),
	)
	return doc, nil
}

func (s *Service) run(ctx context.Context, path string) (*domain.Document, error) {
	settings, err := s.settings.Get()
	if err != nil {
		return nil, err
	}

	local, cleanup, err := s.localize(ctx, path)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	img, err := s.images.ValidateAndLoad(ctx, local)
	if err != nil {
		return nil, err
	}

	systemPrompt, err := s.prompts.Get(ctx, domain.PromptSystem)
	if err != nil {
		return nil, err
	}
	userPrompt, err := s.prompts.Get(ctx, domain.PromptExtraction)
	if err != nil {
		return nil, err
	}

	ext, err := s.handle.Get(*settings)
	if err != nil {
		return nil, err
	}

	resp, err := ext.Extract(ctx, domain.ExtractionRequest{
		Image:        img,
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  settings.Temperature,
		TopP:         settings.TopP,
	})
	if err != nil {
		return nil, err
	}

	doc, err := domain.ParseDocument(resp.Text)
	if err != nil {
		return nil, err
	}
	doc.UsageMetadata = domain.UsageMetadataFrom(resp.Usage)

	if err := s.checkContract(ctx, doc, resp.Text); err != nil {
		return nil, err
	}
	return doc, nil
}

// localize downloads remote inputs. The returned cleanup is always non-nil.
func (s *Service) localize(ctx context.Context, path string) (string, func(), error) {
	noop := func() {}
	if s.objects == nil || !s.objects.Handles(path) {
		return path, noop, nil
	}
	local, cleanup, err := s.objects.Fetch(ctx, path)
	if err != nil {
		return "", noop, err
	}
	return local, cleanup, nil
}

func (s *Service) checkContract(ctx context.Context, doc *domain.Document, raw string) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return &domain.JSONParseError{Snippet: domain.Snippet(raw), Msg: "document cannot be encoded", Err: err}
	}

	err = validateContract(s.schema, data)
	if err == nil {
		return nil
	}
	if s.strict {
		return &domain.JSONParseError{Snippet: domain.Snippet(raw), Msg: "model output does not match the document contract", Err: err}
	}
	logger.FromContext(ctx).Warn("Document does not match contract", zap.Error(err))
	return nil
}
