package docextract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docextract/internal/config"
	dbRedis "github.com/kailas-cloud/docextract/internal/db/redis"
	"github.com/kailas-cloud/docextract/internal/domain"
	"github.com/kailas-cloud/docextract/internal/export"
	"github.com/kailas-cloud/docextract/internal/imaging"
	budgetrepo "github.com/kailas-cloud/docextract/internal/repository/budget"
	promptrepo "github.com/kailas-cloud/docextract/internal/repository/prompt"
	"github.com/kailas-cloud/docextract/internal/repository/resultcache"
	openaiExt "github.com/kailas-cloud/docextract/internal/transport/openai"
	extractionuc "github.com/kailas-cloud/docextract/internal/usecase/extraction"
	healthuc "github.com/kailas-cloud/docextract/internal/usecase/health"
	"github.com/kailas-cloud/docextract/internal/usecase/pipeline"
	usageuc "github.com/kailas-cloud/docextract/internal/usecase/usage"
	"github.com/kailas-cloud/docextract/prompts"
)

const (
	defaultReadinessTimeout = 10 * time.Second
	provider                = "gemini"
)

// pipelineUseCase is the internal interface for extraction runs.
type pipelineUseCase interface {
	Run(ctx context.Context, path string) (*domain.Document, error)
}

// Client is the docextract SDK entry point. It is safe for concurrent use.
type Client struct {
	store     *dbRedis.Store
	pipeline  pipelineUseCase
	healthSvc healthUseCase
	usageSvc  usageUseCase
	obs       *observer
}

// Result is one extracted document.
type Result struct {
	// JSON is the document with all contract keys, model formatting preserved.
	JSON         []byte
	DetectedType string
	Usage        Usage

	doc *domain.Document
}

// Usage is the token usage of one extraction.
type Usage struct {
	InputTokens  int
	OutputTokens int
	Note         string
}

// WriteXLSX writes the line items and summary as an XLSX workbook.
func (r *Result) WriteXLSX(w io.Writer) error {
	if r.doc == nil {
		return errors.New("docextract: result has no document")
	}
	if err := export.WriteXLSX(w, r.doc); err != nil {
		return fmt.Errorf("docextract: %w", err)
	}
	return nil
}

// New creates a Client. The provided context is used for the Redis readiness check.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o.apply(cfg)
	}

	settings, err := config.NewSettingsProvider(cfg.lookup).Get()
	if err != nil {
		return nil, fmt.Errorf("docextract: %w", err)
	}

	var store *dbRedis.Store
	if cfg.redisAddr != "" {
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    []string{cfg.redisAddr},
			Password: cfg.redisPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("docextract: create redis store: %w", err)
		}
		if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			store.Close()
			return nil, fmt.Errorf("docextract: redis not ready: %w", err)
		}
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, err
	}

	return wireClient(ctx, cfg, *settings, store, obs), nil
}

// lookup serves the options to the settings provider under the environment keys it reads.
func (c *clientConfig) lookup(key string) (string, bool) {
	format := func(v *float64) (string, bool) {
		if v == nil {
			return "", false
		}
		return strconv.FormatFloat(*v, 'g', -1, 64), true
	}
	switch key {
	case config.EnvAPIKey:
		return c.apiKey, c.apiKey != ""
	case config.EnvModel:
		return c.model, c.model != ""
	case config.EnvTemperature:
		return format(c.temperature)
	case config.EnvTopP:
		return format(c.topP)
	default:
		return "", false
	}
}

func wireClient(ctx context.Context, cfg *clientConfig, settings domain.Settings, store *dbRedis.Store, obs *observer) *Client {
	var defaults config.Config
	defaults.ApplyDefaults()

	baseURL := cfg.baseURL
	if baseURL == "" {
		baseURL = defaults.Model.BaseURL
	}
	timeout := cfg.timeout
	if timeout <= 0 {
		timeout = time.Duration(defaults.Model.TimeoutSec) * time.Second
	}
	cacheTTL := cfg.cacheTTL
	if cacheTTL <= 0 {
		cacheTTL = defaults.Cache.TTL
	}
	policy := extractionuc.DefaultRetryPolicy()
	if cfg.maxAttempts > 0 {
		policy = extractionuc.RetryPolicy{MaxAttempts: cfg.maxAttempts, BaseDelay: cfg.baseDelay, MaxDelay: cfg.maxDelay}
	}

	logger := zap.NewNop()

	var budget *extractionuc.BudgetTracker
	if cfg.dailyLimit > 0 || cfg.monthlyLimit > 0 {
		action := extractionuc.BudgetActionWarn
		if cfg.reject {
			action = extractionuc.BudgetActionReject
		}
		budget = extractionuc.NewBudgetTracker(provider, cfg.dailyLimit, cfg.monthlyLimit, action, logger)
		if store != nil {
			budget.WithStore(ctx, budgetrepo.New(store, 0, 0))
		}
	}

	base := openaiExt.NewExtractor(&openaiExt.Config{
		APIKey:   settings.APIKey,
		BaseURL:  baseURL,
		Model:    settings.Model,
		Provider: provider,
		Timeout:  timeout,
		Logger:   logger,
	})

	handle := extractionuc.NewHandle(func(s domain.Settings) (domain.Extractor, error) {
		var ext domain.Extractor = extractionuc.NewClient(base, policy, provider, logger)

		// Pass nil interface (not typed nil pointer!) if budget is not configured.
		var checker extractionuc.BudgetChecker
		if budget != nil {
			checker = budget
		}
		ext = extractionuc.NewInstrumented(ext, provider, s.Model, checker, logger)

		if store != nil {
			ext = resultcache.New(ext, store, s.Model, cacheTTL, nil, logger)
		}
		return ext, nil
	})

	var promptFS fs.FS = prompts.FS
	if cfg.prompts != nil {
		promptFS = cfg.prompts
	}

	validator := imaging.NewValidator(imaging.Bounds{
		MinWidth:     defaults.Image.MinWidth,
		MinHeight:    defaults.Image.MinHeight,
		MaxWidth:     defaults.Image.MaxWidth,
		MaxHeight:    defaults.Image.MaxHeight,
		MaxFileBytes: defaults.Image.MaxFileBytes,
	}, defaults.Image.Formats)

	svc := pipeline.New(
		staticSettings{settings: &settings},
		validator,
		promptrepo.New(promptrepo.NewFSSource(promptFS), nil, logger),
		handle,
		logger,
	).WithStrictSchema(cfg.strictSchema)

	var (
		pinger       healthuc.Pinger
		budgetReader usageuc.BudgetReader
	)
	if store != nil {
		pinger = store
	}
	if budget != nil {
		budgetReader = budget
	}

	return &Client{
		store:     store,
		pipeline:  svc,
		healthSvc: healthuc.New(pinger, base),
		usageSvc:  usageuc.New(budgetReader),
		obs:       obs,
	}
}

// Close releases all resources.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Extract runs the pipeline on the image at path.
// Failures carry a kind (see ErrorKind) and match ErrExtraction.
func (c *Client) Extract(ctx context.Context, path string) (res *Result, err error) {
	start := time.Now()
	defer func() { c.obs.observe("extract", start, err) }()

	doc, err := c.pipeline.Run(ctx, path)
	if err != nil {
		return nil, err
	}

	data, err := doc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("docextract: %w", err)
	}

	return &Result{
		JSON:         data,
		DetectedType: string(doc.DetectedType()),
		Usage: Usage{
			InputTokens:  doc.UsageMetadata.InputTokens,
			OutputTokens: doc.UsageMetadata.OutputTokens,
			Note:         doc.UsageMetadata.Note,
		},
		doc: doc,
	}, nil
}

// staticSettings serves settings resolved once in New.
type staticSettings struct {
	settings *domain.Settings
}

func (s staticSettings) Get() (*domain.Settings, error) { return s.settings, nil }
