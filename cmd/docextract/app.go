package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docextract/internal/config"
	dbRedis "github.com/kailas-cloud/docextract/internal/db/redis"
	"github.com/kailas-cloud/docextract/internal/domain"
	"github.com/kailas-cloud/docextract/internal/imaging"
	logpkg "github.com/kailas-cloud/docextract/internal/logger"
	"github.com/kailas-cloud/docextract/internal/metrics"
	budgetrepo "github.com/kailas-cloud/docextract/internal/repository/budget"
	"github.com/kailas-cloud/docextract/internal/repository/object"
	promptrepo "github.com/kailas-cloud/docextract/internal/repository/prompt"
	"github.com/kailas-cloud/docextract/internal/repository/resultcache"
	openaiExt "github.com/kailas-cloud/docextract/internal/transport/openai"
	extractionuc "github.com/kailas-cloud/docextract/internal/usecase/extraction"
	"github.com/kailas-cloud/docextract/internal/usecase/pipeline"
	"github.com/kailas-cloud/docextract/internal/version"
	"github.com/kailas-cloud/docextract/prompts"
)

// app is the wired object graph shared by the CLI and serve mode.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	store    *dbRedis.Store // nil when no component needs Redis
	settings *config.SettingsProvider
	handle   *extractionuc.Handle
	budget   *extractionuc.BudgetTracker // nil when no limit is set
	model    *modelProbe
	pipeline *pipeline.Service
}

func newApp(env string) (*app, error) {
	cfg, err := config.Load(env)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	logger.Info("Starting docextract",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
	)

	// Register metrics explicitly (no init())
	metrics.RegisterExtractionMetrics()

	a := &app{
		cfg:      cfg,
		logger:   logger,
		settings: config.NewSettingsProvider(nil),
	}

	ctx := context.Background()
	if cfg.StoreConfigured() {
		store, err := dbRedis.NewStore(dbRedis.Config{Addrs: cfg.Cache.Addrs, Password: cfg.Cache.Password})
		if err != nil {
			return nil, fmt.Errorf("create redis store: %w", err)
		}
		if err := store.WaitForReady(ctx, time.Duration(cfg.Cache.ReadinessTimeout)*time.Second); err != nil {
			store.Close()
			return nil, fmt.Errorf("redis not ready: %w", err)
		}
		logger.Info("Connected to redis", zap.Strings("addrs", cfg.Cache.Addrs))
		a.store = store
	}

	if cfg.BudgetEnabled() {
		action := extractionuc.BudgetActionWarn
		if cfg.Budget.Action == "reject" {
			action = extractionuc.BudgetActionReject
		}
		a.budget = extractionuc.NewBudgetTracker(
			cfg.Model.Provider, cfg.Budget.DailyTokenLimit, cfg.Budget.MonthlyTokenLimit, action, logger,
		)
		if a.store != nil {
			a.budget.WithStore(ctx, budgetrepo.New(a.store, budgetrepo.DefaultDailyTTL, budgetrepo.DefaultMonthlyTTL))
		}
	}

	a.handle = extractionuc.NewHandle(a.buildExtractor)
	a.model = &modelProbe{settings: a.settings, handle: a.handle}

	promptRepo, err := a.promptRepository()
	if err != nil {
		a.Close()
		return nil, err
	}

	validator := imaging.NewValidator(imaging.Bounds{
		MinWidth:     cfg.Image.MinWidth,
		MinHeight:    cfg.Image.MinHeight,
		MaxWidth:     cfg.Image.MaxWidth,
		MaxHeight:    cfg.Image.MaxHeight,
		MaxFileBytes: cfg.Image.MaxFileBytes,
	}, cfg.Image.Formats)

	a.pipeline = pipeline.New(a.settings, validator, promptRepo, a.handle, logger).
		WithStrictSchema(cfg.Pipeline.StrictSchema)

	if s3 := cfg.Storage.S3; s3.Endpoint != "" {
		fetcher, err := object.NewFetcher(object.Config{
			Endpoint:        s3.Endpoint,
			AccessKeyID:     s3.AccessKeyID,
			SecretAccessKey: s3.SecretAccessKey,
			UseSSL:          s3.UseSSL,
			MaxBytes:        cfg.Image.MaxFileBytes,
		}, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("create object fetcher: %w", err)
		}
		a.pipeline.WithObjectFetcher(fetcher)
	}

	return a, nil
}

// Close releases the Redis connection and flushes logs.
func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
	_ = a.logger.Sync()
}

func (a *app) promptRepository() (*promptrepo.Repository, error) {
	var source promptrepo.Source
	switch {
	case a.cfg.Prompts.Backend == "redis":
		source = promptrepo.NewKVSource(a.store)
	case a.cfg.Prompts.Dir != "":
		if _, err := os.Stat(a.cfg.Prompts.Dir); err != nil {
			return nil, &domain.ConfigurationError{
				Key: "prompts.dir",
				Msg: fmt.Sprintf("prompt directory %q is unreadable", a.cfg.Prompts.Dir),
				Err: err,
			}
		}
		source = promptrepo.NewFSSource(os.DirFS(a.cfg.Prompts.Dir))
	default:
		source = promptrepo.NewFSSource(prompts.FS)
	}
	return promptrepo.New(source, metrics.PromptCacheTotal, a.logger), nil
}

// buildExtractor assembles the decorator chain:
// OpenAI binding -> retrying Client -> Instrumented (budget) -> result cache.
// The cache is outermost so hits neither retry nor consume budget.
func (a *app) buildExtractor(settings domain.Settings) (domain.Extractor, error) {
	cfg := a.cfg

	base := openaiExt.NewExtractor(&openaiExt.Config{
		APIKey:   settings.APIKey,
		BaseURL:  cfg.Model.BaseURL,
		Model:    settings.Model,
		Provider: cfg.Model.Provider,
		Timeout:  time.Duration(cfg.Model.TimeoutSec) * time.Second,
		Logger:   a.logger,
	})
	a.model.set(base)

	var ext domain.Extractor = extractionuc.NewClient(base, extractionuc.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
	}, cfg.Model.Provider, a.logger)

	// Pass nil interface (not typed nil pointer!) if budget is not configured.
	var budget extractionuc.BudgetChecker
	if a.budget != nil {
		budget = a.budget
	}
	ext = extractionuc.NewInstrumented(ext, cfg.Model.Provider, settings.Model, budget, a.logger)

	if cfg.Cache.Enabled && a.store != nil {
		ext = resultcache.New(ext, a.store, settings.Model, cfg.Cache.TTL, metrics.ResultCacheTotal, a.logger)
	}

	a.logger.Info("Extraction client created",
		zap.String("provider", cfg.Model.Provider),
		zap.String("model", settings.Model),
		zap.Bool("result_cache", cfg.Cache.Enabled && a.store != nil),
		zap.Bool("budget", a.budget != nil),
	)
	return ext, nil
}
