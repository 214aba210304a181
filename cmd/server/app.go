package main

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/rs/zerolog"

	"github.com/shoprewrite/backend/config"
	httpDelivery "github.com/shoprewrite/backend/internal/delivery/http"
	"github.com/shoprewrite/backend/internal/domain"
	"github.com/shoprewrite/backend/internal/infrastructure/cache"
	"github.com/shoprewrite/backend/internal/infrastructure/llm"
	"github.com/shoprewrite/backend/internal/infrastructure/logging"
	"github.com/shoprewrite/backend/internal/infrastructure/metrics"
	"github.com/shoprewrite/backend/internal/infrastructure/shopify"
	"github.com/shoprewrite/backend/internal/usecase"
)

// app holds the wired service graph shared by the serve and optimize commands
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	metrics *metrics.Metrics
	cache   *cache.MemoryCache
	store   domain.Store

	collections *usecase.CollectionService
	optimizer   *usecase.OptimizerService
	jobs        *usecase.JobRegistry
}

func newApp(logOut io.Writer, catalogPath string) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logger := logging.NewLoggerTo(logOut, cfg.Server.Environment, cfg.Log.Level)
	m := metrics.NewMetrics()

	catalog := usecase.DefaultCatalog()
	if catalogPath != "" {
		data, err := os.ReadFile(catalogPath)
		if err != nil {
			return nil, fmt.Errorf("read category catalog: %w", err)
		}
		if catalog, err = usecase.ParseCatalog(data); err != nil {
			return nil, fmt.Errorf("category catalog %s: %w", catalogPath, err)
		}
	}

	commerce, err := shopify.NewClient(shopify.Config{
		BaseURL:         cfg.Shopify.BaseURL,
		APIVersion:      cfg.Shopify.APIVersion,
		Timeout:         cfg.Shopify.Timeout,
		RateLimit:       cfg.Shopify.RateLimit,
		RateBurst:       cfg.Shopify.RateBurst,
		PageSize:        cfg.Shopify.PageSize,
		MaxAttempts:     cfg.Retry.MaxAttempts,
		BaseDelay:       cfg.Retry.BaseDelay,
		MaxDelay:        cfg.Retry.MaxDelay,
		HandleCacheSize: cfg.Cache.HandleCacheSize,
	}, m, logging.Component(logger, "shopify"))
	if err != nil {
		return nil, fmt.Errorf("create shopify client: %w", err)
	}

	generator := llm.NewClient(llm.Config{
		APIKey:           cfg.OpenAI.APIKey,
		BaseURL:          cfg.OpenAI.BaseURL,
		Model:            cfg.OpenAI.Model,
		MaxTokens:        cfg.OpenAI.MaxTokens,
		Timeout:          cfg.OpenAI.Timeout,
		StructuredOutput: cfg.OpenAI.StructuredOutput,
		MaxAttempts:      cfg.Retry.MaxAttempts,
		BaseDelay:        cfg.Retry.BaseDelay,
		MaxDelay:         cfg.Retry.MaxDelay,
	}, m, logging.Component(logger, "llm"))

	memoryCache := cache.NewMemoryCache(cache.DefaultCleanupInterval)

	prompts := usecase.NewPromptBuilder(catalog, cfg.Meta.TitleLimit, cfg.Meta.DescriptionLimit, cfg.OpenAI.StructuredOutput)
	splitter := usecase.NewOutputSplitter(cfg.Meta.TitleLimit, cfg.Meta.DescriptionLimit)
	meta := usecase.NewMetaFinalizer(usecase.MetaOptions{
		TitleLimit:       cfg.Meta.TitleLimit,
		DescriptionLimit: cfg.Meta.DescriptionLimit,
		BrandName:        cfg.Meta.Brand(),
		Transactional:    cfg.Meta.Transactional,
		Phrases:          cfg.Meta.TransactionalPhrases,
	})

	optimizer := usecase.NewOptimizerService(
		commerce,
		generator,
		prompts,
		splitter,
		meta,
		m,
		usecase.OptimizerConfig{
			BatchSize:    cfg.Optimizer.BatchSize,
			ItemDelay:    cfg.Optimizer.ItemDelay,
			DefaultMode:  cfg.Optimizer.DefaultMode,
			Model:        cfg.OpenAI.Model,
			Temperature:  cfg.OpenAI.Temperature,
			SystemPrompt: cfg.OpenAI.SystemPrompt,
			Fields: usecase.FieldMapperOptions{
				Namespace:     cfg.Metafields.Namespace,
				HeightHints:   cfg.Metafields.HeightHints,
				DiameterHints: cfg.Metafields.DiameterHints,
				MirrorCount:   cfg.Metafields.MirrorCount,
			},
		},
		logging.Component(logger, "optimizer"),
	)

	collections := usecase.NewCollectionService(
		memoryCache,
		commerce,
		usecase.CollectionServiceConfig{CacheTTL: cfg.Cache.CollectionsTTL},
		logging.Component(logger, "collections"),
	)

	return &app{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		cache:   memoryCache,
		store: domain.Store{
			Domain:      cfg.Shopify.StoreDomain,
			AccessToken: cfg.Shopify.AccessToken,
		},
		collections: collections,
		optimizer:   optimizer,
		jobs:        usecase.NewJobRegistry(),
	}, nil
}

func (a *app) router() http.Handler {
	handler := httpDelivery.NewHandler(a.collections, a.optimizer, a.jobs, httpDelivery.HandlerConfig{
		Store:  a.store,
		DryRun: a.cfg.Optimizer.DryRun,
	}, logging.Component(a.logger, "http"))

	return httpDelivery.SetupRouter(a.cfg, handler, a.metrics, logging.Component(a.logger, "access"))
}

func (a *app) Close() {
	a.cache.Close()
}
