package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/lab-extractor/constants"
	"github.com/joseph-ayodele/lab-extractor/internal/catalog"
	"github.com/joseph-ayodele/lab-extractor/internal/classify"
	"github.com/joseph-ayodele/lab-extractor/internal/common"
	"github.com/joseph-ayodele/lab-extractor/internal/extract"
	"github.com/joseph-ayodele/lab-extractor/internal/llm"
	"github.com/joseph-ayodele/lab-extractor/internal/llm/gemini"
	"github.com/joseph-ayodele/lab-extractor/internal/llm/openai"
	"github.com/joseph-ayodele/lab-extractor/internal/normalize"
	"github.com/joseph-ayodele/lab-extractor/internal/ocr"
	"github.com/joseph-ayodele/lab-extractor/internal/pipeline"
	"github.com/joseph-ayodele/lab-extractor/internal/repository"
	"github.com/joseph-ayodele/lab-extractor/internal/server"
)

const inMemoryDSN = "file::memory:?_pragma=foreign_keys(1)"

type globalOptions struct {
	inmem   bool
	envFile string
}

// app holds the wired components shared by the subcommands.
type app struct {
	cfg     *common.Config
	logger  *slog.Logger
	catalog *catalog.Catalog

	db      *repository.DB
	docs    repository.DocumentRepository
	results repository.TestResultRepository

	processor *pipeline.Processor
	closers   []func()
}

func newApp(opts *globalOptions) (*app, error) {
	if opts.envFile != "" {
		if err := godotenv.Load(opts.envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", opts.envFile, err)
		}
	}
	cfg := common.LoadConfig()
	if opts.inmem {
		cfg.Database.Driver = repository.DriverSQLite
		cfg.Database.DSN = inMemoryDSN
	}
	logger := common.NewLogger(cfg.Log)
	slog.SetDefault(logger)

	cat, err := catalog.Load(cfg.Extraction.CatalogPath, cfg.Extraction.CatalogCacheSize, logger)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, catalog: cat}, nil
}

// openDB connects, and for in-memory databases also creates and seeds the schema.
func (a *app) openDB(ctx context.Context, inmem bool) error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	db, err := server.ConnectDB(ctx, a.cfg.Database, a.logger)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrDatabase, err)
	}
	a.db = db
	a.closers = append(a.closers, db.Close)
	if inmem {
		if err := a.migrate(ctx); err != nil {
			return err
		}
	}
	a.docs = repository.NewDocumentRepository(db, a.logger)
	a.results = repository.NewTestResultRepository(db, a.logger)
	return nil
}

func (a *app) migrate(ctx context.Context) error {
	if err := a.db.Migrate(ctx); err != nil {
		return err
	}
	return a.db.Seed(ctx, a.catalog)
}

// buildProcessor wires the pipeline. Persistence is used only when openDB ran.
func (a *app) buildProcessor(ctx context.Context) error {
	cfg := a.cfg
	fetcher := ocr.NewFetcher(ocr.FetchConfig{
		DownloadTimeout: cfg.Fetch.DownloadTimeout,
		HeadTimeout:     cfg.Fetch.HeadTimeout,
		MaxBytes:        cfg.Server.MaxUploadBytes,
		Cloudinary: ocr.CloudinaryCredentials{
			CloudName: cfg.Fetch.CloudinaryCloudName,
			APIKey:    cfg.Fetch.CloudinaryAPIKey,
			APISecret: cfg.Fetch.CloudinaryAPISecret,
		},
	}, nil, a.logger)
	extractor := ocr.NewExtractor(ocr.Config{
		Pdftoppm:           cfg.OCR.Pdftoppm,
		Tesseract:          cfg.OCR.Tesseract,
		Language:           cfg.OCR.Language,
		TessdataDir:        cfg.OCR.TessdataDir,
		DPI:                cfg.OCR.DPI,
		PSM:                cfg.OCR.PSM,
		OEM:                cfg.OCR.OEM,
		LargeFileThreshold: cfg.OCR.LargeFileThreshold,
		PageWorkers:        cfg.OCR.PageWorkers,
		MaxPages:           cfg.OCR.MaxPages,
		HeicConverter:      cfg.OCR.HeicConverter,
		TempDir:            cfg.OCR.TempDir,
	}, a.logger, ocr.WithFetcher(fetcher))
	if err := ocr.CheckBinaries(cfg.OCR.Tesseract, cfg.OCR.Pdftoppm); err != nil {
		a.logger.Warn("ocr.binaries.missing", "error", err)
	}

	rules := extract.NewRuleBased(a.catalog, a.logger)
	var primary extract.Strategy
	if cfg.Extraction.Strategy == constants.StrategyAI {
		s, err := a.structurer(ctx)
		if err != nil {
			return err
		}
		if s != nil {
			primary = extract.NewAI(s, a.logger, extract.WithKnownTypes(a.testTypeCodes()))
		}
	}
	params := extract.NewService(primary, rules, a.logger)

	classifier := classify.NewClassifier(a.catalog, cfg.Extraction.KeywordThreshold, a.logger)
	normalizer := normalize.New(a.catalog, a.logger)

	// typed nils must not reach the stage interfaces
	var (
		docs    pipeline.DocumentStore
		results pipeline.ResultStore
	)
	if a.db != nil {
		docs = a.docs
		results = a.results
	}
	a.processor = pipeline.NewProcessor(a.logger,
		pipeline.NewOCRStage(extractor, docs, a.logger),
		pipeline.NewParseStage(classifier, params, normalizer, results, docs, a.logger),
	)
	a.logger.Info("pipeline.ready",
		"strategy", params.Strategy(),
		"persist", a.db != nil,
		"test_types", len(a.catalog.TestTypes()),
	)
	return nil
}

// structurer returns the configured AI provider, or nil when it has no credentials
// and extraction should stay rule-based.
func (a *app) structurer(ctx context.Context) (llm.Structurer, error) {
	cfg := a.cfg
	if !cfg.AIConfigured() {
		a.logger.Warn("llm.not_configured", "provider", cfg.Extraction.Provider, "fallback", constants.StrategyRules)
		return nil, nil
	}
	switch cfg.Extraction.Provider {
	case constants.ProviderGemini:
		c, err := gemini.NewClient(ctx, gemini.Config{
			APIKey:      cfg.LLM.GeminiAPIKey,
			Model:       cfg.LLM.GeminiModel,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     cfg.LLM.Timeout,
		}, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() {
			if err := c.Close(); err != nil {
				a.logger.Warn("llm.gemini.close_failed", "error", err)
			}
		})
		return c, nil
	case constants.ProviderOpenAI:
		return openai.NewClient(openai.Config{
			APIKey:      cfg.LLM.OpenAIAPIKey,
			BaseURL:     cfg.LLM.OpenAIBaseURL,
			Model:       cfg.LLM.OpenAIModel,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     cfg.LLM.Timeout,
		}, a.logger), nil
	}
	return nil, common.NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown AI_PROVIDER %q", cfg.Extraction.Provider), common.ErrInvalidInput)
}

func (a *app) testTypeCodes() []string {
	types := a.catalog.TestTypes()
	codes := make([]string, 0, len(types))
	for _, t := range types {
		codes = append(codes, t.Code)
	}
	return codes
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// sourceFromArg treats http(s) arguments as URLs and everything else as a local path.
func sourceFromArg(arg string) (ocr.Source, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return ocr.Source{}, common.NewAppError("INVALID_INPUT", "a path or URL is required", common.ErrInvalidInput)
	}
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		return ocr.Source{URL: arg}, nil
	}
	abs, err := filepath.Abs(arg)
	if err != nil {
		return ocr.Source{}, fmt.Errorf("resolve %s: %w", arg, err)
	}
	return ocr.Source{Path: abs}, nil
}
