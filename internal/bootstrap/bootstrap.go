package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/query-reformulator/internal/config"
	"github.com/kirillkom/query-reformulator/internal/core/domain"
	"github.com/kirillkom/query-reformulator/internal/core/methods"
	"github.com/kirillkom/query-reformulator/internal/core/ports"
	"github.com/kirillkom/query-reformulator/internal/core/prompts"
	"github.com/kirillkom/query-reformulator/internal/core/registry"
	"github.com/kirillkom/query-reformulator/internal/core/usecase"
	"github.com/kirillkom/query-reformulator/internal/infrastructure/chunking"
	"github.com/kirillkom/query-reformulator/internal/infrastructure/llm"
	"github.com/kirillkom/query-reformulator/internal/infrastructure/loader"
	"github.com/kirillkom/query-reformulator/internal/infrastructure/queue/nats"
	"github.com/kirillkom/query-reformulator/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/query-reformulator/internal/infrastructure/resilience"
	"github.com/kirillkom/query-reformulator/internal/infrastructure/search/meili"
	"github.com/kirillkom/query-reformulator/internal/infrastructure/search/memory"
	"github.com/kirillkom/query-reformulator/internal/infrastructure/search/qdrant"
)

// Observer receives run and LLM call observations; the metrics types of
// both binaries satisfy it.
type Observer interface {
	ObserveRun(method, status string, queries, fallbacks int, elapsed time.Duration)
	ObserveLLMCall(backend, status string)
}

// rejectObserver is implemented by observers that count undecodable queue
// messages.
type rejectObserver interface {
	ObserveRejected(reason string)
}

type App struct {
	Config config.Config
	Logger *slog.Logger

	Service *usecase.ReformulationUseCase
	Prompts *prompts.Bank
	Loader  *loader.Loader
	// Queue is nil when NATS is not configured.
	Queue *nats.Queue

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger, observer Observer) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	bank, err := loadPromptBank(cfg.PromptBankPath)
	if err != nil {
		return nil, err
	}

	catalog := registry.New()
	if err := methods.RegisterBuiltins(catalog); err != nil {
		return nil, fmt.Errorf("register methods: %w", err)
	}

	opts := usecase.Options{
		SearchThreads: cfg.SearchThreads,
		Logger:        logger,
	}
	var recorder llmRecorder
	if observer != nil {
		recorder = observer
		opts.Observer = observer
	}
	provider := newProvider(cfg, logger, recorder)

	files := loader.New(logger)

	searcher, err := buildSearcher(cfg, files, provider.Embedder(), logger)
	if err != nil {
		return nil, err
	}
	opts.Searcher = searcher

	if cfg.FewShotConfigured() {
		opts.Examples = loader.NewMSMarcoSource(files, cfg.FewShotQueriesPath, cfg.FewShotCollectionPath, cfg.FewShotQrelsPath)
	}

	if cfg.PostgresDSN != "" {
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		closers = append(closers, func() { _ = db.Close() })
		repo := postgres.NewRunRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			closeAll()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		opts.Store = repo
	}

	var queue *nats.Queue
	if cfg.NATSURL != "" {
		queueOpts := nats.Options{
			ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig(), resilience.WithLogger(logger)),
			Logger:             logger,
		}
		if ro, ok := observer.(rejectObserver); ok {
			queueOpts.OnReject = ro.ObserveRejected
		}
		queue, err = nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, queueOpts)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("init run queue: %w", err)
		}
		closers = append(closers, queue.Close)
		opts.Queue = queue
		opts.Completions = queue
	}

	service := usecase.NewReformulationUseCase(catalog, provider, bank, opts)

	return &App{
		Config:  cfg,
		Logger:  logger,
		Service: service,
		Prompts: bank,
		Loader:  files,
		Queue:   queue,
		closeFn: closeAll,
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

type llmRecorder interface {
	ObserveLLMCall(backend, status string)
}

func loadPromptBank(path string) (*prompts.Bank, error) {
	if path == "" {
		bank, err := prompts.Default()
		if err != nil {
			return nil, fmt.Errorf("load default prompt bank: %w", err)
		}
		return bank, nil
	}
	bank, err := prompts.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load prompt bank %s: %w", path, err)
	}
	return bank, nil
}

func buildSearcher(
	cfg config.Config,
	files *loader.Loader,
	embedder ports.Embedder,
	logger *slog.Logger,
) (ports.Searcher, error) {
	switch cfg.SearchBackend {
	case "", config.SearchNone:
		return nil, nil
	case config.SearchMemory:
		passages, err := loadCorpus(cfg, files)
		if err != nil {
			return nil, err
		}
		logger.Info("memory_search_ready", slog.Int("passages", len(passages)))
		return memory.New(passages), nil
	case config.SearchQdrant:
		return newQdrant(cfg, embedder)
	case config.SearchMeili:
		return meili.New(meili.Options{
			Host:   cfg.MeiliHost,
			APIKey: cfg.MeiliAPIKey,
			Index:  cfg.MeiliIndex,
		}), nil
	default:
		return nil, fmt.Errorf("unknown search backend %q", cfg.SearchBackend)
	}
}

func newQdrant(cfg config.Config, embedder ports.Embedder) (*qdrant.Searcher, error) {
	opts := qdrant.Options{
		BaseURL:    cfg.QdrantURL,
		Collection: cfg.QdrantCollection,
		APIKey:     cfg.QdrantAPIKey,
		ContentKey: cfg.QdrantContentKey,
	}
	if cfg.QdrantDense {
		if embedder == nil {
			return nil, fmt.Errorf("qdrant dense search needs LLM_BACKEND=ollama and LLM_EMBED_MODEL")
		}
		opts.Embedder = embedder
	}
	return qdrant.New(opts), nil
}

// IndexQdrant loads SEARCH_CORPUS_PATH, chunks it and upserts the passages
// into the configured Qdrant collection. It returns the number of points
// written.
func IndexQdrant(ctx context.Context, cfg config.Config, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QdrantURL == "" {
		return 0, domain.WrapError(domain.ErrSearchNotEnabled, "index qdrant", errors.New("QDRANT_URL is not set"))
	}
	searcher, err := newQdrant(cfg, newProvider(cfg, logger, nil).Embedder())
	if err != nil {
		return 0, err
	}
	passages, err := loadCorpus(cfg, loader.New(logger))
	if err != nil {
		return 0, err
	}
	if err := searcher.Index(ctx, passages); err != nil {
		return 0, fmt.Errorf("index corpus into qdrant: %w", err)
	}
	logger.Info("qdrant_corpus_indexed",
		"collection", cfg.QdrantCollection,
		"passages", len(passages),
	)
	return len(passages), nil
}

func newProvider(cfg config.Config, logger *slog.Logger, recorder llmRecorder) *llm.Provider {
	policy := resilience.LLMConfig()
	policy.BreakerEnabled = cfg.LLMBreakerEnabled
	policy.RateLimitPerSecond = cfg.LLMRateLimitPerSecond
	policy.RateLimitBurst = cfg.LLMRateLimitBurst
	executor := resilience.NewExecutor(policy, resilience.WithLogger(logger))
	return llm.NewProvider(llm.Settings{
		Backend:    cfg.LLMBackend,
		BaseURL:    cfg.LLMBaseURL,
		APIKey:     cfg.LLMAPIKey,
		Model:      cfg.LLMModel,
		EmbedModel: cfg.LLMEmbedModel,
	}, executor, recorder)
}

func loadCorpus(cfg config.Config, files *loader.Loader) ([]domain.Passage, error) {
	if cfg.SearchCorpusPath == "" {
		return nil, fmt.Errorf("SEARCH_CORPUS_PATH is required for %s search", cfg.SearchBackend)
	}
	passages, err := files.LoadCorpus(cfg.SearchCorpusPath)
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	return chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap).SplitPassages(passages), nil
}
