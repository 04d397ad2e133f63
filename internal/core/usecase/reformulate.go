package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/query-reformulator/internal/core/domain"
	"github.com/kirillkom/query-reformulator/internal/core/ports"
)

const defaultRetrievalK = 10

// MethodCatalog resolves method names into reformulators.
type MethodCatalog interface {
	Build(deps ports.MethodDeps) (ports.Reformulator, error)
	Info(name string) (ports.MethodInfo, bool)
	Infos() []ports.MethodInfo
}

type RunObserver interface {
	ObserveRun(method, status string, queries, fallbacks int, elapsed time.Duration)
}

type CompletionPublisher interface {
	PublishRunCompleted(ctx context.Context, run *domain.ReformulationRun) error
}

// Options carries the optional collaborators. Nil values disable the
// matching feature.
type Options struct {
	Examples      ports.ExampleSource
	Searcher      ports.Searcher
	SearchThreads int
	Store         ports.ResultStore
	Queue         ports.RunQueue
	Completions   CompletionPublisher
	Observer      RunObserver
	Logger        *slog.Logger
}

type ReformulationUseCase struct {
	methods       MethodCatalog
	chat          ports.ChatProvider
	prompts       ports.PromptRenderer
	examples      ports.ExampleSource
	searcher      ports.Searcher
	searchThreads int
	store         ports.ResultStore
	queue         ports.RunQueue
	completions   CompletionPublisher
	observer      RunObserver
	logger        *slog.Logger
	now           func() time.Time
}

func NewReformulationUseCase(
	methods MethodCatalog,
	chat ports.ChatProvider,
	prompts ports.PromptRenderer,
	opts Options,
) *ReformulationUseCase {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ReformulationUseCase{
		methods:       methods,
		chat:          chat,
		prompts:       prompts,
		examples:      opts.Examples,
		searcher:      opts.Searcher,
		searchThreads: opts.SearchThreads,
		store:         opts.Store,
		queue:         opts.Queue,
		completions:   opts.Completions,
		observer:      opts.Observer,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Run reformulates every query of the request with one method. Contexts
// missing for a context-dependent method are retrieved through the searcher.
func (uc *ReformulationUseCase) Run(ctx context.Context, req domain.RunRequest) (*domain.ReformulationRun, error) {
	cfg := req.Config.Normalize()
	if err := validateRequest(cfg, req.Queries); err != nil {
		return nil, err
	}
	info, ok := uc.methods.Info(cfg.Name)
	if !ok {
		return nil, domain.WrapError(domain.ErrUnknownMethod, "run", fmt.Errorf("method %q", cfg.Name))
	}

	run := &domain.ReformulationRun{
		ID:        req.ID,
		Method:    cfg.Name,
		Status:    domain.RunStatusRunning,
		StartedAt: uc.now(),
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	logger := uc.logger.With(slog.String("run_id", run.ID), slog.String("method", cfg.Name))

	results, err := uc.execute(ctx, info, cfg, req, logger)
	run.FinishedAt = uc.now()
	elapsed := run.FinishedAt.Sub(run.StartedAt)
	if err != nil {
		run.Status = domain.RunStatusFailed
		run.Error = err.Error()
		uc.observe(cfg.Name, string(run.Status), 0, 0, elapsed)
		logger.Error("run_failed", slog.Any("error", err))
		if req.ID != "" {
			uc.persistFailure(ctx, run, logger)
		}
		return nil, err
	}

	run.Status = domain.RunStatusCompleted
	run.Results = results
	for _, r := range results {
		if r.Fallback() {
			run.Fallbacks++
		}
	}
	uc.observe(cfg.Name, string(run.Status), len(results), run.Fallbacks, elapsed)

	if uc.store != nil {
		if err := uc.store.SaveRun(ctx, run); err != nil {
			return nil, fmt.Errorf("save run: %w", err)
		}
	}
	if uc.completions != nil {
		if err := uc.completions.PublishRunCompleted(ctx, run); err != nil {
			logger.Warn("run_completion_publish_failed", slog.Any("error", err))
		}
	}

	logger.Info("run_completed",
		slog.Int("queries", len(results)),
		slog.Int("fallbacks", run.Fallbacks),
		slog.Duration("elapsed", elapsed),
	)
	return run, nil
}

func (uc *ReformulationUseCase) execute(
	ctx context.Context,
	info ports.MethodInfo,
	cfg domain.MethodConfig,
	req domain.RunRequest,
	logger *slog.Logger,
) ([]domain.ReformulationResult, error) {
	chat, err := uc.chat.ChatModel(cfg)
	if err != nil {
		return nil, fmt.Errorf("resolve chat model: %w", err)
	}
	reformulator, err := uc.methods.Build(ports.MethodDeps{
		Config:   cfg,
		Chat:     chat,
		Prompts:  uc.prompts,
		Examples: uc.examples,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build method: %w", err)
	}

	ctxMap := req.Contexts
	switch {
	case !info.RequiresContext || ctxMap != nil:
	case uc.searcher == nil:
		logger.Warn("contexts_unavailable",
			"method", info.Name,
			"queries", len(req.Queries),
			"hint", "supply contexts or set SEARCH_BACKEND",
		)
	default:
		ctxMap, err = uc.retrieveContexts(ctx, req.Queries, cfg.ParamInt("retrieval_k", defaultRetrievalK))
		if err != nil {
			return nil, err
		}
	}

	results, err := reformulator.ReformulateBatch(ctx, req.Queries, ctxMap)
	if err != nil {
		return nil, fmt.Errorf("reformulate batch: %w", err)
	}
	return results, nil
}

func (uc *ReformulationUseCase) retrieveContexts(ctx context.Context, queries []domain.QueryItem, k int) (map[string][]string, error) {
	texts := make([]string, 0, len(queries))
	for _, q := range queries {
		texts = append(texts, q.Text)
	}
	hits, err := uc.searcher.BatchSearch(ctx, texts, k, uc.searchThreads)
	if err != nil {
		return nil, fmt.Errorf("retrieve contexts: %w", err)
	}
	out := make(map[string][]string, len(queries))
	for i, q := range queries {
		out[q.QID] = domain.Contents(hits[i])
	}
	return out, nil
}

// Enqueue validates the request, records it as queued and hands it to the
// run queue.
func (uc *ReformulationUseCase) Enqueue(ctx context.Context, req domain.RunRequest) (*domain.ReformulationRun, error) {
	if uc.queue == nil {
		return nil, domain.WrapError(domain.ErrQueueNotEnabled, "enqueue run", errors.New("asynchronous runs are disabled"))
	}
	req.Config = req.Config.Normalize()
	if err := validateRequest(req.Config, req.Queries); err != nil {
		return nil, err
	}
	if _, ok := uc.methods.Info(req.Config.Name); !ok {
		return nil, domain.WrapError(domain.ErrUnknownMethod, "enqueue run", fmt.Errorf("method %q", req.Config.Name))
	}

	req.ID = uuid.NewString()
	req.EnqueuedAt = uc.now()
	run := &domain.ReformulationRun{
		ID:        req.ID,
		Method:    req.Config.Name,
		Status:    domain.RunStatusQueued,
		StartedAt: req.EnqueuedAt,
	}
	if uc.store != nil {
		if err := uc.store.SaveRun(ctx, run); err != nil {
			return nil, fmt.Errorf("save queued run: %w", err)
		}
	}
	if err := uc.queue.PublishRun(ctx, req); err != nil {
		return nil, fmt.Errorf("publish run: %w", err)
	}
	return run, nil
}

func (uc *ReformulationUseCase) GetRun(ctx context.Context, id string) (*domain.ReformulationRun, error) {
	if uc.store == nil {
		return nil, domain.WrapError(domain.ErrStoreNotEnabled, "get run", errors.New("run persistence is disabled"))
	}
	return uc.store.GetRun(ctx, id)
}

func (uc *ReformulationUseCase) Methods() []ports.MethodInfo {
	return uc.methods.Infos()
}

func (uc *ReformulationUseCase) Prompts() []string {
	return uc.prompts.List()
}

func (uc *ReformulationUseCase) persistFailure(ctx context.Context, run *domain.ReformulationRun, logger *slog.Logger) {
	if uc.store == nil {
		return
	}
	if err := uc.store.SaveRun(ctx, run); err != nil {
		logger.Error("run_failure_persist_failed", slog.Any("error", err))
	}
}

func (uc *ReformulationUseCase) observe(method, status string, queries, fallbacks int, elapsed time.Duration) {
	if uc.observer != nil {
		uc.observer.ObserveRun(method, status, queries, fallbacks, elapsed)
	}
}

func validateRequest(cfg domain.MethodConfig, queries []domain.QueryItem) error {
	if cfg.Name == "" {
		return domain.WrapError(domain.ErrInvalidInput, "validate run", errors.New("method is required"))
	}
	if len(queries) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "validate run", errors.New("at least one query is required"))
	}
	seen := make(map[string]struct{}, len(queries))
	for i, q := range queries {
		if q.QID == "" {
			return domain.WrapError(domain.ErrInvalidInput, "validate run", fmt.Errorf("query %d has no qid", i))
		}
		if _, dup := seen[q.QID]; dup {
			return domain.WrapError(domain.ErrInvalidInput, "validate run", fmt.Errorf("duplicate qid %q", q.QID))
		}
		seen[q.QID] = struct{}{}
	}
	return nil
}

var _ ports.ReformulationService = (*ReformulationUseCase)(nil)
