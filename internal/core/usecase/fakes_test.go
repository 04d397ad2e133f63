package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/query-reformulator/internal/core/domain"
	"github.com/kirillkom/query-reformulator/internal/core/methods"
	"github.com/kirillkom/query-reformulator/internal/core/ports"
	"github.com/kirillkom/query-reformulator/internal/core/prompts"
	"github.com/kirillkom/query-reformulator/internal/core/registry"
)

type chatModelFake struct {
	mu       sync.Mutex
	reply    string
	err      error
	messages [][]domain.Message
}

func (f *chatModelFake) Chat(_ context.Context, messages []domain.Message, _ domain.GenerationOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, messages)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *chatModelFake) ChatN(_ context.Context, messages []domain.Message, _ domain.GenerationOptions, n int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, messages)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s %d", f.reply, i+1)
	}
	return out, nil
}

func (f *chatModelFake) sawText(text string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, msgs := range f.messages {
		for _, m := range msgs {
			if strings.Contains(m.Content, text) {
				return true
			}
		}
	}
	return false
}

type chatProviderFake struct {
	model *chatModelFake
	err   error
	cfgs  []domain.MethodConfig
}

func (f *chatProviderFake) ChatModel(cfg domain.MethodConfig) (ports.ChatModel, error) {
	f.cfgs = append(f.cfgs, cfg)
	if f.err != nil {
		return nil, f.err
	}
	return f.model, nil
}

type searcherFake struct {
	mu          sync.Mutex
	queries     []string
	k           int
	concurrency int
	err         error
}

func (f *searcherFake) Search(ctx context.Context, query string, k int) ([]domain.SearchHit, error) {
	out, err := f.BatchSearch(ctx, []string{query}, k, 1)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (f *searcherFake) BatchSearch(_ context.Context, queries []string, k int, concurrency int) ([][]domain.SearchHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, queries...)
	f.k = k
	f.concurrency = concurrency
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]domain.SearchHit, len(queries))
	for i, q := range queries {
		out[i] = []domain.SearchHit{{DocID: "d" + q, Content: "passage about " + q, Score: 1}}
	}
	return out, nil
}

type storeFake struct {
	mu    sync.Mutex
	saved []domain.ReformulationRun
	runs  map[string]*domain.ReformulationRun
	err   error
}

func (f *storeFake) SaveRun(_ context.Context, run *domain.ReformulationRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, *run)
	if f.runs == nil {
		f.runs = make(map[string]*domain.ReformulationRun)
	}
	copied := *run
	f.runs[run.ID] = &copied
	return nil
}

func (f *storeFake) GetRun(_ context.Context, id string) (*domain.ReformulationRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrRunNotFound, "get run", fmt.Errorf("id=%s", id))
	}
	return run, nil
}

type queueFake struct {
	published []domain.RunRequest
	err       error
}

func (f *queueFake) PublishRun(_ context.Context, req domain.RunRequest) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, req)
	return nil
}

func (f *queueFake) SubscribeRuns(context.Context, func(context.Context, domain.RunRequest) error) error {
	return nil
}

type observation struct {
	method    string
	status    string
	queries   int
	fallbacks int
}

type observerFake struct {
	observed []observation
}

func (f *observerFake) ObserveRun(method, status string, queries, fallbacks int, _ time.Duration) {
	f.observed = append(f.observed, observation{method, status, queries, fallbacks})
}

type completionsFake struct {
	runs []domain.ReformulationRun
}

func (f *completionsFake) PublishRunCompleted(_ context.Context, run *domain.ReformulationRun) error {
	f.runs = append(f.runs, *run)
	return nil
}

func newCatalog(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()
	if err := methods.RegisterBuiltins(reg); err != nil {
		t.Fatalf("register builtins: %v", err)
	}
	return reg
}

func newBank(t *testing.T) *prompts.Bank {
	t.Helper()
	bank, err := prompts.Default()
	if err != nil {
		t.Fatalf("default prompt bank: %v", err)
	}
	return bank
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newUseCase(t *testing.T, provider *chatProviderFake, opts Options) *ReformulationUseCase {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
	return NewReformulationUseCase(newCatalog(t), provider, newBank(t), opts)
}

func queries(texts ...string) []domain.QueryItem {
	out := make([]domain.QueryItem, 0, len(texts))
	for i, text := range texts {
		out = append(out, domain.QueryItem{QID: fmt.Sprintf("q%d", i+1), Text: text})
	}
	return out
}
