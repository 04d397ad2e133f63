package ports

import (
	"context"
	"log/slog"

	"github.com/kirillkom/query-reformulator/internal/core/domain"
)

type MethodInfo struct {
	Name                string `json:"name"`
	Version             string `json:"version"`
	RequiresContext     bool   `json:"requires_context"`
	Strategy            string `json:"concatenation_strategy"`
	DefaultQueryRepeats int    `json:"default_query_repeats,omitempty"`
}

// Reformulator is the contract every reformulation method satisfies.
// A nil contexts slice is treated as an empty one.
type Reformulator interface {
	Info() MethodInfo
	Reformulate(ctx context.Context, q domain.QueryItem, contexts []string) (domain.ReformulationResult, error)
	ReformulateBatch(ctx context.Context, queries []domain.QueryItem, ctxMap map[string][]string) ([]domain.ReformulationResult, error)
}

// MethodDeps are the collaborators a method factory may use. Examples and
// Logger are optional.
type MethodDeps struct {
	Config   domain.MethodConfig
	Chat     ChatModel
	Prompts  PromptRenderer
	Examples ExampleSource
	Logger   *slog.Logger
}

type MethodFactory func(deps MethodDeps) (Reformulator, error)

// ReformulationService is the inbound contract for running a method over a
// batch of queries.
type ReformulationService interface {
	Run(ctx context.Context, req domain.RunRequest) (*domain.ReformulationRun, error)
	Enqueue(ctx context.Context, req domain.RunRequest) (*domain.ReformulationRun, error)
	GetRun(ctx context.Context, id string) (*domain.ReformulationRun, error)
	Methods() []MethodInfo
	Prompts() []string
}
