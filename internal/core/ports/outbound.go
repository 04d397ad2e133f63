package ports

import (
	"context"

	"github.com/kirillkom/query-reformulator/internal/core/domain"
)

// ChatModel is the language model collaborator. ChatN returns n completions
// of the same messages in a stable order.
type ChatModel interface {
	Chat(ctx context.Context, messages []domain.Message, opts domain.GenerationOptions) (string, error)
	ChatN(ctx context.Context, messages []domain.Message, opts domain.GenerationOptions, n int) ([]string, error)
}

// PromptRenderer resolves a prompt id and variables into chat messages.
type PromptRenderer interface {
	Render(promptID string, vars map[string]any) ([]domain.Message, error)
	List() []string
	Meta(promptID string) (map[string]any, error)
}

// Searcher is the retrieval boundary used to obtain supporting passages.
// Hits are ordered by descending score; BatchSearch preserves input order.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]domain.SearchHit, error)
	BatchSearch(ctx context.Context, queries []string, k int, concurrency int) ([][]domain.SearchHit, error)
}

// ExampleSource supplies the labelled pool few-shot prompting samples from.
type ExampleSource interface {
	Examples(ctx context.Context) ([]domain.FewShotExample, error)
}

// Embedder builds query vectors for dense search backends.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ResultStore persists completed runs.
type ResultStore interface {
	SaveRun(ctx context.Context, run *domain.ReformulationRun) error
	GetRun(ctx context.Context, id string) (*domain.ReformulationRun, error)
}

// RunQueue publishes and consumes asynchronous run requests.
type RunQueue interface {
	PublishRun(ctx context.Context, req domain.RunRequest) error
	SubscribeRuns(ctx context.Context, handler func(context.Context, domain.RunRequest) error) error
}

// ChatProvider builds the chat model for one method configuration. The llm
// section may override backend, model and endpoint.
type ChatProvider interface {
	ChatModel(cfg domain.MethodConfig) (ChatModel, error)
}
