// Package methods implements the reformulation methods. Every method renders
// its prompts through the prompt bank, calls the chat model, parses the
// output with textparse and combines it with the query through concat.
package methods

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/kirillkom/query-reformulator/internal/core/domain"
	"github.com/kirillkom/query-reformulator/internal/core/ports"
)

type reformulateFunc func(ctx context.Context, q domain.QueryItem, contexts []string) (domain.ReformulationResult, error)

// base carries what every method shares and provides the default batch loop.
// Methods embed it and set reformulate.
type base struct {
	info        ports.MethodInfo
	cfg         domain.MethodConfig
	chat        ports.ChatModel
	prompts     ports.PromptRenderer
	logger      *slog.Logger
	reformulate reformulateFunc
}

func newBase(info ports.MethodInfo, deps ports.MethodDeps) (*base, error) {
	if deps.Chat == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "build "+info.Name, fmt.Errorf("chat model is required"))
	}
	if deps.Prompts == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "build "+info.Name, fmt.Errorf("prompt bank is required"))
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &base{
		info:    info,
		cfg:     deps.Config.Normalize(),
		chat:    deps.Chat,
		prompts: deps.Prompts,
		logger:  logger.With(slog.String("method", info.Name)),
	}, nil
}

func (b *base) Info() ports.MethodInfo {
	return b.info
}

func (b *base) Reformulate(ctx context.Context, q domain.QueryItem, contexts []string) (domain.ReformulationResult, error) {
	if contexts == nil {
		contexts = []string{}
	}
	return b.reformulate(ctx, q, contexts)
}

// ReformulateBatch processes queries one by one in input order. A missing
// ctxMap entry means no contexts for that query.
func (b *base) ReformulateBatch(ctx context.Context, queries []domain.QueryItem, ctxMap map[string][]string) ([]domain.ReformulationResult, error) {
	out := make([]domain.ReformulationResult, 0, len(queries))
	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := b.Reformulate(ctx, q, ctxMap[q.QID])
		if err != nil {
			return nil, fmt.Errorf("%s qid=%s: %w", b.info.Name, q.QID, err)
		}
		out = append(out, res)
	}
	return out, nil
}

func (b *base) render(promptID string, vars map[string]any) ([]domain.Message, error) {
	msgs, err := b.prompts.Render(promptID, vars)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", promptID, err)
	}
	return msgs, nil
}

func (b *base) generate(ctx context.Context, promptID string, vars map[string]any, opts domain.GenerationOptions) (string, error) {
	msgs, err := b.render(promptID, vars)
	if err != nil {
		return "", err
	}
	out, err := b.chat.Chat(ctx, msgs, opts)
	if err != nil {
		return "", fmt.Errorf("generate %s: %w", promptID, err)
	}
	return out, nil
}

func (b *base) generateN(ctx context.Context, promptID string, vars map[string]any, opts domain.GenerationOptions, n int) ([]string, error) {
	msgs, err := b.render(promptID, vars)
	if err != nil {
		return nil, err
	}
	out, err := b.chat.ChatN(ctx, msgs, opts, n)
	if err != nil {
		return nil, fmt.Errorf("generate %s n=%d: %w", promptID, n, err)
	}
	return out, nil
}

func result(q domain.QueryItem, reformulated string, meta *domain.Metadata) domain.ReformulationResult {
	return domain.ReformulationResult{
		QID:          q.QID,
		Original:     q.Text,
		Reformulated: reformulated,
		Metadata:     meta,
	}
}

// numberedBlock renders passages as "1. p1\n2. p2" after truncating to limit.
func numberedBlock(passages []string, limit int) (string, int) {
	if limit >= 0 && len(passages) > limit {
		passages = passages[:limit]
	}
	lines := make([]string, 0, len(passages))
	for i, p := range passages {
		lines = append(lines, strconv.Itoa(i+1)+". "+p)
	}
	return strings.Join(lines, "\n"), len(passages)
}
