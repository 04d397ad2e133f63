package methods

import (
	"context"

	"github.com/kirillkom/query-reformulator/internal/core/concat"
	"github.com/kirillkom/query-reformulator/internal/core/domain"
	"github.com/kirillkom/query-reformulator/internal/core/ports"
	"github.com/kirillkom/query-reformulator/internal/core/textparse"
)

const lamerPrompt = "lamer.passage.v1"

var LameRInfo = ports.MethodInfo{
	Name:            "lamer",
	Version:         "1.0",
	RequiresContext: true,
	Strategy:        concat.StrategyInterleaved,
}

// LameR shows the model the top retrieved passages, asks for several answer
// passages in one n-completions request and interleaves them with the query.
type LameR struct {
	*base
	numGenerations int
	retrievalK     int
	opts           domain.GenerationOptions
}

func NewLameR(deps ports.MethodDeps) (ports.Reformulator, error) {
	b, err := newBase(LameRInfo, deps)
	if err != nil {
		return nil, err
	}
	n := b.cfg.ParamInt("num_generations", 5)
	if n < 1 {
		n = 1
	}
	m := &LameR{
		base:           b,
		numGenerations: n,
		retrievalK:     b.cfg.ParamInt("retrieval_k", 10),
		opts:           b.cfg.Generation(1.0, 128),
	}
	m.base.reformulate = m.reformulateOne
	return m, nil
}

func (m *LameR) reformulateOne(ctx context.Context, q domain.QueryItem, contexts []string) (domain.ReformulationResult, error) {
	blob, used := numberedBlock(contexts, m.retrievalK)
	outputs, err := m.generateN(ctx, lamerPrompt, map[string]any{"query": q.Text, "contexts": blob}, m.opts, m.numGenerations)
	if err != nil {
		return domain.ReformulationResult{}, err
	}

	passages := make([]string, 0, len(outputs))
	for _, raw := range outputs {
		if p := textparse.CleanText(raw); p != "" {
			passages = append(passages, p)
		}
	}
	return result(q, concat.Interleave(q.Text, passages), domain.MetadataOf(
		"passages", passages,
		"used_ctx", used,
		"num_generations", m.numGenerations,
	)), nil
}
