package methods

import (
	"context"
	"strings"

	"github.com/kirillkom/query-reformulator/internal/core/domain"
	"github.com/kirillkom/query-reformulator/internal/core/ports"
	"github.com/kirillkom/query-reformulator/internal/core/textparse"
)

const (
	keqePrompt = "keqe.v1"
	csqePrompt = "csqe.v1"

	StrategyCSQE = "query_repeat_plus_knowledge_plus_context_sentences"
)

var CSQEInfo = ports.MethodInfo{
	Name:            "csqe",
	Version:         "1.0",
	RequiresContext: true,
	Strategy:        StrategyCSQE,
}

// CSQE combines knowledge-only passages with key sentences the model quotes
// from retrieved documents. The expanded query is lowercased.
type CSQE struct {
	*base
	genNum     int
	retrievalK int
	opts       domain.GenerationOptions
}

func NewCSQE(deps ports.MethodDeps) (ports.Reformulator, error) {
	b, err := newBase(CSQEInfo, deps)
	if err != nil {
		return nil, err
	}
	n := b.cfg.ParamInt("gen_num", 2)
	if n < 1 {
		n = 1
	}
	m := &CSQE{
		base:       b,
		genNum:     n,
		retrievalK: b.cfg.ParamInt("retrieval_k", 10),
		opts:       b.cfg.Generation(1.0, 1024),
	}
	m.base.reformulate = m.reformulateOne
	return m, nil
}

func (m *CSQE) reformulateOne(ctx context.Context, q domain.QueryItem, contexts []string) (domain.ReformulationResult, error) {
	blob, used := numberedBlock(contexts, m.retrievalK)

	rawKnowledge, err := m.generateN(ctx, keqePrompt, map[string]any{"query": q.Text}, m.opts, m.genNum)
	if err != nil {
		return domain.ReformulationResult{}, err
	}
	knowledge := make([]string, 0, len(rawKnowledge))
	for _, raw := range rawKnowledge {
		knowledge = append(knowledge, textparse.StripQuotes(raw))
	}

	responses, err := m.generateN(ctx, csqePrompt, map[string]any{"query": q.Text, "contexts": blob}, m.opts, m.genNum)
	if err != nil {
		return domain.ReformulationResult{}, err
	}
	sentences := make([]string, 0, len(responses))
	for _, resp := range responses {
		sentences = append(sentences, textparse.ExtractKeySentences(resp))
	}

	parts := make([]string, 0, m.genNum+len(knowledge)+len(sentences))
	for range m.genNum {
		parts = append(parts, q.Text)
	}
	parts = append(parts, knowledge...)
	parts = append(parts, sentences...)
	reformulated := strings.TrimSpace(strings.ToLower(strings.Join(parts, " ")))
	reformulated = strings.Trim(strings.Trim(reformulated, `"`), `'`)

	return result(q, reformulated, domain.MetadataOf(
		"keqe_passages", knowledge,
		"csqe_responses", responses,
		"csqe_sentences", sentences,
		"gen_num", m.genNum,
		"total_generations", m.genNum*2,
		"used_ctx", used,
	)), nil
}
