package methods

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/query-reformulator/internal/core/concat"
	"github.com/kirillkom/query-reformulator/internal/core/domain"
	"github.com/kirillkom/query-reformulator/internal/core/ports"
	"github.com/kirillkom/query-reformulator/internal/core/textparse"
)

const ensemblePromptPrefix = "genqr_ensemble."

var GenQREnsembleInfo = ports.MethodInfo{
	Name:                "genqr_ensemble",
	Version:             "1.0",
	Strategy:            concat.StrategyRepeatPlusGenerated,
	DefaultQueryRepeats: 5,
}

// GenQREnsemble asks for keywords once per instruction variant and merges the
// lists in variant order.
type GenQREnsemble struct {
	*base
	repeats  int
	parallel bool
	variants []string
	opts     domain.GenerationOptions
}

func NewGenQREnsemble(deps ports.MethodDeps) (ports.Reformulator, error) {
	b, err := newBase(GenQREnsembleInfo, deps)
	if err != nil {
		return nil, err
	}

	available := make([]string, 0, 10)
	for _, id := range b.prompts.List() {
		if strings.HasPrefix(id, ensemblePromptPrefix) {
			available = append(available, id)
		}
	}
	if len(available) == 0 {
		return nil, domain.WrapError(domain.ErrUnknownPrompt, "build genqr_ensemble", fmt.Errorf("no %s* instruction prompts", ensemblePromptPrefix))
	}
	n := b.cfg.ParamInt("variants", 10)
	if n <= 0 || n > len(available) {
		n = len(available)
	}

	m := &GenQREnsemble{
		base:     b,
		repeats:  b.cfg.ParamInt("repeat_query_weight", GenQREnsembleInfo.DefaultQueryRepeats),
		parallel: b.cfg.ParamBool("parallel", false),
		variants: available[:n],
		opts:     b.cfg.Generation(0.92, 256),
	}
	m.base.reformulate = m.reformulateOne
	return m, nil
}

func (m *GenQREnsemble) reformulateOne(ctx context.Context, q domain.QueryItem, _ []string) (domain.ReformulationResult, error) {
	vars := map[string]any{"query": q.Text}
	outputs, err := fanOut(ctx, len(m.variants), m.parallel, func(ctx context.Context, i int) (string, error) {
		return m.generate(ctx, m.variants[i], vars, m.opts)
	})
	if err != nil {
		return domain.ReformulationResult{}, err
	}

	merged := make([]string, 0, len(outputs)*8)
	perVariant := make([][]string, 0, len(outputs))
	for _, raw := range outputs {
		keywords := textparse.ParseKeywords(raw)
		perVariant = append(perVariant, keywords)
		merged = append(merged, keywords...)
	}

	reformulated := concat.RepeatPlusGenerated(q.Text, strings.Join(merged, " "), m.repeats)
	return result(q, reformulated, domain.MetadataOf(
		"keywords", merged,
		"keywords_per_variant", perVariant,
		"variant_prompts", m.variants,
		"repeat_query_weight", m.repeats,
		"parallel", m.parallel,
	)), nil
}
