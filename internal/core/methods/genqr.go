package methods

import (
	"context"
	"strings"

	"github.com/kirillkom/query-reformulator/internal/core/concat"
	"github.com/kirillkom/query-reformulator/internal/core/domain"
	"github.com/kirillkom/query-reformulator/internal/core/ports"
	"github.com/kirillkom/query-reformulator/internal/core/textparse"
)

const genqrPrompt = "genqr.keywords.v1"

var GenQRInfo = ports.MethodInfo{
	Name:                "genqr",
	Version:             "1.0",
	Strategy:            concat.StrategyRepeatPlusGenerated,
	DefaultQueryRepeats: 5,
}

// GenQR expands a query with one list of model-generated keywords:
// (query x repeat_query_weight) + keywords.
type GenQR struct {
	*base
	repeats int
	opts    domain.GenerationOptions
}

func NewGenQR(deps ports.MethodDeps) (ports.Reformulator, error) {
	b, err := newBase(GenQRInfo, deps)
	if err != nil {
		return nil, err
	}
	m := &GenQR{
		base:    b,
		repeats: b.cfg.ParamInt("repeat_query_weight", GenQRInfo.DefaultQueryRepeats),
		opts:    b.cfg.Generation(0.8, 256),
	}
	m.base.reformulate = m.reformulateOne
	return m, nil
}

func (m *GenQR) reformulateOne(ctx context.Context, q domain.QueryItem, _ []string) (domain.ReformulationResult, error) {
	raw, err := m.generate(ctx, genqrPrompt, map[string]any{"query": q.Text}, m.opts)
	if err != nil {
		return domain.ReformulationResult{}, err
	}
	keywords := textparse.ParseKeywords(raw)
	reformulated := concat.RepeatPlusGenerated(q.Text, strings.Join(keywords, " "), m.repeats)
	return result(q, reformulated, domain.MetadataOf(
		"keywords", keywords,
		"repeat_query_weight", m.repeats,
		"raw_output", raw,
	)), nil
}
