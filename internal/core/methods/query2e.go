package methods

import (
	"context"
	"strings"

	"github.com/kirillkom/query-reformulator/internal/core/concat"
	"github.com/kirillkom/query-reformulator/internal/core/domain"
	"github.com/kirillkom/query-reformulator/internal/core/ports"
	"github.com/kirillkom/query-reformulator/internal/core/textparse"
)

const query2ePrompt = "query2e.keywords.v1"

var Query2EInfo = ports.MethodInfo{
	Name:                "query2e",
	Version:             "1.0",
	Strategy:            concat.StrategyRepeatPlusGenerated,
	DefaultQueryRepeats: 1,
}

// Query2E appends keywords and named entities to the query, which appears
// once by default. Generation runs at a low temperature.
type Query2E struct {
	*base
	repeats int
	opts    domain.GenerationOptions
}

func NewQuery2E(deps ports.MethodDeps) (ports.Reformulator, error) {
	b, err := newBase(Query2EInfo, deps)
	if err != nil {
		return nil, err
	}
	m := &Query2E{
		base:    b,
		repeats: b.cfg.ParamInt("repeat_query_weight", Query2EInfo.DefaultQueryRepeats),
		opts:    b.cfg.Generation(0.3, 256),
	}
	m.base.reformulate = m.reformulateOne
	return m, nil
}

func (m *Query2E) reformulateOne(ctx context.Context, q domain.QueryItem, _ []string) (domain.ReformulationResult, error) {
	raw, err := m.generate(ctx, query2ePrompt, map[string]any{"query": q.Text}, m.opts)
	if err != nil {
		return domain.ReformulationResult{}, err
	}
	keywords := textparse.ParseKeywords(raw)
	return result(q, concat.RepeatPlusGenerated(q.Text, strings.Join(keywords, " "), m.repeats), domain.MetadataOf(
		"keywords", keywords,
	)), nil
}
