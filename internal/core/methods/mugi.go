package methods

import (
	"context"
	"strings"

	"github.com/kirillkom/query-reformulator/internal/core/concat"
	"github.com/kirillkom/query-reformulator/internal/core/domain"
	"github.com/kirillkom/query-reformulator/internal/core/ports"
	"github.com/kirillkom/query-reformulator/internal/core/textparse"
)

const mugiPrompt = "mugi.pseudo_doc.v1"

var MuGIInfo = ports.MethodInfo{
	Name:     "mugi",
	Version:  "1.0",
	Strategy: concat.StrategyAdaptiveRepeat,
}

// MuGI generates several pseudo-documents from the same prompt and balances
// the query against their combined length with adaptive repetition.
type MuGI struct {
	*base
	numDocs       int
	adaptiveTimes int
	parallel      bool
	opts          domain.GenerationOptions
}

func NewMuGI(deps ports.MethodDeps) (ports.Reformulator, error) {
	b, err := newBase(MuGIInfo, deps)
	if err != nil {
		return nil, err
	}
	numDocs := b.cfg.ParamInt("num_docs", 5)
	if numDocs < 1 {
		numDocs = 1
	}
	m := &MuGI{
		base:          b,
		numDocs:       numDocs,
		adaptiveTimes: b.cfg.ParamInt("adaptive_times", concat.DefaultAdaptiveTimes),
		parallel:      b.cfg.ParamBool("parallel", false),
		opts:          b.cfg.Generation(1.0, 1024),
	}
	m.base.reformulate = m.reformulateOne
	return m, nil
}

func (m *MuGI) reformulateOne(ctx context.Context, q domain.QueryItem, _ []string) (domain.ReformulationResult, error) {
	vars := map[string]any{"query": q.Text}
	docs, err := fanOut(ctx, m.numDocs, m.parallel, func(ctx context.Context, _ int) (string, error) {
		raw, err := m.generate(ctx, mugiPrompt, vars, m.opts)
		if err != nil {
			return "", err
		}
		return textparse.StripQuotes(raw), nil
	})
	if err != nil {
		return domain.ReformulationResult{}, err
	}

	generated := strings.Join(docs, " ")
	times := concat.AdaptiveTimes(q.Text, generated, m.adaptiveTimes)
	return result(q, concat.AdaptiveRepeat(q.Text, generated, m.adaptiveTimes), domain.MetadataOf(
		"pseudo_docs", docs,
		"repetition_times", times,
		"adaptive_times", m.adaptiveTimes,
		"parallel", m.parallel,
	)), nil
}
