package methods

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"

	"github.com/kirillkom/query-reformulator/internal/core/concat"
	"github.com/kirillkom/query-reformulator/internal/core/domain"
	"github.com/kirillkom/query-reformulator/internal/core/ports"
	"github.com/kirillkom/query-reformulator/internal/core/textparse"
)

const (
	Query2DocZeroShot = "zs"
	Query2DocCoT      = "cot"
	Query2DocFewShot  = "fs"
)

var query2docPrompts = map[string]string{
	Query2DocZeroShot: "query2doc.zeroshot.v1",
	Query2DocCoT:      "query2doc.cot.v1",
	Query2DocFewShot:  "query2doc.fewshot.v1",
}

var Query2DocInfo = ports.MethodInfo{
	Name:                "query2doc",
	Version:             "1.0",
	Strategy:            concat.StrategyRepeatPlusGenerated,
	DefaultQueryRepeats: 1,
}

// Query2Doc appends one generated pseudo-document to the query. It is the
// only method that falls back to the original query when generation fails
// with a timeout, rate limit, temporary or malformed-response error.
type Query2Doc struct {
	*base
	mode        string
	promptID    string
	repeats     int
	numExamples int
	opts        domain.GenerationOptions

	examples ports.ExampleSource

	// pool is loaded from examples on first few-shot use and read-only after.
	poolOnce sync.Once
	pool     []domain.FewShotExample
	poolErr  error

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewQuery2Doc(deps ports.MethodDeps) (ports.Reformulator, error) {
	b, err := newBase(Query2DocInfo, deps)
	if err != nil {
		return nil, err
	}

	mode := strings.ToLower(strings.TrimSpace(b.cfg.ParamString("mode", Query2DocZeroShot)))
	promptID, ok := query2docPrompts[mode]
	if !ok {
		return nil, domain.WrapError(domain.ErrInvalidInput, "build query2doc", fmt.Errorf("unsupported mode %q (want zs, cot or fs)", mode))
	}
	if mode == Query2DocFewShot && deps.Examples == nil {
		return nil, domain.WrapError(domain.ErrMissingExamples, "build query2doc", fmt.Errorf("few-shot mode needs an example source"))
	}

	m := &Query2Doc{
		base:        b,
		mode:        mode,
		promptID:    promptID,
		repeats:     b.cfg.ParamInt("query_repeats", Query2DocInfo.DefaultQueryRepeats),
		numExamples: b.cfg.ParamInt("num_examples", 4),
		opts:        b.cfg.Generation(0.7, 256),
		examples:    deps.Examples,
		rng:         rand.New(rand.NewSource(b.cfg.SeedValue())),
	}
	m.base.reformulate = m.reformulateOne
	return m, nil
}

func (m *Query2Doc) reformulateOne(ctx context.Context, q domain.QueryItem, _ []string) (domain.ReformulationResult, error) {
	vars := map[string]any{"query": q.Text}
	meta := domain.MetadataOf("mode", m.mode)

	if m.mode == Query2DocFewShot {
		shots, err := m.sampleExamples(ctx)
		if err != nil {
			return domain.ReformulationResult{}, err
		}
		vars["examples"] = formatExamples(shots)
		meta.Set("num_examples", len(shots))
	}

	raw, err := m.generate(ctx, m.promptID, vars, m.opts)
	if err != nil {
		if !domain.IsRecoverableGeneration(err) {
			return domain.ReformulationResult{}, err
		}
		m.logger.Warn("reformulation_fallback",
			slog.String("qid", q.QID),
			slog.String("error", err.Error()),
		)
		meta.Set(domain.MetaFallback, true)
		meta.Set(domain.MetaError, err.Error())
		return result(q, q.Text, meta), nil
	}

	doc := textparse.StripQuotes(raw)
	meta.Set("pseudo_doc", doc)
	return result(q, concat.RepeatPlusGenerated(q.Text, doc, m.repeats), meta), nil
}

func (m *Query2Doc) loadPool(ctx context.Context) ([]domain.FewShotExample, error) {
	m.poolOnce.Do(func() {
		pool, err := m.examples.Examples(ctx)
		if err != nil {
			m.poolErr = domain.WrapError(domain.ErrMissingExamples, "load few-shot examples", err)
			return
		}
		if len(pool) == 0 {
			m.poolErr = domain.WrapError(domain.ErrMissingExamples, "load few-shot examples", fmt.Errorf("example source is empty"))
			return
		}
		m.pool = pool
		m.logger.Info("fewshot_pool_loaded", slog.Int("examples", len(pool)))
	})
	return m.pool, m.poolErr
}

// sampleExamples draws num_examples distinct pairs. The generator is seeded
// from the method config so a run is reproducible.
func (m *Query2Doc) sampleExamples(ctx context.Context) ([]domain.FewShotExample, error) {
	pool, err := m.loadPool(ctx)
	if err != nil {
		return nil, err
	}
	k := m.numExamples
	if k <= 0 {
		return []domain.FewShotExample{}, nil
	}
	if k > len(pool) {
		k = len(pool)
	}

	m.rngMu.Lock()
	perm := m.rng.Perm(len(pool))
	m.rngMu.Unlock()

	out := make([]domain.FewShotExample, 0, k)
	for _, idx := range perm[:k] {
		out = append(out, pool[idx])
	}
	return out, nil
}

func formatExamples(shots []domain.FewShotExample) string {
	blocks := make([]string, 0, len(shots))
	for _, s := range shots {
		blocks = append(blocks, "Query: "+s.Query+"\nPassage: "+s.Passage)
	}
	return strings.Join(blocks, "\n\n")
}
