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

const (
	qaSubQuestionPrompt = "qa_expand.subq.v1"
	qaAnswerPrompt      = "qa_expand.answer.v1"
	qaRefinePrompt      = "qa_expand.refine.v1"

	qaSubQuestions = 3
	qaQueryRepeats = 3
)

var QAExpandInfo = ports.MethodInfo{
	Name:                "qa_expand",
	Version:             "1.0",
	RequiresContext:     true,
	Strategy:            concat.StrategyRepeatPlusGenerated,
	DefaultQueryRepeats: qaQueryRepeats,
}

// QAExpand runs a fixed decompose, answer, refine pipeline of three calls
// and appends the refined answers to the query repeated three times.
type QAExpand struct {
	*base
	subqOpts   domain.GenerationOptions
	answerOpts domain.GenerationOptions
	refineOpts domain.GenerationOptions
}

func NewQAExpand(deps ports.MethodDeps) (ports.Reformulator, error) {
	b, err := newBase(QAExpandInfo, deps)
	if err != nil {
		return nil, err
	}
	// Step temperatures are fixed; only max_tokens follows the llm section.
	maxTokens := b.cfg.Generation(0, 512).MaxTokens
	m := &QAExpand{
		base:       b,
		subqOpts:   domain.GenerationOptions{Temperature: 0.2, MaxTokens: maxTokens},
		answerOpts: domain.GenerationOptions{Temperature: 0.2, MaxTokens: maxTokens},
		refineOpts: domain.GenerationOptions{Temperature: 0.3, MaxTokens: maxTokens},
	}
	m.base.reformulate = m.reformulateOne
	return m, nil
}

func (m *QAExpand) reformulateOne(ctx context.Context, q domain.QueryItem, contexts []string) (domain.ReformulationResult, error) {
	rawSubQ, err := m.generate(ctx, qaSubQuestionPrompt, map[string]any{"query": q.Text}, m.subqOpts)
	if err != nil {
		return domain.ReformulationResult{}, err
	}
	subQuestions := textparse.ParseSubQuestions(rawSubQ, q.Text, qaSubQuestions)

	ctxBlob, _ := numberedBlock(contexts, -1)
	rawAnswers, err := m.generate(ctx, qaAnswerPrompt, map[string]any{
		"query":        q.Text,
		"contexts":     ctxBlob,
		"subquestions": numberedList(subQuestions),
	}, m.answerOpts)
	if err != nil {
		return domain.ReformulationResult{}, err
	}
	answers := padAnswers(textparse.StringList(rawAnswers), qaSubQuestions)

	rawRefined, err := m.generate(ctx, qaRefinePrompt, map[string]any{
		"query":    q.Text,
		"qa_pairs": qaPairs(subQuestions, answers),
	}, m.refineOpts)
	if err != nil {
		return domain.ReformulationResult{}, err
	}
	refined, parsed := refinedAnswers(rawRefined)

	reformulated := concat.RepeatPlusGenerated(q.Text, strings.Join(refined, " "), qaQueryRepeats)
	return result(q, reformulated, domain.MetadataOf(
		"subquestions", subQuestions,
		"answers", answers,
		"refined_answers", refined,
		"refine_parsed", parsed,
		"used_ctx", len(contexts),
	)), nil
}

// refinedAnswers reads the refine step output. When nothing structured can
// be recovered the cleaned raw text is used as the single answer.
func refinedAnswers(raw string) ([]string, bool) {
	items := textparse.ObjectValues(textparse.ParseJSONObject(raw))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if cleaned := textparse.CleanText(item); cleaned != "" {
			out = append(out, cleaned)
		}
	}
	if len(out) > 0 {
		return out, true
	}
	if cleaned := textparse.CleanText(raw); cleaned != "" {
		return []string{cleaned}, false
	}
	return []string{}, false
}

func padAnswers(answers []string, n int) []string {
	out := make([]string, n)
	for i := 0; i < n && i < len(answers); i++ {
		out[i] = textparse.CleanText(answers[i])
	}
	return out
}

func numberedList(items []string) string {
	lines := make([]string, 0, len(items))
	for i, item := range items {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, item))
	}
	return strings.Join(lines, "\n")
}

func qaPairs(questions, answers []string) string {
	blocks := make([]string, 0, len(questions))
	for i, question := range questions {
		answer := ""
		if i < len(answers) {
			answer = answers[i]
		}
		blocks = append(blocks, fmt.Sprintf("Q%d: %s\nA%d: %s", i+1, question, i+1, answer))
	}
	return strings.Join(blocks, "\n\n")
}
