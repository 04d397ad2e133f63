// Package concat combines an original query with generated expansion text.
// Every strategy is a pure string function.
package concat

import (
	"strings"
	"unicode/utf8"
)

const (
	StrategyRepeatPlusGenerated = "query_repeat_plus_generated"
	StrategyInterleaved         = "interleaved_query_content"
	StrategyAdaptiveRepeat      = "adaptive_query_repeat_plus_generated"

	DefaultAdaptiveTimes = 6
)

// RepeatPlusGenerated repeats the query max(1, repeats) times separated by a
// single space and appends generated when it is non-empty.
func RepeatPlusGenerated(query, generated string, repeats int) string {
	if repeats < 1 {
		repeats = 1
	}
	parts := make([]string, 0, repeats+1)
	for range repeats {
		parts = append(parts, query)
	}
	if generated != "" {
		parts = append(parts, generated)
	}
	return strings.Join(parts, " ")
}

// Interleave produces "q g1 q g2 ... q gN". An empty list yields the query.
func Interleave(query string, generated []string) string {
	if len(generated) == 0 {
		return query
	}
	parts := make([]string, 0, len(generated)*2)
	for _, g := range generated {
		parts = append(parts, query, g)
	}
	return strings.Join(parts, " ")
}

// AdaptiveTimes computes max(1, (len(generated)/len(query)) / adaptiveTimes)
// using integer division over character counts.
func AdaptiveTimes(query, generated string, adaptiveTimes int) int {
	if adaptiveTimes <= 0 {
		adaptiveTimes = DefaultAdaptiveTimes
	}
	queryLen := utf8.RuneCountInString(query)
	if queryLen == 0 {
		return 1
	}
	times := (utf8.RuneCountInString(generated) / queryLen) / adaptiveTimes
	if times < 1 {
		return 1
	}
	return times
}

// AdaptiveRepeat scales query repetition with the generated text length so the
// original query keeps its weight against long pseudo-documents.
func AdaptiveRepeat(query, generated string, adaptiveTimes int) string {
	times := AdaptiveTimes(query, generated, adaptiveTimes)
	return strings.Repeat(query+" ", times) + generated
}
