package textparse

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	quotedSentence  = regexp.MustCompile(`"([^"]*)"`)
	relevantHeader  = regexp.MustCompile(`(?im)^Relevant Documents?:?[ \t]*\n?`)
	numberedMarker  = regexp.MustCompile(`\d+[.:]\s*`)
	trailingDigits  = regexp.MustCompile(`^(.*?)(\d+)$`)
	wrappedListKeys = []string{"questions", "sub_questions", "subquestions", "answers", "refined_answers", "items"}
)

// StringList reads a list of strings from model output. JSON objects are read
// in natural key order ("question2" before "question10"); arrays are
// flattened. Anything else is read line by line.
func StringList(raw string) []string {
	if items := ObjectValues(ParseJSONObject(raw)); len(items) > 0 {
		return items
	}
	return ParseLines(raw)
}

// ObjectValues flattens the string values of a parsed object. A known list
// key ("questions", "refined_answers", "items", ...) wins over the rest.
func ObjectValues(obj map[string]any) []string {
	for _, key := range wrappedListKeys {
		if v, ok := obj[key]; ok {
			if items := flattenStrings(v); len(items) > 0 {
				return items
			}
		}
	}
	out := make([]string, 0, len(obj))
	for _, key := range naturalKeys(obj) {
		out = append(out, flattenStrings(obj[key])...)
	}
	return out
}

// ParseSubQuestions returns exactly n sub-questions. Missing entries are
// filled with the original query.
func ParseSubQuestions(raw, query string, n int) []string {
	if n <= 0 {
		return []string{}
	}
	items := StringList(raw)
	out := make([]string, 0, n)
	for _, item := range items {
		if len(out) == n {
			break
		}
		if cleaned := CleanText(item); cleaned != "" {
			out = append(out, cleaned)
		}
	}
	for len(out) < n {
		out = append(out, query)
	}
	return out
}

// ExtractKeySentences returns the double-quoted sentences of a relevance
// judgment joined by spaces. Without quotes it falls back to the text after
// numbered markers ("1.", "2:"), and to "" when neither is present.
func ExtractKeySentences(response string) string {
	if matches := quotedSentence.FindAllStringSubmatch(response, -1); len(matches) > 0 {
		sentences := make([]string, 0, len(matches))
		for _, m := range matches {
			sentences = append(sentences, m[1])
		}
		return strings.Join(sentences, " ")
	}

	cleaned := relevantHeader.ReplaceAllString(response, "")
	markers := numberedMarker.FindAllStringIndex(cleaned, -1)
	extracted := make([]string, 0, len(markers))
	for i, loc := range markers {
		end := len(cleaned)
		if i+1 < len(markers) {
			end = markers[i+1][0]
		}
		if loc[1] >= end {
			continue
		}
		if content := strings.Join(strings.Fields(cleaned[loc[1]:end]), " "); content != "" {
			extracted = append(extracted, content)
		}
	}
	return strings.Join(extracted, " ")
}

func flattenStrings(v any) []string {
	switch typed := v.(type) {
	case nil:
		return nil
	case string:
		if s := strings.TrimSpace(typed); s != "" {
			return []string{s}
		}
		return nil
	case []any:
		out := make([]string, 0, len(typed))
		for _, item := range typed {
			out = append(out, flattenStrings(item)...)
		}
		return out
	case map[string]any:
		out := make([]string, 0, len(typed))
		for _, key := range naturalKeys(typed) {
			out = append(out, flattenStrings(typed[key])...)
		}
		return out
	default:
		return []string{fmt.Sprint(typed)}
	}
}

func naturalKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		pi, ni, oki := splitNumericSuffix(keys[i])
		pj, nj, okj := splitNumericSuffix(keys[j])
		if oki && okj && pi == pj {
			return ni < nj
		}
		return keys[i] < keys[j]
	})
	return keys
}

func splitNumericSuffix(key string) (string, int, bool) {
	m := trailingDigits.FindStringSubmatch(key)
	if m == nil {
		return key, 0, false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return key, 0, false
	}
	return m[1], n, true
}
