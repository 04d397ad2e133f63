// Package textparse holds total parsers for untrusted model output. No
// function here returns an error or panics on malformed input; the worst case
// is an empty result or the raw text.
package textparse

import (
	"regexp"
	"strings"
	"unicode"
)

var listMarker = regexp.MustCompile(`^\s*(?:[-*•+]+|\(?\d+[.):])\s+`)

// ParseKeywords splits comma-separated or bulleted output into keywords.
func ParseKeywords(raw string) []string {
	out := make([]string, 0)
	for _, line := range strings.Split(raw, "\n") {
		line = stripListMarker(line)
		for _, part := range strings.Split(line, ",") {
			kw := trimQuotes(strings.TrimSpace(part))
			if kw != "" {
				out = append(out, kw)
			}
		}
	}
	return out
}

// ParseLines returns non-empty lines with list markers removed.
func ParseLines(raw string) []string {
	out := make([]string, 0)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(stripListMarker(line))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// CleanText strips surrounding whitespace and quote characters and collapses
// internal whitespace runs into single spaces.
func CleanText(raw string) string {
	return trimQuotes(strings.Join(strings.Fields(raw), " "))
}

// StripQuotes trims whitespace, then double quotes, then single quotes.
func StripQuotes(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, `"`)
	return strings.Trim(s, `'`)
}

func stripListMarker(line string) string {
	trimmed := strings.TrimLeftFunc(line, unicode.IsSpace)
	if loc := listMarker.FindStringIndex(trimmed); loc != nil {
		return trimmed[loc[1]:]
	}
	if strings.HasPrefix(trimmed, "-") || strings.HasPrefix(trimmed, "*") || strings.HasPrefix(trimmed, "•") {
		return strings.TrimLeft(trimmed, "-*• ")
	}
	return trimmed
}

func trimQuotes(s string) string {
	return strings.TrimSpace(strings.Trim(s, "\"'`“”‘’"))
}
