package textparse

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	codeFence     = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*\\s*(.*?)\\s*```")
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
	keyValue      = regexp.MustCompile(`["']?([A-Za-z_][A-Za-z0-9_]*)["']?\s*:\s*"((?:[^"\\]|\\.)*)"`)
)

// ParseJSONObject extracts a JSON object from model output. It tolerates code
// fences, single quotes, trailing commas and truncated documents, then falls
// back to key/value extraction. A top-level array is returned under "items".
// The result is never nil.
func ParseJSONObject(raw string) map[string]any {
	text := strings.TrimSpace(raw)
	if m := codeFence.FindStringSubmatch(text); m != nil {
		text = m[1]
	} else if i := strings.Index(text, "```"); i >= 0 {
		// Unterminated fence: keep what follows the opening line.
		rest := text[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		text = rest
	}

	if candidate := jsonCandidate(text); candidate != "" {
		if obj, ok := decodeObject(candidate); ok {
			return obj
		}
		repaired := closeUnterminated(trailingComma.ReplaceAllString(convertSingleQuotes(candidate), "$1"))
		repaired = trailingComma.ReplaceAllString(repaired, "$1")
		if obj, ok := decodeObject(repaired); ok {
			return obj
		}
	}

	out := make(map[string]any)
	for _, m := range keyValue.FindAllStringSubmatch(text, -1) {
		var value string
		if err := json.Unmarshal([]byte(`"`+m[2]+`"`), &value); err != nil {
			value = m[2]
		}
		out[m[1]] = value
	}
	return out
}

func decodeObject(candidate string) (map[string]any, bool) {
	var v any
	if err := json.Unmarshal([]byte(candidate), &v); err != nil {
		return nil, false
	}
	switch typed := v.(type) {
	case map[string]any:
		return typed, true
	case []any:
		return map[string]any{"items": typed}, true
	default:
		return nil, false
	}
}

// jsonCandidate returns the text from the first opening bracket to its
// matching close, or to the end of input when the document is truncated.
func jsonCandidate(text string) string {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	var quote byte
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				inString = false
			}
			continue
		}
		switch c {
		case '"', '\'':
			inString = true
			quote = c
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return text[start:]
}

// convertSingleQuotes rewrites single-quoted strings as JSON strings. Quotes
// inside double-quoted strings are left alone.
func convertSingleQuotes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inDouble, inSingle, escaped := false, false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inDouble:
			b.WriteByte(c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inDouble = false
			}
		case inSingle:
			if escaped {
				escaped = false
				if c == '\'' {
					b.WriteByte(c)
					continue
				}
				b.WriteByte('\\')
				b.WriteByte(c)
				continue
			}
			switch c {
			case '\\':
				escaped = true
			case '\'':
				if isApostrophe(s, i) {
					b.WriteByte(c)
					continue
				}
				inSingle = false
				b.WriteByte('"')
			case '"':
				b.WriteString(`\"`)
			default:
				b.WriteByte(c)
			}
		default:
			switch c {
			case '"':
				inDouble = true
			case '\'':
				inSingle = true
				c = '"'
			}
			b.WriteByte(c)
		}
	}
	return b.String()
}

// isApostrophe reports whether the quote at i sits between two letters, as in
// "don't", and so does not terminate a single-quoted string.
func isApostrophe(s string, i int) bool {
	if i == 0 || i+1 >= len(s) {
		return false
	}
	return isLetter(s[i-1]) && isLetter(s[i+1])
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// closeUnterminated appends the quotes and brackets needed to close a
// truncated JSON document.
func closeUnterminated(s string) string {
	stack := make([]byte, 0, 8)
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if n := len(stack); n > 0 && stack[n-1] == c {
				stack = stack[:n-1]
			}
		}
	}
	if len(stack) == 0 && !inString {
		return s
	}

	out := s
	if inString {
		if escaped {
			out = out[:len(out)-1]
		}
		out += `"`
	}
	out = strings.TrimRight(out, " \t\r\n")
	out = strings.TrimSuffix(out, ",")
	if strings.HasSuffix(out, ":") {
		out += " null"
	}
	for i := len(stack) - 1; i >= 0; i-- {
		out += string(stack[i])
	}
	return out
}
