package prompts

import (
	"fmt"
	"strings"

	"github.com/kirillkom/query-reformulator/internal/core/domain"
)

// Format substitutes {name} placeholders from vars. Doubled braces produce a
// literal brace. Placeholders are plain identifiers; no expressions are
// evaluated.
func Format(tmpl string, vars map[string]any) (string, error) {
	var b strings.Builder
	b.Grow(len(tmpl))

	for i := 0; i < len(tmpl); {
		c := tmpl[i]
		switch c {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				b.WriteByte('{')
				i += 2
				continue
			}
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("%w: unclosed placeholder at offset %d", domain.ErrInvalidTemplate, i)
			}
			name := tmpl[i+1 : i+1+end]
			if !isIdentifier(name) {
				return "", fmt.Errorf("%w: bad placeholder %q", domain.ErrInvalidTemplate, name)
			}
			v, ok := vars[name]
			if !ok {
				return "", fmt.Errorf("%w: %s", domain.ErrMissingVariable, name)
			}
			b.WriteString(stringify(v))
			i += end + 2
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				b.WriteByte('}')
				i += 2
				continue
			}
			return "", fmt.Errorf("%w: single '}' at offset %d", domain.ErrInvalidTemplate, i)
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), nil
}

// Placeholders lists the distinct placeholder names referenced by tmpl and
// rejects the same syntax errors Format does.
func Placeholders(tmpl string) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	for i := 0; i < len(tmpl); i++ {
		switch tmpl[i] {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				i++
				continue
			}
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return nil, fmt.Errorf("%w: unclosed placeholder at offset %d", domain.ErrInvalidTemplate, i)
			}
			name := tmpl[i+1 : i+1+end]
			if !isIdentifier(name) {
				return nil, fmt.Errorf("%w: bad placeholder %q", domain.ErrInvalidTemplate, name)
			}
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				out = append(out, name)
			}
			i += end + 1
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				i++
				continue
			}
			return nil, fmt.Errorf("%w: single '}' at offset %d", domain.ErrInvalidTemplate, i)
		}
	}
	return out, nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
