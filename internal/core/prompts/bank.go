// Package prompts holds the prompt catalog and renders named templates into
// chat message sequences.
package prompts

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/query-reformulator/internal/core/domain"
)

//go:embed catalog/prompt_bank.yaml
var defaultCatalog []byte

// Bank is immutable after construction and safe for concurrent use.
type Bank struct {
	byID  map[string]domain.PromptSpec
	order []string
}

// Default loads the catalog bundled with the binary.
func Default() (*Bank, error) {
	return Load(bytes.NewReader(defaultCatalog))
}

func LoadFile(path string) (*Bank, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open prompt catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads a YAML list of prompt records. Keys other than id,
// method_family, version and template are kept as free-form metadata.
func Load(r io.Reader) (*Bank, error) {
	var items []domain.PromptSpec
	if err := yaml.NewDecoder(r).Decode(&items); err != nil && err != io.EOF {
		return nil, domain.WrapError(domain.ErrInvalidTemplate, "decode prompt catalog", err)
	}
	return New(items)
}

func New(items []domain.PromptSpec) (*Bank, error) {
	b := &Bank{byID: make(map[string]domain.PromptSpec, len(items))}
	for i, item := range items {
		id := strings.TrimSpace(item.ID)
		if id == "" {
			return nil, fmt.Errorf("prompt catalog entry %d: %w: empty id", i, domain.ErrInvalidTemplate)
		}
		if len(item.Template) == 0 {
			return nil, fmt.Errorf("prompt %q: %w: empty template", id, domain.ErrInvalidTemplate)
		}
		for role, tmpl := range item.Template {
			if !knownRole(role) {
				return nil, fmt.Errorf("prompt %q: %w: unknown role %q", id, domain.ErrInvalidTemplate, role)
			}
			if _, err := Placeholders(tmpl); err != nil {
				return nil, fmt.Errorf("prompt %q role %s: %w", id, role, err)
			}
		}
		if item.Version == 0 {
			item.Version = 1
		}
		if item.Meta == nil {
			item.Meta = map[string]any{}
		}
		item.ID = id
		if _, dup := b.byID[id]; !dup {
			b.order = append(b.order, id)
		}
		b.byID[id] = item
	}
	return b, nil
}

// Render formats every role present in the template, in system, user,
// assistant order.
func (b *Bank) Render(promptID string, vars map[string]any) ([]domain.Message, error) {
	spec, err := b.Spec(promptID)
	if err != nil {
		return nil, err
	}

	messages := make([]domain.Message, 0, len(spec.Template))
	for _, role := range domain.RenderOrder {
		tmpl, ok := spec.Template[role]
		if !ok {
			continue
		}
		content, err := Format(tmpl, vars)
		if err != nil {
			return nil, fmt.Errorf("render %s/%s: %w", promptID, role, err)
		}
		messages = append(messages, domain.Message{Role: role, Content: content})
	}
	return messages, nil
}

func (b *Bank) Spec(promptID string) (domain.PromptSpec, error) {
	spec, ok := b.byID[promptID]
	if !ok {
		return domain.PromptSpec{}, fmt.Errorf("%w: %s", domain.ErrUnknownPrompt, promptID)
	}
	return spec, nil
}

// List returns prompt ids in catalog order.
func (b *Bank) List() []string {
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

// Family returns the ids that belong to a method family, sorted.
func (b *Bank) Family(family string) []string {
	var out []string
	for id, spec := range b.byID {
		if spec.MethodFamily == family {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func (b *Bank) Meta(promptID string) (map[string]any, error) {
	spec, err := b.Spec(promptID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(spec.Meta))
	for k, v := range spec.Meta {
		out[k] = v
	}
	return out, nil
}

func knownRole(role domain.Role) bool {
	for _, r := range domain.RenderOrder {
		if r == role {
			return true
		}
	}
	return false
}
