package prompts

import (
	"strings"
	"testing"

	"github.com/kirillkom/query-reformulator/internal/core/domain"
)

func TestRenderSingleUserTemplate(t *testing.T) {
	bank, err := Load(strings.NewReader(`
- id: greet
  method_family: demo
  template:
    user: "Hello {name}"
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	msgs, err := bank.Render("greet", map[string]any{"name": "Ada"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if len(msgs) != 1 || msgs[0].Role != domain.RoleUser || msgs[0].Content != "Hello Ada" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
}

func TestRenderEmitsRolesInFixedOrder(t *testing.T) {
	bank, err := New([]domain.PromptSpec{{
		ID: "p",
		Template: map[domain.Role]string{
			domain.RoleAssistant: "A {x}",
			domain.RoleUser:      "U {x}",
			domain.RoleSystem:    "S",
		},
	}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	msgs, err := bank.Render("p", map[string]any{"x": 1})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	want := []domain.Message{
		{Role: domain.RoleSystem, Content: "S"},
		{Role: domain.RoleUser, Content: "U 1"},
		{Role: domain.RoleAssistant, Content: "A 1"},
	}
	if len(msgs) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(msgs))
	}
	for i := range want {
		if msgs[i] != want[i] {
			t.Fatalf("message %d: expected %+v, got %+v", i, want[i], msgs[i])
		}
	}
}

func TestRenderUnknownPrompt(t *testing.T) {
	bank, _ := New(nil)
	_, err := bank.Render("nope", nil)
	if !domain.IsKind(err, domain.ErrUnknownPrompt) {
		t.Fatalf("expected ErrUnknownPrompt, got %v", err)
	}
	if _, err := bank.Meta("nope"); !domain.IsKind(err, domain.ErrUnknownPrompt) {
		t.Fatalf("expected ErrUnknownPrompt from Meta, got %v", err)
	}
}

func TestRenderMissingVariable(t *testing.T) {
	bank, _ := New([]domain.PromptSpec{{ID: "p", Template: map[domain.Role]string{domain.RoleUser: "{query} {contexts}"}}})
	_, err := bank.Render("p", map[string]any{"query": "q"})
	if !domain.IsKind(err, domain.ErrMissingVariable) {
		t.Fatalf("expected ErrMissingVariable, got %v", err)
	}
	if !strings.Contains(err.Error(), "contexts") {
		t.Fatalf("expected variable name in error, got %v", err)
	}
}

func TestFormatEscapedBraces(t *testing.T) {
	got, err := Format(`{{"q": "{query}"}}`, map[string]any{"query": "cats"})
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if got != `{"q": "cats"}` {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestFormatRejectsMalformedTemplate(t *testing.T) {
	for _, tmpl := range []string{"{query", "a } b", "{1x}", "{a.b}"} {
		if _, err := Format(tmpl, map[string]any{"query": "q"}); !domain.IsKind(err, domain.ErrInvalidTemplate) {
			t.Fatalf("template %q: expected ErrInvalidTemplate, got %v", tmpl, err)
		}
	}
}

func TestMetaKeepsExtraKeys(t *testing.T) {
	bank, err := Load(strings.NewReader(`
- id: p
  method_family: fam
  version: 3
  source: paper
  template:
    user: "x"
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	meta, err := bank.Meta("p")
	if err != nil {
		t.Fatalf("Meta() error = %v", err)
	}
	if meta["source"] != "paper" {
		t.Fatalf("expected source meta, got %+v", meta)
	}
	if _, ok := meta["template"]; ok {
		t.Fatalf("template must not leak into meta")
	}
	spec, _ := bank.Spec("p")
	if spec.Version != 3 || spec.MethodFamily != "fam" {
		t.Fatalf("unexpected spec: %+v", spec)
	}
}

func TestNewRejectsUnknownRole(t *testing.T) {
	_, err := New([]domain.PromptSpec{{ID: "p", Template: map[domain.Role]string{"tool": "x"}}})
	if !domain.IsKind(err, domain.ErrInvalidTemplate) {
		t.Fatalf("expected ErrInvalidTemplate, got %v", err)
	}
}

func TestNewRejectsMalformedTemplate(t *testing.T) {
	_, err := New([]domain.PromptSpec{{
		ID:       "p",
		Template: map[domain.Role]string{domain.RoleSystem: "ok", domain.RoleUser: "Query: {query"},
	}})
	if !domain.IsKind(err, domain.ErrInvalidTemplate) {
		t.Fatalf("expected ErrInvalidTemplate at load time, got %v", err)
	}
}

func TestPlaceholdersListsDistinctNames(t *testing.T) {
	names, err := Placeholders("{query} {{literal}} {docs} {query}")
	if err != nil {
		t.Fatalf("Placeholders() error = %v", err)
	}
	if len(names) != 2 || names[0] != "query" || names[1] != "docs" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestDefaultCatalogRendersEveryPrompt(t *testing.T) {
	bank, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	ids := bank.List()
	if len(ids) == 0 {
		t.Fatalf("default catalog is empty")
	}
	for _, id := range ids {
		spec, _ := bank.Spec(id)
		vars := map[string]any{}
		for _, tmpl := range spec.Template {
			names, err := Placeholders(tmpl)
			if err != nil {
				t.Fatalf("placeholders %s: %v", id, err)
			}
			for _, name := range names {
				vars[name] = "x"
			}
		}
		if _, err := bank.Render(id, vars); err != nil {
			t.Fatalf("render %s: %v", id, err)
		}
	}
	if got := len(bank.Family("genqr_ensemble")); got != 10 {
		t.Fatalf("expected 10 ensemble instructions, got %d", got)
	}
}
