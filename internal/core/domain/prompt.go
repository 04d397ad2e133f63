package domain

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// RenderOrder is the fixed order in which template roles are emitted.
var RenderOrder = []Role{RoleSystem, RoleUser, RoleAssistant}

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type PromptSpec struct {
	ID           string          `json:"id" yaml:"id"`
	MethodFamily string          `json:"method_family" yaml:"method_family"`
	Version      int             `json:"version" yaml:"version"`
	Template     map[Role]string `json:"template" yaml:"template"`
	Meta         map[string]any  `json:"meta,omitempty" yaml:",inline"`
}

type GenerationOptions struct {
	Temperature float64
	MaxTokens   int
}
