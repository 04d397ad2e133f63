package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/query-reformulator/internal/core/domain"
)

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// ExpandEnv replaces ${VAR} with the variable's value (empty when unset) and
// ${VAR:-default} with the default when VAR is unset.
func ExpandEnv(text string) string {
	return envRef.ReplaceAllStringFunc(text, func(match string) string {
		expr := match[2 : len(match)-1]
		name, fallback, hasDefault := strings.Cut(expr, ":-")
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		if hasDefault {
			return fallback
		}
		return ""
	})
}

type methodFile struct {
	Name    string         `yaml:"name"`
	Params  map[string]any `yaml:"params"`
	LLM     map[string]any `yaml:"llm"`
	Seed    *int64         `yaml:"seed"`
	Retries *int           `yaml:"retries"`
}

// ParseMethodConfig decodes a method YAML document after env expansion. The
// method argument wins over a name in the document.
func ParseMethodConfig(raw []byte, method string) (domain.MethodConfig, error) {
	var mf methodFile
	if err := yaml.Unmarshal([]byte(ExpandEnv(string(raw))), &mf); err != nil {
		return domain.MethodConfig{}, domain.WrapError(domain.ErrInvalidInput, "parse method config", err)
	}

	cfg := domain.MethodConfig{
		Name:    mf.Name,
		Params:  mf.Params,
		LLM:     mf.LLM,
		Seed:    mf.Seed,
		Retries: domain.DefaultRetries,
	}
	if method != "" {
		cfg.Name = method
	}
	if mf.Retries != nil {
		cfg.Retries = *mf.Retries
	}
	if strings.TrimSpace(cfg.Name) == "" {
		return domain.MethodConfig{}, domain.WrapError(domain.ErrInvalidInput, "parse method config", fmt.Errorf("method name is required"))
	}
	return cfg.Normalize(), nil
}

// LoadMethodConfig reads a method file. An empty path yields the method's
// defaults.
func LoadMethodConfig(path, method string) (domain.MethodConfig, error) {
	if path == "" {
		return ParseMethodConfig(nil, method)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.MethodConfig{}, fmt.Errorf("read method config: %w", err)
	}
	return ParseMethodConfig(raw, method)
}
