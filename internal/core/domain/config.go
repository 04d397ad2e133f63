package domain

import (
	"strings"

	"github.com/spf13/cast"
)

// MethodConfig carries method knobs (Params) and generation knobs (LLM).
// Both maps are read-only once a reformulator is built from them.
type MethodConfig struct {
	Name   string         `json:"name" yaml:"name"`
	Params map[string]any `json:"params,omitempty" yaml:"params"`
	LLM    map[string]any `json:"llm,omitempty" yaml:"llm"`
	// Seed is nil when unset; 0 is a valid seed.
	Seed    *int64 `json:"seed,omitempty" yaml:"seed"`
	Retries int    `json:"retries" yaml:"retries"`
}

const (
	DefaultSeed    = 42
	DefaultRetries = 2
)

// Normalize fills an unset seed, clamps negative retries and returns a copy
// that shares no maps or pointers with the receiver.
func (c MethodConfig) Normalize() MethodConfig {
	out := c
	out.Name = strings.TrimSpace(out.Name)
	out.Params = cloneMap(c.Params)
	out.LLM = cloneMap(c.LLM)
	seed := c.SeedValue()
	out.Seed = &seed
	if out.Retries < 0 {
		out.Retries = 0
	}
	return out
}

// SeedValue is the configured seed, or DefaultSeed when none was given.
func (c MethodConfig) SeedValue() int64 {
	if c.Seed == nil {
		return DefaultSeed
	}
	return *c.Seed
}

func (c MethodConfig) ParamInt(key string, fallback int) int {
	v, ok := c.Params[key]
	if !ok || v == nil {
		return fallback
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return fallback
	}
	return n
}

func (c MethodConfig) ParamFloat(key string, fallback float64) float64 {
	v, ok := c.Params[key]
	if !ok || v == nil {
		return fallback
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return fallback
	}
	return f
}

func (c MethodConfig) ParamBool(key string, fallback bool) bool {
	v, ok := c.Params[key]
	if !ok || v == nil {
		return fallback
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return fallback
	}
	return b
}

func (c MethodConfig) ParamString(key, fallback string) string {
	v, ok := c.Params[key]
	if !ok || v == nil {
		return fallback
	}
	s, err := cast.ToStringE(v)
	if err != nil || strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func (c MethodConfig) LLMString(key, fallback string) string {
	v, ok := c.LLM[key]
	if !ok || v == nil {
		return fallback
	}
	s, err := cast.ToStringE(v)
	if err != nil || strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

// Generation resolves temperature and max_tokens from the llm section, using
// the method's defaults for missing keys.
func (c MethodConfig) Generation(defaultTemperature float64, defaultMaxTokens int) GenerationOptions {
	opts := GenerationOptions{
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
	}
	if v, ok := c.LLM["temperature"]; ok && v != nil {
		if f, err := cast.ToFloat64E(v); err == nil {
			opts.Temperature = f
		}
	}
	if v, ok := c.LLM["max_tokens"]; ok && v != nil {
		if n, err := cast.ToIntE(v); err == nil && n > 0 {
			opts.MaxTokens = n
		}
	}
	return opts
}

// RequestLimits bound what a remote caller may put in a method config.
type RequestLimits struct {
	MaxRetries int
	// MaxFanOut caps every parameter that multiplies LLM or search calls.
	MaxFanOut int
	// AllowEndpointOverride lets llm.backend, llm.base_url and llm.api_key
	// through; otherwise they are removed.
	AllowEndpointOverride bool
}

var (
	fanOutParams = []string{"variants", "num_docs", "num_generations", "gen_num", "num_examples", "retrieval_k"}
	endpointKeys = []string{"backend", "base_url", "api_key"}
)

// Restrict applies limits to a normalized copy of c. Zero limits leave the
// matching values alone.
func (c MethodConfig) Restrict(l RequestLimits) MethodConfig {
	out := c.Normalize()
	if l.MaxRetries > 0 {
		out.Retries = min(out.Retries, l.MaxRetries)
	}
	if l.MaxFanOut > 0 {
		for _, key := range fanOutParams {
			if _, ok := out.Params[key]; ok {
				out.Params[key] = min(out.ParamInt(key, 1), l.MaxFanOut)
			}
		}
	}
	if !l.AllowEndpointOverride {
		for _, key := range endpointKeys {
			delete(out.LLM, key)
		}
	}
	return out
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
