// Package llm selects and configures a chat backend per method run.
package llm

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/kirillkom/query-reformulator/internal/core/domain"
	"github.com/kirillkom/query-reformulator/internal/core/ports"
	"github.com/kirillkom/query-reformulator/internal/infrastructure/llm/llmhttp"
	"github.com/kirillkom/query-reformulator/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/query-reformulator/internal/infrastructure/llm/openai"
	"github.com/kirillkom/query-reformulator/internal/infrastructure/resilience"
)

const (
	BackendOpenAI = "openai"
	BackendOllama = "ollama"
)

// Settings are the process-wide chat defaults.
type Settings struct {
	Backend    string
	BaseURL    string
	APIKey     string
	Model      string
	EmbedModel string
}

type Provider struct {
	defaults   Settings
	executor   *resilience.Executor
	recorder   llmhttp.Recorder
	httpClient *http.Client
}

func NewProvider(defaults Settings, executor *resilience.Executor, recorder llmhttp.Recorder) *Provider {
	return &Provider{
		defaults:   defaults,
		executor:   executor,
		recorder:   recorder,
		httpClient: &http.Client{Timeout: llmhttp.DefaultTimeout},
	}
}

// ChatModel resolves llm.backend, llm.model, llm.base_url and llm.api_key
// against the defaults. The default API key is only ever sent to the default
// endpoint: a config that points elsewhere must bring its own key. Retries
// from the method config become the attempt budget of every call.
func (p *Provider) ChatModel(cfg domain.MethodConfig) (ports.ChatModel, error) {
	backend := strings.ToLower(cfg.LLMString("backend", p.defaults.Backend))
	model := cfg.LLMString("model", p.defaults.Model)
	baseURL := cfg.LLMString("base_url", p.defaults.BaseURL)
	apiKey := cfg.LLMString("api_key", "")
	if apiKey == "" && p.isDefaultEndpoint(backend, baseURL) {
		apiKey = p.defaults.APIKey
	}
	attempts := cfg.Retries + 1

	if strings.TrimSpace(model) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "build chat model", fmt.Errorf("llm model is not set"))
	}

	switch backend {
	case BackendOpenAI, "openai-compatible", "vllm":
		return openai.New(openai.Options{
			BaseURL:     baseURL,
			APIKey:      apiKey,
			Model:       model,
			HTTPClient:  p.httpClient,
			Executor:    p.executor,
			MaxAttempts: attempts,
			Recorder:    p.recorder,
		}), nil
	case BackendOllama:
		return ollama.New(ollama.Options{
			BaseURL:     baseURL,
			Model:       model,
			EmbedModel:  p.defaults.EmbedModel,
			HTTPClient:  p.httpClient,
			Executor:    p.executor,
			MaxAttempts: attempts,
			Recorder:    p.recorder,
		}), nil
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "build chat model", fmt.Errorf("unknown llm backend %q", backend))
	}
}

func (p *Provider) isDefaultEndpoint(backend, baseURL string) bool {
	return strings.EqualFold(backend, p.defaults.Backend) &&
		strings.TrimRight(strings.TrimSpace(baseURL), "/") == strings.TrimRight(strings.TrimSpace(p.defaults.BaseURL), "/")
}

// Embedder returns the query embedder used by dense search, or nil when no
// embedding model is configured.
func (p *Provider) Embedder() ports.Embedder {
	if strings.TrimSpace(p.defaults.EmbedModel) == "" {
		return nil
	}
	baseURL := p.defaults.BaseURL
	if !strings.EqualFold(p.defaults.Backend, BackendOllama) {
		return nil
	}
	return ollama.NewEmbedder(ollama.New(ollama.Options{
		BaseURL:    baseURL,
		EmbedModel: p.defaults.EmbedModel,
		HTTPClient: p.httpClient,
		Executor:   p.executor,
	}))
}
