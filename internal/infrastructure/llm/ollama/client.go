// Package ollama talks to a local Ollama server for chat completions and
// query embeddings.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/kirillkom/query-reformulator/internal/core/domain"
	"github.com/kirillkom/query-reformulator/internal/infrastructure/llm/llmhttp"
	"github.com/kirillkom/query-reformulator/internal/infrastructure/resilience"
)

const backendName = "ollama"

type Options struct {
	BaseURL     string
	Model       string
	EmbedModel  string
	HTTPClient  *http.Client
	Executor    *resilience.Executor
	MaxAttempts int
	Recorder    llmhttp.Recorder
}

type Client struct {
	doer       llmhttp.Doer
	model      string
	embedModel string
	executor   *resilience.Executor
	attempts   int
	recorder   llmhttp.Recorder
}

func New(opts Options) *Client {
	return &Client{
		doer:       llmhttp.NewDoer(backendName, opts.BaseURL, opts.HTTPClient),
		model:      opts.Model,
		embedModel: opts.EmbedModel,
		executor:   opts.Executor,
		attempts:   opts.MaxAttempts,
		recorder:   opts.Recorder,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

func (c *Client) Chat(ctx context.Context, messages []domain.Message, opts domain.GenerationOptions) (string, error) {
	chatMessages := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		chatMessages = append(chatMessages, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	options := map[string]any{"temperature": opts.Temperature}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}
	req := chatRequest{
		Model:    c.model,
		Messages: chatMessages,
		Stream:   false,
		Options:  options,
	}

	var response struct {
		Message *struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	err := llmhttp.Call(ctx, c.executor, c.recorder, backendName, "chat", c.attempts, func(ctx context.Context) error {
		response.Message = nil
		return c.doer.PostJSON(ctx, "/api/chat", req, &response, "chat")
	})
	if err != nil {
		return "", err
	}
	if response.Message == nil {
		return "", domain.WrapError(domain.ErrMalformedResponse, "ollama chat", fmt.Errorf("response has no message"))
	}
	return strings.TrimSpace(response.Message.Content), nil
}

// ChatN issues n sequential chat requests; Ollama has no n parameter.
func (c *Client) ChatN(ctx context.Context, messages []domain.Message, opts domain.GenerationOptions, n int) ([]string, error) {
	if n < 1 {
		n = 1
	}
	out := make([]string, 0, n)
	for range n {
		text, err := c.Chat(ctx, messages, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, text)
	}
	return out, nil
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	err := llmhttp.Call(ctx, e.client.executor, nil, backendName, "embed", e.client.attempts, func(ctx context.Context) error {
		return e.client.doer.PostJSON(ctx, "/api/embed", request, &response, "embed")
	})
	if err != nil {
		return nil, err
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}
