// Package openai is a chat client for OpenAI-compatible /chat/completions
// endpoints (OpenAI, vLLM, LiteLLM, llama.cpp server).
package openai

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/kirillkom/query-reformulator/internal/core/domain"
	"github.com/kirillkom/query-reformulator/internal/infrastructure/llm/llmhttp"
	"github.com/kirillkom/query-reformulator/internal/infrastructure/resilience"
)

const backendName = "openai"

type Options struct {
	BaseURL     string
	APIKey      string
	Model       string
	HTTPClient  *http.Client
	Executor    *resilience.Executor
	MaxAttempts int
	Recorder    llmhttp.Recorder
}

type Client struct {
	doer     llmhttp.Doer
	model    string
	executor *resilience.Executor
	attempts int
	recorder llmhttp.Recorder
}

func New(opts Options) *Client {
	doer := llmhttp.NewDoer(backendName, opts.BaseURL, opts.HTTPClient)
	if key := strings.TrimSpace(opts.APIKey); key != "" {
		doer.Headers["Authorization"] = "Bearer " + key
	}
	return &Client{
		doer:     doer,
		model:    opts.Model,
		executor: opts.Executor,
		attempts: opts.MaxAttempts,
		recorder: opts.Recorder,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	N           int           `json:"n,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) Chat(ctx context.Context, messages []domain.Message, opts domain.GenerationOptions) (string, error) {
	out, err := c.ChatN(ctx, messages, opts, 1)
	if err != nil {
		return "", err
	}
	return out[0], nil
}

// ChatN asks for n completions in one request. Servers that ignore n are
// asked again until n completions are collected.
func (c *Client) ChatN(ctx context.Context, messages []domain.Message, opts domain.GenerationOptions, n int) ([]string, error) {
	if n < 1 {
		n = 1
	}
	out := make([]string, 0, n)
	for len(out) < n {
		batch, err := c.complete(ctx, messages, opts, n-len(out))
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out[:n], nil
}

func (c *Client) complete(ctx context.Context, messages []domain.Message, opts domain.GenerationOptions, n int) ([]string, error) {
	req := chatRequest{
		Model:       c.model,
		Messages:    toChatMessages(messages),
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	if n > 1 {
		req.N = n
	}

	var resp chatResponse
	err := llmhttp.Call(ctx, c.executor, c.recorder, backendName, "chat", c.attempts, func(ctx context.Context) error {
		resp = chatResponse{}
		return c.doer.PostJSON(ctx, "/chat/completions", req, &resp, "chat")
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, domain.WrapError(domain.ErrMalformedResponse, "openai chat", fmt.Errorf("response has no choices"))
	}

	sort.SliceStable(resp.Choices, func(i, j int) bool { return resp.Choices[i].Index < resp.Choices[j].Index })
	out := make([]string, 0, len(resp.Choices))
	for _, choice := range resp.Choices {
		content := ""
		if choice.Message.Content != nil {
			content = *choice.Message.Content
		}
		out = append(out, strings.TrimSpace(content))
	}
	return out, nil
}

func toChatMessages(messages []domain.Message) []chatMessage {
	out := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}
