package llmhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/query-reformulator/internal/core/domain"
	"github.com/kirillkom/query-reformulator/internal/infrastructure/resilience"
)

const DefaultTimeout = 120 * time.Second

// Recorder receives one observation per chat call.
type Recorder interface {
	ObserveLLMCall(backend, status string)
}

// Doer posts JSON to one backend endpoint.
type Doer struct {
	Backend    string
	BaseURL    string
	Headers    map[string]string
	HTTPClient *http.Client
}

func NewDoer(backend, baseURL string, httpClient *http.Client) Doer {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return Doer{
		Backend:    backend,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Headers:    map[string]string{},
		HTTPClient: httpClient,
	}
}

func (d Doer) PostJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range d.Headers {
		req.Header.Set(k, v)
	}

	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s request: %w", d.Backend, operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &StatusError{
			Backend:    d.Backend,
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(raw),
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.WrapError(domain.ErrMalformedResponse, "decode "+d.Backend+" "+operation+" response", err)
	}
	return nil
}

// Call runs fn through the executor when one is configured, maps the final
// error onto domain kinds and records the outcome.
func Call(
	ctx context.Context,
	executor *resilience.Executor,
	recorder Recorder,
	backend string,
	operation string,
	attempts int,
	fn func(context.Context) error,
) error {
	var err error
	if executor == nil {
		err = fn(ctx)
	} else {
		err = executor.Execute(ctx, backend+"."+operation, fn, Classify, resilience.WithMaxAttempts(attempts))
	}
	err = DomainError(backend+" "+operation, err)
	if recorder != nil {
		recorder.ObserveLLMCall(backend, StatusLabel(err))
	}
	return err
}
