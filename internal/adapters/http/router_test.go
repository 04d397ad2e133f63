package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/query-reformulator/internal/config"
	"github.com/kirillkom/query-reformulator/internal/core/domain"
	"github.com/kirillkom/query-reformulator/internal/core/ports"
)

type serviceFake struct {
	runErr     error
	enqueueErr error
	getErr     error

	lastRun domain.RunRequest
}

func (f *serviceFake) Run(_ context.Context, req domain.RunRequest) (*domain.ReformulationRun, error) {
	f.lastRun = req
	if f.runErr != nil {
		return nil, f.runErr
	}
	results := make([]domain.ReformulationResult, 0, len(req.Queries))
	for _, q := range req.Queries {
		results = append(results, domain.ReformulationResult{
			QID:          q.QID,
			Original:     q.Text,
			Reformulated: q.Text + " expanded",
			Metadata:     domain.NewMetadata(),
		})
	}
	return &domain.ReformulationRun{
		ID:        "run-1",
		Method:    req.Config.Name,
		Status:    domain.RunStatusCompleted,
		Results:   results,
		StartedAt: time.Unix(0, 0).UTC(),
	}, nil
}

func (f *serviceFake) Enqueue(_ context.Context, req domain.RunRequest) (*domain.ReformulationRun, error) {
	if f.enqueueErr != nil {
		return nil, f.enqueueErr
	}
	return &domain.ReformulationRun{ID: "run-queued", Method: req.Config.Name, Status: domain.RunStatusQueued}, nil
}

func (f *serviceFake) GetRun(_ context.Context, id string) (*domain.ReformulationRun, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &domain.ReformulationRun{ID: id, Method: "genqr", Status: domain.RunStatusCompleted}, nil
}

func (f *serviceFake) Methods() []ports.MethodInfo {
	return []ports.MethodInfo{{Name: "genqr", Version: "1.0", Strategy: "query_repeat_plus_generated"}}
}

func (f *serviceFake) Prompts() []string { return []string{"genqr.keywords.v1"} }

func postJSON(t *testing.T, handler http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestReformulateReturnsRun(t *testing.T) {
	svc := &serviceFake{}
	handler := NewRouter(config.Config{}, svc).Handler()

	res := postJSON(t, handler, "/v1/reformulate", map[string]any{
		"method":  "genqr",
		"queries": []map[string]string{{"qid": "q1", "text": "what is a lobster roll"}},
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if svc.lastRun.Config.Name != "genqr" {
		t.Fatalf("expected method to populate config name, got %q", svc.lastRun.Config.Name)
	}

	var run domain.ReformulationRun
	if err := json.NewDecoder(res.Body).Decode(&run); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(run.Results) != 1 || run.Results[0].Reformulated != "what is a lobster roll expanded" {
		t.Fatalf("unexpected results: %+v", run.Results)
	}
}

func TestReformulateUsesConfigNameWhenMethodOmitted(t *testing.T) {
	svc := &serviceFake{}
	handler := NewRouter(config.Config{}, svc).Handler()

	res := postJSON(t, handler, "/v1/reformulate", map[string]any{
		"config":  map[string]any{"name": "mugi", "params": map[string]any{"num_docs": 3}},
		"queries": []map[string]string{{"qid": "q1", "text": "x"}},
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if svc.lastRun.Config.Name != "mugi" {
		t.Fatalf("expected config name mugi, got %q", svc.lastRun.Config.Name)
	}
	if svc.lastRun.Config.ParamInt("num_docs", 0) != 3 {
		t.Fatalf("expected params to pass through, got %+v", svc.lastRun.Config.Params)
	}
}

func TestReformulateRejectsInvalidJSON(t *testing.T) {
	handler := NewRouter(config.Config{}, &serviceFake{}).Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/reformulate", strings.NewReader("{"))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestReformulateMapsDomainErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", domain.WrapError(domain.ErrInvalidInput, "run", errors.New("no queries")), http.StatusBadRequest},
		{"unknown method", domain.WrapError(domain.ErrUnknownMethod, "run", errors.New("nope")), http.StatusNotFound},
		{"search disabled", domain.WrapError(domain.ErrSearchNotEnabled, "run", errors.New("off")), http.StatusServiceUnavailable},
		{"rate limited", domain.WrapError(domain.ErrRateLimited, "chat", errors.New("429")), http.StatusTooManyRequests},
		{"timeout", domain.WrapError(domain.ErrTimeout, "chat", errors.New("slow")), http.StatusGatewayTimeout},
		{"upstream auth", domain.WrapError(domain.ErrUnauthorized, "chat", errors.New("401")), http.StatusBadGateway},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewRouter(config.Config{}, &serviceFake{runErr: tc.err}).Handler()
			res := postJSON(t, handler, "/v1/reformulate", map[string]any{
				"method":  "genqr",
				"queries": []map[string]string{{"qid": "q1", "text": "x"}},
			})
			if res.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, res.Code)
			}
		})
	}
}

func TestEnqueueRunReturnsAccepted(t *testing.T) {
	handler := NewRouter(config.Config{}, &serviceFake{}).Handler()

	res := postJSON(t, handler, "/v1/runs", map[string]any{
		"method":  "query2e",
		"queries": []map[string]string{{"qid": "q1", "text": "x"}},
	})
	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", res.Code)
	}
	if loc := res.Header().Get("Location"); loc != "/v1/runs/run-queued" {
		t.Fatalf("unexpected location %q", loc)
	}
}

func TestEnqueueRunWithoutQueueIs503(t *testing.T) {
	svc := &serviceFake{enqueueErr: domain.WrapError(domain.ErrQueueNotEnabled, "enqueue", errors.New("nats url not set"))}
	handler := NewRouter(config.Config{}, svc).Handler()

	res := postJSON(t, handler, "/v1/runs", map[string]any{
		"method":  "query2e",
		"queries": []map[string]string{{"qid": "q1", "text": "x"}},
	})
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}

func TestGetRun(t *testing.T) {
	handler := NewRouter(config.Config{}, &serviceFake{}).Handler()

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/runs/abc", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var run domain.ReformulationRun
	if err := json.NewDecoder(res.Body).Decode(&run); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if run.ID != "abc" {
		t.Fatalf("expected id abc, got %q", run.ID)
	}

	missing := NewRouter(config.Config{}, &serviceFake{
		getErr: domain.WrapError(domain.ErrRunNotFound, "get run", errors.New("abc")),
	}).Handler()
	res = httptest.NewRecorder()
	missing.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/runs/abc", nil))
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestListMethodsAndPrompts(t *testing.T) {
	handler := NewRouter(config.Config{}, &serviceFake{}).Handler()

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/methods", nil))
	var methods struct {
		Methods []ports.MethodInfo `json:"methods"`
	}
	if err := json.NewDecoder(res.Body).Decode(&methods); err != nil {
		t.Fatalf("decode methods: %v", err)
	}
	if len(methods.Methods) != 1 || methods.Methods[0].Name != "genqr" {
		t.Fatalf("unexpected methods: %+v", methods.Methods)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/prompts", nil))
	var prompts struct {
		Prompts []string `json:"prompts"`
	}
	if err := json.NewDecoder(res.Body).Decode(&prompts); err != nil {
		t.Fatalf("decode prompts: %v", err)
	}
	if len(prompts.Prompts) != 1 {
		t.Fatalf("unexpected prompts: %+v", prompts.Prompts)
	}
}

func TestWrongVerbIsRejected(t *testing.T) {
	handler := NewRouter(config.Config{}, &serviceFake{}).Handler()

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/reformulate", nil))
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestAPIKeyGuardsV1Endpoints(t *testing.T) {
	handler := NewRouter(config.Config{APIKey: "s3cret"}, &serviceFake{}).Handler()
	body := map[string]any{"method": "genqr", "queries": []map[string]string{{"qid": "q1", "text": "x"}}}

	if res := postJSON(t, handler, "/v1/reformulate", body); res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", res.Code)
	}

	cases := []struct {
		header string
		want   int
	}{
		{header: "Bearer wrong", want: http.StatusUnauthorized},
		{header: "Basic s3cret", want: http.StatusUnauthorized},
		{header: "Bearer s3cret", want: http.StatusOK},
		{header: "bearer  s3cret ", want: http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/v1/methods", nil)
		req.Header.Set("Authorization", tc.header)
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != tc.want {
			t.Fatalf("Authorization %q: expected %d, got %d", tc.header, tc.want, res.Code)
		}
	}

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected healthz to stay open, got %d", res.Code)
	}
}

func TestReformulateRestrictsCallerConfig(t *testing.T) {
	svc := &serviceFake{}
	handler := NewRouter(config.Config{APIMaxRetries: 3, APIMaxFanOut: 8}, svc).Handler()

	res := postJSON(t, handler, "/v1/reformulate", map[string]any{
		"config": map[string]any{
			"name":    "mugi",
			"params":  map[string]any{"num_docs": 100000, "parallel": true},
			"llm":     map[string]any{"base_url": "http://169.254.169.254", "api_key": "x", "temperature": 0.4},
			"retries": 50,
		},
		"queries": []map[string]string{{"qid": "q1", "text": "x"}},
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	cfg := svc.lastRun.Config
	if cfg.Retries != 3 || cfg.ParamInt("num_docs", 0) != 8 {
		t.Fatalf("expected clamped retries and fan-out, got %+v", cfg)
	}
	if _, ok := cfg.LLM["base_url"]; ok {
		t.Fatalf("expected caller base_url to be dropped, got %v", cfg.LLM)
	}
	if cfg.LLMString("api_key", "") != "" {
		t.Fatalf("expected caller api_key to be dropped")
	}
}
