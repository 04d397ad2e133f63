package mcpadapter

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/query-reformulator/internal/core/domain"
	"github.com/kirillkom/query-reformulator/internal/core/ports"
)

type serviceFake struct {
	err     error
	lastReq domain.RunRequest
}

func (f *serviceFake) Run(_ context.Context, req domain.RunRequest) (*domain.ReformulationRun, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &domain.ReformulationRun{
		Method: req.Config.Name,
		Status: domain.RunStatusCompleted,
		Results: []domain.ReformulationResult{{
			QID:          req.Queries[0].QID,
			Original:     req.Queries[0].Text,
			Reformulated: req.Queries[0].Text + " lobster",
			Metadata:     domain.NewMetadata(),
		}},
	}, nil
}

func (f *serviceFake) Enqueue(context.Context, domain.RunRequest) (*domain.ReformulationRun, error) {
	return nil, errors.New("not used")
}

func (f *serviceFake) GetRun(context.Context, string) (*domain.ReformulationRun, error) {
	return nil, errors.New("not used")
}

func (f *serviceFake) Methods() []ports.MethodInfo {
	return []ports.MethodInfo{
		{Name: "csqe", Version: "1.0", RequiresContext: true, Strategy: "query_repeat_plus_generated"},
		{Name: "genqr", Version: "1.0", Strategy: "query_repeat_plus_generated"},
	}
}

func (f *serviceFake) Prompts() []string { return []string{"csqe.expansion.v1", "genqr.keywords.v1"} }

func callRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatalf("empty tool result")
	}
	switch c := res.Content[0].(type) {
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		return c.Text
	default:
		t.Fatalf("unexpected content type %T", res.Content[0])
		return ""
	}
}

func TestReformulatePassesQueryAndContexts(t *testing.T) {
	svc := &serviceFake{}
	h := NewHandlers(svc, domain.RequestLimits{})

	res, err := h.Reformulate(context.Background(), callRequest(map[string]any{
		"method":   "csqe",
		"query":    "lobster roll",
		"contexts": "first passage\n\n  second passage  \n",
		"params":   `{"num_docs": 2}`,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	if !strings.Contains(resultText(t, res), "lobster roll lobster") {
		t.Fatalf("expected reformulated text in result, got %s", resultText(t, res))
	}

	got := svc.lastReq.Contexts["0"]
	if len(got) != 2 || got[1] != "second passage" {
		t.Fatalf("unexpected contexts: %#v", got)
	}
	if svc.lastReq.Config.ParamInt("num_docs", 0) != 2 {
		t.Fatalf("expected params to be forwarded, got %#v", svc.lastReq.Config.Params)
	}
}

func TestReformulateClampsFanOutParams(t *testing.T) {
	svc := &serviceFake{}
	h := NewHandlers(svc, domain.RequestLimits{MaxFanOut: 16})

	if _, err := h.Reformulate(context.Background(), callRequest(map[string]any{
		"method": "mugi",
		"query":  "x",
		"params": `{"num_docs": 100000, "parallel": true}`,
	})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := svc.lastReq.Config.ParamInt("num_docs", 0); got != 16 {
		t.Fatalf("expected num_docs clamped to 16, got %d", got)
	}
}

func TestReformulateWithoutContextsLeavesMapNil(t *testing.T) {
	svc := &serviceFake{}
	h := NewHandlers(svc, domain.RequestLimits{})

	if _, err := h.Reformulate(context.Background(), callRequest(map[string]any{
		"method": "genqr",
		"query":  "x",
	})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc.lastReq.Contexts != nil {
		t.Fatalf("expected nil contexts so retrieval can run, got %#v", svc.lastReq.Contexts)
	}
}

func TestReformulateReportsErrorsAsToolErrors(t *testing.T) {
	h := NewHandlers(&serviceFake{err: domain.WrapError(domain.ErrUnknownMethod, "run", errors.New("nope"))}, domain.RequestLimits{})

	res, err := h.Reformulate(context.Background(), callRequest(map[string]any{
		"method": "nope",
		"query":  "x",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected tool error result")
	}

	res, _ = h.Reformulate(context.Background(), callRequest(map[string]any{"query": "x"}))
	if !res.IsError {
		t.Fatalf("expected missing method to be a tool error")
	}

	res, _ = h.Reformulate(context.Background(), callRequest(map[string]any{
		"method": "genqr",
		"query":  "x",
		"params": "[1,2]",
	}))
	if !res.IsError {
		t.Fatalf("expected non-object params to be a tool error")
	}
}

func TestListMethodsAndPrompts(t *testing.T) {
	h := NewHandlers(&serviceFake{}, domain.RequestLimits{})

	res, err := h.ListMethods(context.Background(), callRequest(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := resultText(t, res)
	if !strings.Contains(text, "csqe v1.0") || !strings.Contains(text, "requires_context") {
		t.Fatalf("unexpected listing: %s", text)
	}

	res, _ = h.ListPrompts(context.Background(), callRequest(nil))
	if !strings.Contains(resultText(t, res), "genqr.keywords.v1") {
		t.Fatalf("unexpected prompts: %s", resultText(t, res))
	}
}

func TestNewServerBuilds(t *testing.T) {
	if NewServer(&serviceFake{}, domain.RequestLimits{}) == nil {
		t.Fatalf("expected server")
	}
}
