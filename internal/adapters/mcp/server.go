// Package mcpadapter exposes the reformulation service as MCP tools.
package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/query-reformulator/internal/core/domain"
	"github.com/kirillkom/query-reformulator/internal/core/ports"
)

const (
	ServerName    = "query-reformulator"
	ServerVersion = "1.0.0"
)

type Handlers struct {
	service ports.ReformulationService
	limits  domain.RequestLimits
}

// NewHandlers applies limits to every method config a tool call builds.
func NewHandlers(service ports.ReformulationService, limits domain.RequestLimits) *Handlers {
	return &Handlers{service: service, limits: limits}
}

// NewServer builds an MCP server with the reformulation tools registered.
func NewServer(service ports.ReformulationService, limits domain.RequestLimits) *server.MCPServer {
	s := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	h := NewHandlers(service, limits)

	s.AddTool(mcp.NewTool("reformulate_query",
		mcp.WithDescription("Rewrite a search query with an LLM reformulation method"),
		mcp.WithString("method",
			mcp.Required(),
			mcp.Description("Method name, see list_methods"),
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The query text to reformulate"),
		),
		mcp.WithString("contexts",
			mcp.Description("Retrieved passages, one per line. Used by context-based methods"),
		),
		mcp.WithString("params",
			mcp.Description("JSON object with method parameters, for example {\"num_docs\": 3}"),
		),
	), h.Reformulate)

	s.AddTool(mcp.NewTool("list_methods",
		mcp.WithDescription("List the registered reformulation methods"),
	), h.ListMethods)

	s.AddTool(mcp.NewTool("list_prompts",
		mcp.WithDescription("List the prompt identifiers in the prompt bank"),
	), h.ListPrompts)

	return s
}

func (h *Handlers) Reformulate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	method, err := request.RequireString("method")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid method: %v", err)), nil
	}
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid query: %v", err)), nil
	}

	cfg := domain.MethodConfig{Name: method}
	if raw := strings.TrimSpace(request.GetString("params", "")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg.Params); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("params must be a JSON object: %v", err)), nil
		}
	}

	req := domain.RunRequest{
		Config:  cfg.Restrict(h.limits),
		Queries: []domain.QueryItem{{QID: "0", Text: query}},
	}
	if contexts := splitContexts(request.GetString("contexts", "")); len(contexts) > 0 {
		req.Contexts = map[string][]string{"0": contexts}
	}

	run, err := h.service.Run(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(run.Results) == 0 {
		return mcp.NewToolResultError("method returned no result"), nil
	}

	payload, err := json.MarshalIndent(run.Results[0], "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(payload)), nil
}

func (h *Handlers) ListMethods(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var b strings.Builder
	for _, info := range h.service.Methods() {
		fmt.Fprintf(&b, "%s v%s strategy=%s", info.Name, info.Version, info.Strategy)
		if info.RequiresContext {
			b.WriteString(" requires_context")
		}
		b.WriteByte('\n')
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (h *Handlers) ListPrompts(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(strings.Join(h.service.Prompts(), "\n")), nil
}

func splitContexts(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
