package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kirillkom/query-reformulator/internal/config"
	"github.com/kirillkom/query-reformulator/internal/core/domain"
	"github.com/kirillkom/query-reformulator/internal/core/ports"
)

const maxRequestBodyBytes = 8 << 20

type Router struct {
	cfg     config.Config
	service ports.ReformulationService
	logger  *slog.Logger
}

func NewRouter(cfg config.Config, service ports.ReformulationService) *Router {
	return NewRouterWithLogger(cfg, service, slog.Default())
}

func NewRouterWithLogger(cfg config.Config, service ports.ReformulationService, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		cfg:     cfg,
		service: service,
		logger:  logger,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /v1/methods", rt.listMethods)
	mux.HandleFunc("GET /v1/prompts", rt.listPrompts)
	mux.HandleFunc("POST /v1/reformulate", rt.reformulate)
	mux.HandleFunc("POST /v1/runs", rt.enqueueRun)
	mux.HandleFunc("GET /v1/runs/{id}", rt.getRun)

	var handler http.Handler = mux
	handler = timeoutMiddleware(handler, rt.cfg.APIRequestTimeout)
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	handler = authMiddleware(handler, rt.cfg.APIKey)
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) listMethods(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"methods": rt.service.Methods()})
}

func (rt *Router) listPrompts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"prompts": rt.service.Prompts()})
}

// runRequest accepts the method either as "method" or as "config.name".
type runRequest struct {
	Method   string              `json:"method"`
	Config   domain.MethodConfig `json:"config"`
	Queries  []domain.QueryItem  `json:"queries"`
	Contexts map[string][]string `json:"contexts"`
}

func (r runRequest) toDomain() domain.RunRequest {
	cfg := r.Config
	if name := strings.TrimSpace(r.Method); name != "" {
		cfg.Name = name
	}
	return domain.RunRequest{
		Config:   cfg,
		Queries:  r.Queries,
		Contexts: r.Contexts,
	}
}

func (rt *Router) reformulate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRunRequest(w, r, rt.cfg.RequestLimits())
	if !ok {
		return
	}
	run, err := rt.service.Run(r.Context(), req)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (rt *Router) enqueueRun(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRunRequest(w, r, rt.cfg.RequestLimits())
	if !ok {
		return
	}
	run, err := rt.service.Enqueue(r.Context(), req)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/runs/"+run.ID)
	writeJSON(w, http.StatusAccepted, run)
}

func (rt *Router) getRun(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "run id is required"})
		return
	}
	run, err := rt.service.GetRun(r.Context(), id)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// decodeRunRequest reads a run request body and applies the caller limits
// to its method config.
func decodeRunRequest(w http.ResponseWriter, r *http.Request, limits domain.RequestLimits) (domain.RunRequest, bool) {
	var body runRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err := decoder.Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
		case errors.Is(err, io.EOF):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "request body is required"})
		default:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		}
		return domain.RunRequest{}, false
	}
	req := body.toDomain()
	req.Config = req.Config.Restrict(limits)
	setRequestMethod(r.Context(), req.Config.Name)
	return req, true
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		rt.logger.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err.Error(),
		)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
