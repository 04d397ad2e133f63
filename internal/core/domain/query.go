package domain

import "time"

type QueryItem struct {
	QID  string `json:"qid"`
	Text string `json:"text"`
}

// ReformulationResult is built once per query per method invocation and is
// not mutated afterwards.
type ReformulationResult struct {
	QID          string    `json:"qid"`
	Original     string    `json:"original"`
	Reformulated string    `json:"reformulated"`
	Metadata     *Metadata `json:"metadata"`
}

// Fallback reports whether the method returned the original query after a
// generation failure.
func (r ReformulationResult) Fallback() bool {
	if r.Metadata == nil {
		return false
	}
	v, ok := r.Metadata.Get(MetaFallback)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

type ReformulationRun struct {
	ID         string                `json:"id"`
	Method     string                `json:"method"`
	Status     RunStatus             `json:"status"`
	Results    []ReformulationResult `json:"results,omitempty"`
	Fallbacks  int                   `json:"fallbacks"`
	Error      string                `json:"error,omitempty"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at,omitzero"`
}

// RunRequest is the unit of work accepted by the run service and carried by
// the run queue.
type RunRequest struct {
	ID       string              `json:"id,omitempty"`
	Config   MethodConfig        `json:"config"`
	Queries  []QueryItem         `json:"queries"`
	Contexts map[string][]string `json:"contexts,omitempty"`
	// EnqueuedAt is set when the request goes through the run queue.
	EnqueuedAt time.Time `json:"enqueued_at,omitzero"`
}
