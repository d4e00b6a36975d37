package history

import "time"

const SchemaVersion = 1

// Run statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Run is one journaled pipeline run over a module.
type Run struct {
	ID         string     `json:"id"`
	Module     string     `json:"module"`
	Input      string     `json:"input,omitempty"`
	Output     string     `json:"output,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	Stages     []StageRun `json:"stages,omitempty"`
}

// StageRun records one applied stage of a run, in application order.
type StageRun struct {
	Stage     string        `json:"stage"`
	Units     int           `json:"units"`
	Duration  time.Duration `json:"duration"`
	Cancelled bool          `json:"cancelled,omitempty"`
}

func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
