package store

import "time"

// RunMeta is what the caller knows about a run beyond the run itself.
type RunMeta struct {
	Scenario string
	BaseURL  string
	Driver   string
}

// RunRecord is a persisted verification run.
type RunRecord struct {
	ID          string    `json:"id"`
	Scenario    string    `json:"scenario"`
	BaseURL     string    `json:"base_url"`
	Driver      string    `json:"driver"`
	Status      string    `json:"status"` // passed, failed
	FailedIndex int       `json:"failed_index"`
	FailureKind string    `json:"failure_kind,omitempty"`
	Cause       string    `json:"cause,omitempty"`
	Snapshot    string    `json:"snapshot,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// StepRow is one executed step of a persisted run.
type StepRow struct {
	Index    int           `json:"index"`
	Kind     string        `json:"kind"`
	Detail   string        `json:"detail"`
	Status   string        `json:"status"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}
