package model

import "time"

// RunStatus represents the terminal or in-flight state of an ingestion run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusPartial  RunStatus = "partial"
	RunStatusFailed   RunStatus = "failed"
)

// FailureStage names where a dataset stopped.
type FailureStage string

const (
	StageFetch FailureStage = "fetch"
	StageStore FailureStage = "store"
)

// IngestRun is one invocation of the pipeline, as kept in the run log.
type IngestRun struct {
	ID                   string           `json:"id"`
	Status               RunStatus        `json:"status"`
	DashboardVersion     string           `json:"dashboard_version,omitempty"`
	DashboardLastUpdated string           `json:"dashboard_last_updated,omitempty"`
	StartedAt            time.Time        `json:"started_at"`
	CompletedAt          *time.Time       `json:"completed_at,omitempty"`
	Outcomes             []DatasetOutcome `json:"outcomes,omitempty"`
	Error                string           `json:"error,omitempty"`
}

// Inserted sums the records inserted across all datasets.
func (r *IngestRun) Inserted() int64 {
	var n int64
	for _, o := range r.Outcomes {
		n += o.Inserted
	}
	return n
}

// Failed returns the outcomes that ended in an error.
func (r *IngestRun) Failed() []DatasetOutcome {
	var out []DatasetOutcome
	for _, o := range r.Outcomes {
		if o.Error != "" {
			out = append(out, o)
		}
	}
	return out
}

// DatasetOutcome is the per-dataset result of a run.
type DatasetOutcome struct {
	Dataset          string        `json:"dataset"`
	Collection       string        `json:"collection"`
	Fetched          int64         `json:"fetched"`
	Inserted         int64         `json:"inserted"`
	DefaultLocations int64         `json:"default_locations"`
	UnresolvedDates  int64         `json:"unresolved_dates"`
	Stage            FailureStage  `json:"stage,omitempty"`
	Error            string        `json:"error,omitempty"`
	Elapsed          time.Duration `json:"elapsed"`
}

// OK reports whether the dataset completed without error.
func (o DatasetOutcome) OK() bool { return o.Error == "" }
