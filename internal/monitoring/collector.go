package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/ncov-ph/ncov-cli/internal/model"
	"github.com/ncov-ph/ncov-cli/internal/store"
)

// RunSummary is a roll-up of the most recent runs in the run log.
type RunSummary struct {
	Total       int        `json:"total"`
	Complete    int        `json:"complete"`
	Partial     int        `json:"partial"`
	Failed      int        `json:"failed"`
	Running     int        `json:"running"`
	Inserted    int64      `json:"inserted"`
	FailRate    float64    `json:"fail_rate"`
	LastSuccess *time.Time `json:"last_success,omitempty"`

	// FailingDatasets counts, per dataset, the runs in which it failed.
	FailingDatasets map[string]int `json:"failing_datasets,omitempty"`

	// Runs are the summarized runs, newest first.
	Runs []model.IngestRun `json:"-"`
}

// RunLister is the part of the store the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]model.IngestRun, error)
}

var _ RunLister = (store.Store)(nil)

// Collector summarizes the run log.
type Collector struct {
	runs RunLister
}

// NewCollector creates a collector reading from runs.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs}
}

// Collect summarizes up to limit of the most recent runs.
func (c *Collector) Collect(ctx context.Context, limit int) (*RunSummary, error) {
	runs, err := c.runs.ListRuns(ctx, limit)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}
	return Summarize(runs), nil
}

// Summarize rolls up runs, which are expected newest first.
func Summarize(runs []model.IngestRun) *RunSummary {
	s := &RunSummary{Total: len(runs), Runs: runs}
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			s.Complete++
			if s.LastSuccess == nil && r.CompletedAt != nil {
				t := *r.CompletedAt
				s.LastSuccess = &t
			}
		case model.RunStatusPartial:
			s.Partial++
		case model.RunStatusFailed:
			s.Failed++
		case model.RunStatusRunning:
			s.Running++
		}
		s.Inserted += r.Inserted()
		for _, o := range r.Failed() {
			if s.FailingDatasets == nil {
				s.FailingDatasets = make(map[string]int)
			}
			s.FailingDatasets[o.Dataset]++
		}
	}

	// Partial runs do not count as failures.
	if finished := s.Complete + s.Partial + s.Failed; finished > 0 {
		s.FailRate = float64(s.Failed) / float64(finished)
	}
	return s
}
