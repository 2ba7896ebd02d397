package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ncov-ph/ncov-cli/internal/resolve"
)

func TestIngestRun_Inserted(t *testing.T) {
	r := &IngestRun{Outcomes: []DatasetOutcome{
		{Dataset: "foreign", Inserted: 3},
		{Dataset: "local", Inserted: 5},
		{Dataset: "pui", Error: "boom", Stage: StageFetch},
	}}
	assert.Equal(t, int64(8), r.Inserted())

	failed := r.Failed()
	assert.Len(t, failed, 1)
	assert.Equal(t, "pui", failed[0].Dataset)
	assert.False(t, failed[0].OK())
}

func TestIngestRun_Defaults(t *testing.T) {
	r := &IngestRun{}
	assert.Equal(t, int64(0), r.Inserted())
	assert.Empty(t, r.Failed())
	assert.Nil(t, r.CompletedAt)
}

func TestRecord_Accessors(t *testing.T) {
	now := time.Now()
	r := Record{
		FieldDashboardVersion:     "v7",
		FieldDashboardLastUpdated: resolve.ParseDate("2020-03-05"),
		FieldInsertedAt:           now,
	}
	assert.Equal(t, "v7", r.Version())
	assert.Equal(t, now, r.InsertedAt())

	empty := Record{}
	assert.Empty(t, empty.Version())
	assert.True(t, empty.InsertedAt().IsZero())
}
