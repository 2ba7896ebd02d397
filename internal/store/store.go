// Package store persists normalized records into append-only collections and
// keeps a log of ingestion runs.
package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/ncov-ph/ncov-cli/internal/model"
)

// RunsTable names the run log. No collection may use it.
const RunsTable = "ingest_runs"

// DefaultRunLimit caps ListRuns when no limit is given.
const DefaultRunLimit = 20

// Store defines the persistence interface for the ingestion pipeline.
type Store interface {
	// Records
	Insert(ctx context.Context, collection, runID string, rec model.Record) error
	Count(ctx context.Context, collection string) (int64, error)

	// Run log
	StartRun(ctx context.Context, run *model.IngestRun) error
	FinishRun(ctx context.Context, run *model.IngestRun) error
	ListRuns(ctx context.Context, limit int) ([]model.IngestRun, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// collectionSet is the fixed set of tables a store writes to. Collection
// names are interpolated into SQL, so only registered names are accepted.
type collectionSet struct {
	names []string
	known map[string]bool
}

func newCollectionSet(names []string) (collectionSet, error) {
	cs := collectionSet{known: make(map[string]bool, len(names))}
	for _, name := range names {
		if !identOK(name) || name == RunsTable {
			return cs, eris.Errorf("store: invalid collection name %q", name)
		}
		if cs.known[name] {
			continue
		}
		cs.known[name] = true
		cs.names = append(cs.names, name)
	}
	return cs, nil
}

func (cs collectionSet) check(name string) error {
	if !cs.known[name] {
		return eris.Errorf("store: unknown collection %q", name)
	}
	return nil
}

func identOK(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r == '_':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func encodeRecord(rec model.Record) ([]byte, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal record")
	}
	return b, nil
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return DefaultRunLimit
	}
	return limit
}
