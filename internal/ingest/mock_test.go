package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ncov-ph/ncov-cli/internal/arcgis"
	"github.com/ncov-ph/ncov-cli/internal/dataset"
	"github.com/ncov-ph/ncov-cli/internal/model"
)

const testTitle = "COVID-19 Tracker | Situational Report of March 5, 2020;"

// fakeSource serves canned dashboards and layers keyed by layer URL.
type fakeSource struct {
	mu        sync.Mutex
	dashboard *arcgis.Dashboard
	dashErr   error
	layers    map[string][]arcgis.Feature
	fail      map[string]error
	queried   []string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		dashboard: &arcgis.Dashboard{Version: "v7", HeaderPanel: arcgis.HeaderPanel{Title: testTitle}},
		layers:    make(map[string][]arcgis.Feature),
		fail:      make(map[string]error),
	}
}

func (f *fakeSource) Dashboard(_ context.Context, _ string) (*arcgis.Dashboard, error) {
	if f.dashErr != nil {
		return nil, f.dashErr
	}
	return f.dashboard, nil
}

func (f *fakeSource) QueryAll(_ context.Context, layerURL, _ string) ([]arcgis.Feature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queried = append(f.queried, layerURL)
	if err := f.fail[layerURL]; err != nil {
		return nil, err
	}
	return f.layers[layerURL], nil
}

func (f *fakeSource) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queried)
}

// setLayer gives the named dataset n features with coordinates.
func (f *fakeSource) setLayer(reg *dataset.Registry, name string, n int) {
	d, err := reg.Get(name)
	if err != nil {
		panic(err)
	}
	feats := make([]arcgis.Feature, n)
	for i := range feats {
		feats[i] = arcgis.Feature{Attributes: map[string]any{
			"FID":       json.Number(fmt.Sprint(i + 1)),
			"latitude":  14.5,
			"longitude": 121.0,
			"confirmed": "2020-03-04",
		}}
	}
	f.layers[d.LayerURL] = feats
}

func (f *fakeSource) failLayer(reg *dataset.Registry, name string, err error) {
	d, _ := reg.Get(name)
	f.fail[d.LayerURL] = err
}

// memStore is an in-memory store.Store.
type memStore struct {
	mu        sync.Mutex
	docs      map[string][]model.Record
	runs      map[string]model.IngestRun
	failAfter map[string]int
	startErr  error
	finishErr error
}

func newMemStore() *memStore {
	return &memStore{
		docs:      make(map[string][]model.Record),
		runs:      make(map[string]model.IngestRun),
		failAfter: make(map[string]int),
	}
}

func (s *memStore) Insert(_ context.Context, collection, _ string, rec model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.failAfter[collection]; ok && len(s.docs[collection]) >= n {
		return errors.New("write conflict")
	}
	s.docs[collection] = append(s.docs[collection], rec)
	return nil
}

func (s *memStore) Count(_ context.Context, collection string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.docs[collection])), nil
}

func (s *memStore) StartRun(_ context.Context, run *model.IngestRun) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = *run
	return nil
}

func (s *memStore) FinishRun(_ context.Context, run *model.IngestRun) error {
	if s.finishErr != nil {
		return s.finishErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return errors.New("run not found")
	}
	s.runs[run.ID] = *run
	return nil
}

func (s *memStore) ListRuns(_ context.Context, _ int) ([]model.IngestRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.IngestRun, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, r)
	}
	return out, nil
}

func (s *memStore) Migrate(context.Context) error { return nil }
func (s *memStore) Close() error                  { return nil }

func (s *memStore) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, docs := range s.docs {
		n += len(docs)
	}
	return n
}

func fmtNumber(i int) json.Number {
	return json.Number(fmt.Sprint(i))
}
