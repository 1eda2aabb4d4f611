package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mohammad-safakhou/docser/internal/store"
	"github.com/mohammad-safakhou/docser/internal/swarm"
)

// memoryLive is an in-process stand-in for the live run repository.
type memoryLive struct {
	runs map[string]*swarm.RunResult
}

func newMemoryLive() *memoryLive {
	return &memoryLive{runs: map[string]*swarm.RunResult{}}
}

func (m *memoryLive) SaveRun(ctx context.Context, res *swarm.RunResult) error {
	m.runs[res.ID] = res
	return nil
}

func (m *memoryLive) GetRun(ctx context.Context, id string) (*swarm.RunResult, error) {
	res, ok := m.runs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return res, nil
}

func TestGetRunStepsServesInFlightRuns(t *testing.T) {
	s := testServer(t)
	live := newMemoryLive()
	s.live = live

	// A run still in progress exists only in live state.
	run := &swarm.RunResult{
		ID:     "run-1",
		Query:  "compare the reports",
		Status: swarm.StatusRunning,
		Steps: []swarm.CollaborationStep{
			{ID: "s1", Kind: swarm.StepPlan, At: time.Now()},
			{ID: "s2", Kind: swarm.StepExecutionDispatch, At: time.Now()},
		},
	}
	if err := live.SaveRun(context.Background(), run); err != nil {
		t.Fatalf("seed live state: %v", err)
	}
	e := s.buildEcho()

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/run-1/steps", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var steps []swarm.CollaborationStep
	if err := json.Unmarshal(rec.Body.Bytes(), &steps); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(steps) != 2 || steps[0].Kind != swarm.StepPlan {
		t.Fatalf("unexpected steps: %+v", steps)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/ghost/steps", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown run, got %d", rec.Code)
	}
}

func TestGetRunPrefersLiveState(t *testing.T) {
	s := testServer(t)
	live := newMemoryLive()
	s.live = live

	run := &swarm.RunResult{ID: "run-2", Query: "q", Status: swarm.StatusRunning}
	if err := live.SaveRun(context.Background(), run); err != nil {
		t.Fatalf("seed live state: %v", err)
	}
	e := s.buildEcho()

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/run-2", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got swarm.RunResult
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "run-2" || got.Status != swarm.StatusRunning {
		t.Fatalf("unexpected run: %+v", got)
	}
}
