package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mohammad-safakhou/docser/config"
	"github.com/mohammad-safakhou/docser/internal/gateway"
	"github.com/mohammad-safakhou/docser/internal/swarm"
)

type stubGateway struct{}

func (stubGateway) Generate(ctx context.Context, req gateway.Request) (string, error) {
	return "{}", nil
}

func (stubGateway) StartSession(ctx context.Context, cfg gateway.SessionConfig) (gateway.Session, error) {
	return stubSession{}, nil
}

type stubSession struct{}

func (stubSession) Send(ctx context.Context, parts ...gateway.Part) (string, error) {
	return "ready", nil
}

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		Gateway: config.GatewayConfig{MaxRetries: 1, RetryBaseDelay: time.Millisecond},
		Swarm:   config.SwarmConfig{MaxResearchRounds: 5, MaxDebateRounds: 2, MaxRemediationCycles: 4, RefineMinScore: 4},
	}
	gw := stubGateway{}
	registry := swarm.NewRegistry(cfg, gw, nil, nil)
	return &Server{
		cfg:      cfg,
		orch:     swarm.NewOrchestrator(cfg, gw, registry, nil),
		registry: registry,
		logger:   log.New(log.Writer(), "[HTTP] ", log.LstdFlags),
	}
}

func uploadRequest(t *testing.T, name string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("document", name)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/experts/documents", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestBriefDocumentEndpoint(t *testing.T) {
	s := testServer(t)
	e := s.buildEcho()

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, uploadRequest(t, "report.pdf", []byte("pdf bytes")))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/experts", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Experts []string `json:"experts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Experts) != 1 || body.Experts[0] != "report.pdf" {
		t.Fatalf("unexpected experts: %v", body.Experts)
	}
}

func TestRemoveExpertEndpoint(t *testing.T) {
	s := testServer(t)
	e := s.buildEcho()

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, uploadRequest(t, "a.pdf", []byte("x")))
	if rec.Code != http.StatusCreated {
		t.Fatalf("brief failed: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/experts/a.pdf", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/experts/ghost", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown expert, got %d", rec.Code)
	}
}

func TestRemoveStandingExpertRejected(t *testing.T) {
	s := testServer(t)
	if err := s.registry.EnsureStandingExperts(context.Background(), nil); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	e := s.buildEcho()

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/experts/Web%20Expert", nil))
	if rec.Code == http.StatusNoContent {
		t.Fatalf("standing experts must not be removable")
	}
	if !s.registry.Has(swarm.WebExpertName) {
		t.Fatalf("web expert was removed")
	}
}

func TestStartRunValidation(t *testing.T) {
	s := testServer(t)
	e := s.buildEcho()

	req := httptest.NewRequest(http.MethodPost, "/api/runs", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty query must be rejected, got %d", rec.Code)
	}
}
