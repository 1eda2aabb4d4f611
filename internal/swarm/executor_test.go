package swarm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mohammad-safakhou/docser/internal/gateway"
)

func TestExecuteUnknownExpertYieldsSyntheticError(t *testing.T) {
	gw := newFakeGateway(nil)
	gw.session = func(cfg gateway.SessionConfig) (gateway.Session, error) {
		return &fakeSession{reply: "found it"}, nil
	}
	cfg := testConfig()
	reg := testRegistry(t, cfg, gw)
	exec := NewExecutor(cfg, reg)

	plan := Plan{Type: PlanSimpleFact, Steps: []PlanStep{{Tasks: []Task{
		{Expert: WebExpertName, Question: "q1"},
		{Expert: "Nobody", Question: "q2"},
	}}}}
	answers, err := exec.Execute(context.Background(), plan, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(answers) != 2 {
		t.Fatalf("every task yields exactly one answer, got %d", len(answers))
	}
	if answers[0].Answer != "found it" {
		t.Fatalf("unexpected first answer: %q", answers[0].Answer)
	}
	if answers[1].Answer != errUnassigned {
		t.Fatalf("unknown expert must yield %q, got %q", errUnassigned, answers[1].Answer)
	}
}

func TestExecuteRetrievalFailureIsPerTask(t *testing.T) {
	gw := newFakeGateway(nil)
	gw.session = func(cfg gateway.SessionConfig) (gateway.Session, error) {
		return &fakeSession{fn: func(parts ...gateway.Part) (string, error) {
			if strings.Contains(parts[0].Text, "Confirm") || strings.Contains(parts[len(parts)-1].Text, "confirm") {
				return "ready", nil
			}
			return "", errors.New("model refused")
		}}, nil
	}
	cfg := testConfig()
	reg := testRegistry(t, cfg, gw)
	exec := NewExecutor(cfg, reg)

	plan := Plan{Type: PlanSimpleFact, Steps: []PlanStep{{Tasks: []Task{
		{Expert: WebExpertName, Question: "q1"},
	}}}}
	answers, err := exec.Execute(context.Background(), plan, 1)
	if err != nil {
		t.Fatalf("per-task failures must not fail the round: %v", err)
	}
	if answers[0].Answer != errRetrievalFailed {
		t.Fatalf("expected %q, got %q", errRetrievalFailed, answers[0].Answer)
	}
}

func TestExecutePreservesDeclarationOrder(t *testing.T) {
	gw := newFakeGateway(nil)
	gw.session = func(cfg gateway.SessionConfig) (gateway.Session, error) {
		return &fakeSession{fn: func(parts ...gateway.Part) (string, error) {
			q := parts[len(parts)-1].Text
			if strings.HasPrefix(q, "This document") {
				return "ready", nil
			}
			// Later questions answer faster than earlier ones.
			if q == "first" {
				time.Sleep(30 * time.Millisecond)
			}
			return "answer:" + q, nil
		}}, nil
	}
	cfg := testConfig()
	reg := testRegistry(t, cfg, gw)
	if err := reg.BriefDocumentExpert(context.Background(), Document{Name: "a.pdf", MIMEType: "application/pdf", Data: []byte("x")}); err != nil {
		t.Fatalf("brief: %v", err)
	}

	exec := NewExecutor(cfg, reg)
	plan := Plan{Type: PlanSimpleFact, Steps: []PlanStep{{Tasks: []Task{
		{Expert: WebExpertName, Question: "first"},
		{Expert: "a.pdf", Question: "second"},
	}}}}
	answers, err := exec.Execute(context.Background(), plan, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answers[0].Answer != "answer:first" || answers[1].Answer != "answer:second" {
		t.Fatalf("results must follow declaration order, got %+v", answers)
	}
	if answers[0].Round != 2 || answers[1].Round != 2 {
		t.Fatalf("answers must carry their round, got %+v", answers)
	}
}

func TestExecuteCancellationMidFanOut(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var dispatched atomic.Int32

	gw := newFakeGateway(nil)
	gw.session = func(cfg gateway.SessionConfig) (gateway.Session, error) {
		return &fakeSession{fn: func(parts ...gateway.Part) (string, error) {
			q := parts[len(parts)-1].Text
			if strings.HasPrefix(q, "This document") {
				return "ready", nil
			}
			if dispatched.Add(1) >= 3 {
				cancel()
				<-ctx.Done()
				return "", fmt.Errorf("%w: %v", gateway.ErrAborted, ctx.Err())
			}
			return "done", nil
		}}, nil
	}
	cfg := testConfig()
	reg := testRegistry(t, cfg, gw)
	for i := 0; i < 4; i++ {
		name := fmt.Sprintf("doc%d.pdf", i)
		if err := reg.BriefDocumentExpert(context.Background(), Document{Name: name, MIMEType: "application/pdf", Data: []byte("x")}); err != nil {
			t.Fatalf("brief %s: %v", name, err)
		}
	}

	tasks := []Task{{Expert: WebExpertName, Question: "q0"}}
	for i := 0; i < 4; i++ {
		tasks = append(tasks, Task{Expert: fmt.Sprintf("doc%d.pdf", i), Question: fmt.Sprintf("q%d", i+1)})
	}
	exec := NewExecutor(cfg, reg)
	answers, err := exec.Execute(ctx, Plan{Type: PlanSimpleFact, Steps: []PlanStep{{Tasks: tasks}}}, 1)
	if !errors.Is(err, gateway.ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	if answers != nil {
		t.Fatalf("cancelled fan-out must not return partial results, got %+v", answers)
	}
}
