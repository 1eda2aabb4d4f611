package swarm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mohammad-safakhou/docser/config"
	"github.com/mohammad-safakhou/docser/internal/gateway"
)

// fakeGateway scripts Generate by routing model name and counts every call,
// so tests can assert which stages ran.
type fakeGateway struct {
	mu       sync.Mutex
	generate func(req gateway.Request) (string, error)
	session  func(cfg gateway.SessionConfig) (gateway.Session, error)
	calls    map[string]int
	sessions int
}

func newFakeGateway(generate func(req gateway.Request) (string, error)) *fakeGateway {
	return &fakeGateway{generate: generate, calls: map[string]int{}}
}

func (f *fakeGateway) Generate(ctx context.Context, req gateway.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", gateway.ErrAborted, err)
	}
	f.mu.Lock()
	f.calls[req.Model]++
	f.mu.Unlock()
	if f.generate == nil {
		return "{}", nil
	}
	return f.generate(req)
}

func (f *fakeGateway) StartSession(ctx context.Context, cfg gateway.SessionConfig) (gateway.Session, error) {
	f.mu.Lock()
	f.sessions++
	f.mu.Unlock()
	if f.session != nil {
		return f.session(cfg)
	}
	return &fakeSession{}, nil
}

func (f *fakeGateway) callCount(model string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[model]
}

// fakeSession answers per message, or via fn when set.
type fakeSession struct {
	fn    func(parts ...gateway.Part) (string, error)
	reply string
}

func (s *fakeSession) Send(ctx context.Context, parts ...gateway.Part) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", gateway.ErrAborted, err)
	}
	if s.fn != nil {
		return s.fn(parts...)
	}
	if s.reply != "" {
		return s.reply, nil
	}
	return "ready", nil
}

// Distinct model names per stage let scripted gateways tell stages apart.
const (
	mQuick   = "quick-model"
	mIntent  = "intent-model"
	mClarify = "clarify-model"
	mPlan    = "plan-model"
	mAdvisor = "advisor-model"
	mEval    = "eval-model"
	mSynth   = "synth-model"
	mReview  = "review-model"
	mArbiter = "arbiter-model"
	mExpert  = "expert-model"
)

func testConfig() *config.Config {
	return &config.Config{
		Gateway: config.GatewayConfig{
			MaxRetries:     2,
			RetryBaseDelay: time.Millisecond,
			Routing: config.RoutingConfig{
				Quick:       mQuick,
				Intent:      mIntent,
				Clarify:     mClarify,
				Planning:    mPlan,
				Advisor:     mAdvisor,
				Evaluation:  mEval,
				Synthesis:   mSynth,
				Review:      mReview,
				Arbitration: mArbiter,
				Expert:      mExpert,
				Fallback:    "fallback-model",
			},
		},
		Swarm: config.SwarmConfig{
			MaxResearchRounds:    5,
			MaxDebateRounds:      2,
			MaxRemediationCycles: 4,
			RefineMinScore:       4,
			ReviseRejectedPlans:  true,
			URLFetchTimeout:      time.Second,
		},
	}
}

// Canned stage outputs used across orchestrator tests.
const (
	deepIntentJSON    = `{"intent": "deep_research", "rationale": "multi-part"}`
	quickIntentJSON   = `{"intent": "quick_answer", "rationale": "greeting"}`
	noClarifyJSON     = `{"requires_clarification": false}`
	cleanAdvisorJSON  = `{"scorecard": {"coverage":5,"grounding":5,"sequencing":5,"efficiency":5,"risk_awareness":5,"clarity":5}, "risks": [], "evidence": []}`
	finalizeJSON      = `{"status": "finalize"}`
	approveReviewJSON = `{"answers_query": true, "has_hallucinations": false, "opinion": "solid"}`
	approvedJSON      = `{"verdict": "approved", "reasoning": "ship it"}`
	reportText        = "<reasoning>weighed the evidence</reasoning>The answer is 42."
)

func webPlanJSON(question string) string {
	return fmt.Sprintf(`{"plan_type": "deep_analysis", "steps": [{"tasks": [{"expert": "Web Expert", "question": %q}]}]}`, question)
}

// testRegistry builds a registry holding only the web expert, backed by fn.
func testRegistry(t interface{ Fatalf(string, ...interface{}) }, cfg *config.Config, gw *fakeGateway) *Registry {
	reg := NewRegistry(cfg, gw, nil, nil)
	if err := reg.ensureWebExpert(context.Background()); err != nil {
		t.Fatalf("ensure web expert: %v", err)
	}
	return reg
}
