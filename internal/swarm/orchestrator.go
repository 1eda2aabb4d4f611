package swarm

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mohammad-safakhou/docser/config"
	"github.com/mohammad-safakhou/docser/internal/gateway"
)

// User-visible terminal messages. Cancellation and internal failures never
// leak stage detail to the user.
const (
	MsgStopped       = "stopped by user"
	MsgInternalError = "the research team encountered an error"

	cannedGreeting = "Hello! How can I help you with your documents today?"
)

// Orchestrator is the pipeline driver: it owns the per-request cancellation
// scope and walks a request through intent, clarification, planning,
// research, synthesis and arbitration.
type Orchestrator struct {
	cfg         *config.Config
	gw          gateway.Gateway
	registry    *Registry
	intent      *IntentClassifier
	clarifier   *Clarifier
	planner     *Planner
	advisor     *Advisor
	executor    *Executor
	evaluator   *Evaluator
	synthesizer *Synthesizer
	reviewer    *Reviewer
	arbiter     *Arbiter
	metrics     *Metrics
	logger      *log.Logger
	tracer      trace.Tracer
	onStep      func(*RunResult)

	mu     sync.Mutex
	active *runToken
}

type runToken struct{ cancel context.CancelFunc }

func NewOrchestrator(cfg *config.Config, gw gateway.Gateway, registry *Registry, metrics *Metrics) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		gw:          gw,
		registry:    registry,
		intent:      NewIntentClassifier(cfg, gw),
		clarifier:   NewClarifier(cfg, gw),
		planner:     NewPlanner(cfg, gw),
		advisor:     NewAdvisor(cfg, gw),
		executor:    NewExecutor(cfg, registry),
		evaluator:   NewEvaluator(cfg, gw),
		synthesizer: NewSynthesizer(cfg, gw),
		reviewer:    NewReviewer(cfg, gw),
		arbiter:     NewArbiter(cfg, gw),
		metrics:     metrics,
		logger:      log.New(log.Writer(), "[ORCH] ", log.LstdFlags),
		tracer:      otel.Tracer("docser/swarm"),
	}
}

// Run executes one request end to end. Starting a run supersedes any prior
// in-flight run: at most one pipeline is active at a time, and the older one
// observes cancellation at its next suspension point.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*RunResult, error) {
	ctx, token := o.supersede(ctx)
	defer o.release(token)

	res := &RunResult{ID: uuid.NewString(), Query: req.Query, Status: StatusRunning, StartedAt: time.Now()}
	err := o.run(ctx, req, res)
	res.CompletedAt = time.Now()
	if err != nil {
		if isAbort(err) {
			res.Status = StatusStopped
			res.Report = MsgStopped
		} else {
			o.logger.Printf("run %s failed: %v", res.ID, err)
			res.Status = StatusFailed
			res.Report = MsgInternalError
		}
	}
	o.metrics.observe(res)
	return res, err
}

// SetStepObserver registers a callback invoked after every collaboration
// step, with the run state as of that step. Observers run on the pipeline
// goroutine; set before any run starts.
func (o *Orchestrator) SetStepObserver(fn func(*RunResult)) {
	o.onStep = fn
}

// Stop cancels the in-flight run, if any.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active != nil {
		o.active.cancel()
		o.active = nil
	}
}

func (o *Orchestrator) supersede(ctx context.Context) (context.Context, *runToken) {
	ctx, cancel := context.WithCancel(ctx)
	token := &runToken{cancel: cancel}
	o.mu.Lock()
	if o.active != nil {
		o.logger.Printf("superseding in-flight run")
		o.active.cancel()
	}
	o.active = token
	o.mu.Unlock()
	return ctx, token
}

func (o *Orchestrator) release(token *runToken) {
	o.mu.Lock()
	if o.active == token {
		o.active = nil
	}
	o.mu.Unlock()
	token.cancel()
}

func (o *Orchestrator) run(ctx context.Context, req Request, res *RunResult) error {
	ctx, span := o.tracer.Start(ctx, "swarm.run", trace.WithAttributes(attribute.String("run.id", res.ID)))
	defer span.End()

	experts := o.registry.List()
	query := req.Query

	if len(req.Answers) > 0 {
		// Resuming after clarification: intent and clarifier are settled.
		query = AugmentQuery(req.Query, req.Answers)
		res.Intent = IntentDeepResearch
	} else {
		decision, err := o.intent.Classify(ctx, query, req.Images, experts)
		if err != nil {
			return err
		}
		res.Intent = decision.Intent
		o.logger.Printf("run %s intent: %s (%s)", res.ID, decision.Intent, decision.Rationale)
		if decision.Intent == IntentQuickAnswer {
			return o.quickAnswer(ctx, req, res)
		}

		clar, err := o.clarifier.Check(ctx, query, experts)
		if err != nil {
			return err
		}
		if clar.Required {
			res.Status = StatusAwaitingAnswers
			res.Clarification = &clar
			return nil
		}
	}
	res.Query = query

	var (
		answers      []ExpertAnswer
		report       Report
		remediation  int
		priorFailure string
		execRound    int
	)

	for {
		plan, err := o.buildPlan(ctx, query, req.History, experts, priorFailure, o.cfg.Swarm.ReviseRejectedPlans || priorFailure == "", res)
		if err != nil {
			return err
		}

		// Research phase. The per-phase round budget resets on every
		// restart; execRound keeps growing so accumulated answers stay
		// ordered across phases.
		for phaseRound := 1; ; phaseRound++ {
			execRound++
			got, err := o.dispatch(ctx, plan, execRound, res)
			if err != nil {
				return err
			}
			answers = append(answers, got...)
			res.Answers = answers
			if plan.Type == PlanSimpleFact {
				break
			}
			if phaseRound >= o.cfg.Swarm.MaxResearchRounds {
				o.logger.Printf("run %s: research round budget exhausted, finalizing", res.ID)
				break
			}
			eval, err := o.evaluator.Evaluate(ctx, query, answers, phaseRound, experts)
			if err != nil {
				return err
			}
			o.step(res, StepResearchEvaluation, eval)
			if eval.Status != EvalContinue {
				break
			}
			plan = *eval.NewPlan
		}

		// Synthesis plus adversarial review. Debate re-audits the same
		// report; incremental re-synthesizes; rejected restarts research.
		feedback := ""
		debateMsg := ""
		debateRounds := 0
		restart := false
		for !restart {
			report, err = o.synthesizer.Synthesize(ctx, query, answers, req.History, feedback)
			if err != nil {
				return err
			}

			resynthesize := false
			for !resynthesize && !restart {
				review, err := o.reviewer.Audit(ctx, query, report.Content, answers, debateMsg)
				if err != nil {
					return err
				}
				o.step(res, StepOutputReview, review)

				verdict, err := o.arbiter.Arbitrate(ctx, query, report.Content, review, debateRounds)
				if err != nil {
					return err
				}
				o.step(res, StepArbitration, verdict)
				res.Verdict = verdict.Kind
				res.DebateRounds = debateRounds

				switch verdict.Kind {
				case VerdictApproved:
					o.finish(res, report)
					return nil

				case VerdictDebate:
					if debateRounds >= o.cfg.Swarm.MaxDebateRounds {
						o.override(res, report, "debate allowance exhausted")
						return nil
					}
					debateRounds++
					debateMsg = verdict.Reasoning

				case VerdictNeedsClarification:
					res.Status = StatusAwaitingAnswers
					res.Report = verdict.UserMessage
					res.Clarification = &Clarification{
						Required: true,
						Questions: []ClarifyQuestion{{
							Question: verdict.UserMessage,
							Options:  []string{"You decide - use your best judgment"},
						}},
					}
					return nil

				case VerdictIncremental:
					if remediation >= o.cfg.Swarm.MaxRemediationCycles {
						o.override(res, report, "remediation budget exhausted")
						return nil
					}
					remediation++
					res.RemediationCycles = remediation
					execRound++
					got, err := o.dispatch(ctx, *verdict.Remediation, execRound, res)
					if err != nil {
						return err
					}
					answers = append(answers, got...)
					res.Answers = answers
					feedback = verdict.Reasoning
					debateMsg, debateRounds = "", 0
					resynthesize = true

				case VerdictRejected:
					if remediation >= o.cfg.Swarm.MaxRemediationCycles {
						o.override(res, report, "remediation budget exhausted")
						return nil
					}
					remediation++
					res.RemediationCycles = remediation
					priorFailure = rejectionContext(verdict)
					restart = true
				}
			}
		}
	}
}

// dispatch runs one execution round and logs it.
func (o *Orchestrator) dispatch(ctx context.Context, plan Plan, round int, res *RunResult) ([]ExpertAnswer, error) {
	ctx, span := o.tracer.Start(ctx, "swarm.execute", trace.WithAttributes(attribute.Int("round", round)))
	defer span.End()

	o.step(res, StepExecutionDispatch, plan)
	res.ResearchRounds = round
	return o.executor.Execute(ctx, plan, round)
}

// buildPlan creates a plan and, when gate is set, runs it through the
// advisor scorecard and refinement.
func (o *Orchestrator) buildPlan(ctx context.Context, query string, history []Turn, experts []string, priorFailure string, gate bool, res *RunResult) (Plan, error) {
	ctx, span := o.tracer.Start(ctx, "swarm.plan")
	defer span.End()

	plan, err := o.planner.CreatePlan(ctx, query, history, experts, priorFailure)
	if err != nil {
		return Plan{}, err
	}
	if !gate {
		o.step(res, StepPlan, plan)
		return plan, nil
	}

	report, err := o.advisor.ReviewPlan(ctx, query, plan, experts)
	if err != nil {
		return Plan{}, err
	}
	o.step(res, StepAdvisorReview, report)

	plan, err = o.planner.Refine(ctx, query, plan, report, experts)
	if err != nil {
		return Plan{}, err
	}
	o.step(res, StepPlan, plan)
	return plan, nil
}

// quickAnswer short-circuits greetings and trivial lookups with one call.
// The planner and executor are never touched on this path.
func (o *Orchestrator) quickAnswer(ctx context.Context, req Request, res *RunResult) error {
	ctx, span := o.tracer.Start(ctx, "swarm.quick")
	defer span.End()

	var sb strings.Builder
	for _, t := range req.History {
		fmt.Fprintf(&sb, "%s: %s\n", t.Role, t.Content)
	}
	sb.WriteString(req.Query)

	out, err := gateway.WithRetry(ctx, func(ctx context.Context) (string, error) {
		return o.gw.Generate(ctx, gateway.Request{
			Model:  o.cfg.Gateway.Routing.Model(o.cfg.Gateway.Routing.Quick),
			System: "You are a friendly research assistant. Answer briefly and directly.",
			Prompt: sb.String(),
			Blobs:  req.Images,
		})
	}, o.cfg.Gateway.MaxRetries, o.cfg.Gateway.RetryBaseDelay)
	if err != nil {
		if isFatal(err) {
			return err
		}
		out = cannedGreeting
	}
	res.Status = StatusCompleted
	res.Report = out
	return nil
}

func (o *Orchestrator) finish(res *RunResult, report Report) {
	res.Status = StatusCompleted
	res.Thinking = report.Thinking
	res.Report = report.Content
}

// override ships the current report when a loop budget runs out. The result
// is flagged so callers can tell a forced approval from an earned one.
func (o *Orchestrator) override(res *RunResult, report Report, reason string) {
	o.logger.Printf("run %s: %s, forcing approval", res.ID, reason)
	res.Verdict = VerdictApproved
	res.SystemOverride = true
	o.finish(res, report)
}

func (o *Orchestrator) step(res *RunResult, kind StepKind, payload interface{}) {
	res.Steps = append(res.Steps, CollaborationStep{
		ID:      uuid.NewString(),
		Kind:    kind,
		At:      time.Now(),
		Payload: payload,
	})
	if o.onStep != nil {
		o.onStep(res)
	}
}

// rejectionContext renders a rejection for the next planning prompt.
func rejectionContext(verdict Verdict) string {
	remediationJSON, _ := jsonMarshal(verdict.Remediation)
	return fmt.Sprintf("Rejection reason: %s\nThe reviewer suggested covering:\n%s", verdict.Reasoning, remediationJSON)
}
