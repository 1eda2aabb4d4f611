package swarm

import (
	"time"

	"github.com/mohammad-safakhou/docser/internal/gateway"
)

// Intent is the classifier's routing decision for a user query.
type Intent string

const (
	IntentQuickAnswer  Intent = "quick_answer"
	IntentDeepResearch Intent = "deep_research"
)

// IntentDecision carries the routing tag plus the model's rationale.
type IntentDecision struct {
	Intent    Intent `json:"intent"`
	Rationale string `json:"rationale"`
}

// PlanType classifies how much research a plan expects to need.
type PlanType string

const (
	PlanSimpleFact   PlanType = "simple_fact"
	PlanDeepAnalysis PlanType = "deep_analysis"
)

// Task assigns one sub-question to one named expert.
type Task struct {
	Expert    string `json:"expert"`
	Question  string `json:"question"`
	Rationale string `json:"rationale,omitempty"`
}

// PlanStep is one ordered group of tasks.
type PlanStep struct {
	Title string `json:"title,omitempty"`
	Tasks []Task `json:"tasks"`
}

// Plan is the planner's structured task assignment. Steps may be empty when
// the answer is already in conversation history.
type Plan struct {
	Type               PlanType   `json:"plan_type"`
	Analysis           string     `json:"analysis,omitempty"`
	Strategy           string     `json:"strategy,omitempty"`
	RevisionCommentary string     `json:"revision_commentary,omitempty"`
	Steps              []PlanStep `json:"steps"`
}

// Tasks flattens all steps' tasks in declaration order.
func (p *Plan) Tasks() []Task {
	var out []Task
	for _, s := range p.Steps {
		out = append(out, s.Tasks...)
	}
	return out
}

// ExpertAnswer is one (expert, question, answer) triple in the accumulated
// result set. Round records which execution round earned it.
type ExpertAnswer struct {
	Expert   string `json:"expert"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Round    int    `json:"round"`
}

// Scorecard holds the advisor's six rubric dimensions, each 1-5.
type Scorecard struct {
	Coverage      int `json:"coverage"`
	Grounding     int `json:"grounding"`
	Sequencing    int `json:"sequencing"`
	Efficiency    int `json:"efficiency"`
	RiskAwareness int `json:"risk_awareness"`
	Clarity       int `json:"clarity"`
}

// Min returns the lowest dimension score.
func (s Scorecard) Min() int {
	min := s.Coverage
	for _, v := range []int{s.Grounding, s.Sequencing, s.Efficiency, s.RiskAwareness, s.Clarity} {
		if v < min {
			min = v
		}
	}
	return min
}

// AdvisorReport scores a plan without issuing a verdict.
type AdvisorReport struct {
	Scorecard Scorecard `json:"scorecard"`
	Risks     []string  `json:"risks"`
	Evidence  []string  `json:"evidence"`
}

// ClarifyQuestion is one disambiguation question with its options. The first
// option is always a "let the system decide" default; the last may be a
// free-text override.
type ClarifyQuestion struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// Clarification is the clarifier's decision.
type Clarification struct {
	Required  bool              `json:"requires_clarification"`
	Questions []ClarifyQuestion `json:"questions,omitempty"`
}

// ClarifyAnswer pairs a clarification question with the user's answer.
// Unanswered questions are omitted entirely, not padded.
type ClarifyAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// EvalStatus is the research evaluator's continuation decision.
type EvalStatus string

const (
	EvalContinue EvalStatus = "continue"
	EvalFinalize EvalStatus = "finalize"
)

// Evaluation decides whether research stops or pivots with a new plan.
type Evaluation struct {
	Status      EvalStatus `json:"status"`
	GapAnalysis string     `json:"gap_analysis,omitempty"`
	NewPlan     *Plan      `json:"new_plan,omitempty"`
}

// Report is the synthesizer's output: the delimited reasoning segment split
// from the cited body.
type Report struct {
	Thinking string `json:"thinking"`
	Content  string `json:"content"`
}

// Review is the output reviewer's observation. It never carries a fix or a
// verdict; that authority belongs to the arbiter.
type Review struct {
	AnswersQuery      bool   `json:"answers_query"`
	HasHallucinations bool   `json:"has_hallucinations"`
	Opinion           string `json:"opinion"`
}

// VerdictKind enumerates arbitration outcomes.
type VerdictKind string

const (
	VerdictApproved           VerdictKind = "approved"
	VerdictIncremental        VerdictKind = "incremental"
	VerdictRejected           VerdictKind = "rejected"
	VerdictDebate             VerdictKind = "debate"
	VerdictNeedsClarification VerdictKind = "needs_clarification"
)

// Verdict is the arbiter's classification of a reviewed report. Incremental
// and rejected verdicts carry a remediation plan; needs-clarification carries
// a user-facing message.
type Verdict struct {
	Kind        VerdictKind `json:"verdict"`
	Reasoning   string      `json:"reasoning"`
	Remediation *Plan       `json:"remediation,omitempty"`
	UserMessage string      `json:"user_message,omitempty"`
}

// StepKind tags which stage produced a collaboration step.
type StepKind string

const (
	StepPlan               StepKind = "plan"
	StepAdvisorReview      StepKind = "advisor_review"
	StepExecutionDispatch  StepKind = "execution_dispatch"
	StepResearchEvaluation StepKind = "research_evaluation"
	StepOutputReview       StepKind = "output_review"
	StepArbitration        StepKind = "arbitration"
)

// CollaborationStep is an immutable, timestamped log entry. Observability
// only; control flow never reads it back.
type CollaborationStep struct {
	ID      string      `json:"id"`
	Kind    StepKind    `json:"kind"`
	At      time.Time   `json:"at"`
	Payload interface{} `json:"payload,omitempty"`
}

// Turn is one prior conversation exchange supplied as planning context.
type Turn struct {
	Role    string `json:"role"` // user or model
	Content string `json:"content"`
}

// Request is one top-level research request.
type Request struct {
	Query   string
	Images  []gateway.Blob
	History []Turn
	Answers []ClarifyAnswer // set when resuming after clarification
}

// Status reports how a run ended.
type Status string

const (
	StatusRunning         Status = "running"
	StatusCompleted       Status = "completed"
	StatusAwaitingAnswers Status = "awaiting_answers"
	StatusStopped         Status = "stopped"
	StatusFailed          Status = "failed"
)

// RunResult is the orchestrator's final output for one request.
type RunResult struct {
	ID                string              `json:"id"`
	Query             string              `json:"query"`
	Status            Status              `json:"status"`
	Intent            Intent              `json:"intent"`
	Verdict           VerdictKind         `json:"verdict,omitempty"`
	Thinking          string              `json:"thinking,omitempty"`
	Report            string              `json:"report,omitempty"`
	Clarification     *Clarification      `json:"clarification,omitempty"`
	Answers           []ExpertAnswer      `json:"answers,omitempty"`
	Steps             []CollaborationStep `json:"steps,omitempty"`
	ResearchRounds    int                 `json:"research_rounds"`
	RemediationCycles int                 `json:"remediation_cycles"`
	DebateRounds      int                 `json:"debate_rounds"`
	SystemOverride    bool                `json:"system_override,omitempty"`
	StartedAt         time.Time           `json:"started_at"`
	CompletedAt       time.Time           `json:"completed_at"`
}

// Document is a briefing input: an opaque blob plus its MIME type.
type Document struct {
	Name     string
	MIMEType string
	Data     []byte
}
