package swarm

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mohammad-safakhou/docser/config"
	"github.com/mohammad-safakhou/docser/internal/gateway"
	"github.com/mohammad-safakhou/docser/internal/jsonx"
)

// Evaluator decides after each execution round whether the accumulated
// evidence suffices or research must pivot with a fresh plan.
type Evaluator struct {
	cfg    *config.Config
	gw     gateway.Gateway
	logger *log.Logger
}

func NewEvaluator(cfg *config.Config, gw gateway.Gateway) *Evaluator {
	return &Evaluator{cfg: cfg, gw: gw, logger: log.New(log.Writer(), "[EVAL] ", log.LstdFlags)}
}

var evalSchema = &gateway.Schema{
	Type:     "object",
	Required: []string{"status"},
	Properties: map[string]*gateway.Schema{
		"status":       {Type: "string", Enum: []string{string(EvalContinue), string(EvalFinalize)}},
		"gap_analysis": {Type: "string"},
		"new_plan":     planSchema,
	},
}

// Evaluate inspects the accumulated answers against the query. A "continue"
// must carry a new plan; one without is coerced to finalize. On failure or
// unparsable output it finalizes with whatever was gathered.
func (e *Evaluator) Evaluate(ctx context.Context, query string, answers []ExpertAnswer, round int, experts []string) (Evaluation, error) {
	prompt := fmt.Sprintf(`You are a research evaluator. Round %d of %d just completed. Decide whether the gathered evidence is sufficient to answer the user's query.

- Return "status": "finalize" when the evidence suffices, or when remaining gaps cannot plausibly be closed by the available experts.
- Return "status": "continue" ONLY with a "new_plan" of targeted follow-up tasks that close concrete gaps named in "gap_analysis". Never re-ask a question already answered.

Available experts:
%s

User query: %s

Evidence so far:
%s`, round, e.cfg.Swarm.MaxResearchRounds, bulletList(experts), query, renderAnswers(answers))

	out, err := gateway.WithRetry(ctx, func(ctx context.Context) (string, error) {
		return e.gw.Generate(ctx, gateway.Request{
			Model:  e.cfg.Gateway.Routing.Model(e.cfg.Gateway.Routing.Evaluation),
			Prompt: prompt,
			Schema: evalSchema,
		})
	}, e.cfg.Gateway.MaxRetries, e.cfg.Gateway.RetryBaseDelay)
	if err != nil {
		if isFatal(err) {
			return Evaluation{}, err
		}
		e.logger.Printf("evaluation failed, finalizing with gathered evidence: %v", err)
		return Evaluation{Status: EvalFinalize}, nil
	}

	var eval Evaluation
	if err := jsonx.Decode(out, &eval); err != nil {
		e.logger.Printf("unparsable evaluation, finalizing with gathered evidence")
		return Evaluation{Status: EvalFinalize}, nil
	}
	if eval.Status == EvalContinue && (eval.NewPlan == nil || len(eval.NewPlan.Tasks()) == 0) {
		e.logger.Printf("continue without a new plan, coercing to finalize")
		eval.Status = EvalFinalize
		eval.NewPlan = nil
	}
	return eval, nil
}

func renderAnswers(answers []ExpertAnswer) string {
	var b strings.Builder
	for _, a := range answers {
		fmt.Fprintf(&b, "[round %d] %s was asked: %s\nAnswer: %s\n\n", a.Round, a.Expert, a.Question, a.Answer)
	}
	return b.String()
}
