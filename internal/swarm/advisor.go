package swarm

import (
	"context"
	"fmt"
	"log"

	"github.com/mohammad-safakhou/docser/config"
	"github.com/mohammad-safakhou/docser/internal/gateway"
	"github.com/mohammad-safakhou/docser/internal/jsonx"
)

// Advisor scores a plan against a fixed rubric. It only reports; acting on
// the scorecard is the planner's job.
type Advisor struct {
	cfg    *config.Config
	gw     gateway.Gateway
	logger *log.Logger
}

func NewAdvisor(cfg *config.Config, gw gateway.Gateway) *Advisor {
	return &Advisor{cfg: cfg, gw: gw, logger: log.New(log.Writer(), "[ADVISOR] ", log.LstdFlags)}
}

var scoreDim = &gateway.Schema{Type: "integer", Minimum: 1, Maximum: 5}

var advisorSchema = &gateway.Schema{
	Type:     "object",
	Required: []string{"scorecard"},
	Properties: map[string]*gateway.Schema{
		"scorecard": {
			Type:     "object",
			Required: []string{"coverage", "grounding", "sequencing", "efficiency", "risk_awareness", "clarity"},
			Properties: map[string]*gateway.Schema{
				"coverage":       scoreDim,
				"grounding":      scoreDim,
				"sequencing":     scoreDim,
				"efficiency":     scoreDim,
				"risk_awareness": scoreDim,
				"clarity":        scoreDim,
			},
		},
		"risks":    {Type: "array", Items: &gateway.Schema{Type: "string"}},
		"evidence": {Type: "array", Items: &gateway.Schema{Type: "string"}},
	},
}

// cleanReport waves a plan through when the advisor itself is unavailable.
// A broken advisor must never block research.
func cleanReport() AdvisorReport {
	return AdvisorReport{Scorecard: Scorecard{Coverage: 5, Grounding: 5, Sequencing: 5, Efficiency: 5, RiskAwareness: 5, Clarity: 5}}
}

// ReviewPlan scores the plan on six dimensions, 1-5 each. On failure or
// unparsable output it returns a clean scorecard so the pipeline proceeds.
func (a *Advisor) ReviewPlan(ctx context.Context, query string, plan Plan, experts []string) (AdvisorReport, error) {
	planJSON, _ := jsonMarshal(plan)
	prompt := fmt.Sprintf(`You are a research advisor. Score the plan below on each dimension from 1 (poor) to 5 (excellent):
- coverage: does it address every facet of the query?
- grounding: are tasks matched to the right experts?
- sequencing: is the step ordering sensible?
- efficiency: no redundant or low-value tasks?
- risk_awareness: does the strategy anticipate likely failure modes?
- clarity: are the task questions specific enough to act on?

List concrete "risks" only when you see real weaknesses; an empty list means the plan is sound. Cite supporting "evidence" from the plan for low scores.

Available experts:
%s

User query: %s

Plan:
%s`, bulletList(experts), query, planJSON)

	out, err := gateway.WithRetry(ctx, func(ctx context.Context) (string, error) {
		return a.gw.Generate(ctx, gateway.Request{
			Model:  a.cfg.Gateway.Routing.Model(a.cfg.Gateway.Routing.Advisor),
			Prompt: prompt,
			Schema: advisorSchema,
		})
	}, a.cfg.Gateway.MaxRetries, a.cfg.Gateway.RetryBaseDelay)
	if err != nil {
		if isFatal(err) {
			return AdvisorReport{}, err
		}
		a.logger.Printf("advisor failed, waving plan through: %v", err)
		return cleanReport(), nil
	}

	var report AdvisorReport
	if err := jsonx.Decode(out, &report); err != nil {
		a.logger.Printf("unparsable advisor output, waving plan through")
		return cleanReport(), nil
	}
	if report.Scorecard == (Scorecard{}) {
		return cleanReport(), nil
	}
	return report, nil
}
