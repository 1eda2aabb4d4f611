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

// Planner turns a query into a structured task assignment and, when the
// advisor flags weaknesses, refines it.
type Planner struct {
	cfg    *config.Config
	gw     gateway.Gateway
	logger *log.Logger
}

func NewPlanner(cfg *config.Config, gw gateway.Gateway) *Planner {
	return &Planner{cfg: cfg, gw: gw, logger: log.New(log.Writer(), "[PLANNER] ", log.LstdFlags)}
}

var taskSchema = &gateway.Schema{
	Type:     "object",
	Required: []string{"expert", "question"},
	Properties: map[string]*gateway.Schema{
		"expert":    {Type: "string"},
		"question":  {Type: "string"},
		"rationale": {Type: "string"},
	},
}

var planSchema = &gateway.Schema{
	Type:     "object",
	Required: []string{"plan_type", "steps"},
	Properties: map[string]*gateway.Schema{
		"plan_type":           {Type: "string", Enum: []string{string(PlanSimpleFact), string(PlanDeepAnalysis)}},
		"analysis":            {Type: "string"},
		"strategy":            {Type: "string"},
		"revision_commentary": {Type: "string"},
		"steps": {
			Type: "array",
			Items: &gateway.Schema{
				Type:     "object",
				Required: []string{"tasks"},
				Properties: map[string]*gateway.Schema{
					"title": {Type: "string"},
					"tasks": {Type: "array", Items: taskSchema},
				},
			},
		},
	},
}

// CreatePlan builds a plan for the (possibly clarification-augmented) query.
// priorFailure carries context from a rejected report so the new plan avoids
// repeating the same approach; it is empty on the first attempt.
func (p *Planner) CreatePlan(ctx context.Context, query string, history []Turn, experts []string, priorFailure string) (Plan, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, `You are the lead planner of a research assistant. Decompose the user's query into tasks for the available experts.

Available experts:
%s

Rules:
- Assign each task to exactly one expert BY NAME from the list above.
- Group tasks into ordered steps; tasks inside a step are independent.
- "plan_type" is "simple_fact" when one lookup suffices, "deep_analysis" otherwise.
- If the answer is already fully present in the conversation history, return an empty "steps" array.
`, bulletList(experts))
	if len(history) > 0 {
		sb.WriteString("\nConversation history:\n")
		for _, t := range history {
			fmt.Fprintf(&sb, "%s: %s\n", t.Role, t.Content)
		}
	}
	if priorFailure != "" {
		fmt.Fprintf(&sb, "\nA previous research attempt was rejected. Do not repeat its approach:\n%s\n", priorFailure)
	}
	fmt.Fprintf(&sb, "\nUser query: %s", query)

	out, err := gateway.WithRetry(ctx, func(ctx context.Context) (string, error) {
		return p.gw.Generate(ctx, gateway.Request{
			Model:  p.cfg.Gateway.Routing.Model(p.cfg.Gateway.Routing.Planning),
			Prompt: sb.String(),
			Schema: planSchema,
		})
	}, p.cfg.Gateway.MaxRetries, p.cfg.Gateway.RetryBaseDelay)
	if err != nil {
		if isFatal(err) {
			return Plan{}, fmt.Errorf("plan creation: %w", err)
		}
		p.logger.Printf("plan creation failed, falling back to a direct lookup: %v", err)
		return fallbackPlan(query, experts), nil
	}

	var plan Plan
	if err := jsonx.Decode(out, &plan); err != nil {
		p.logger.Printf("unparsable plan, falling back to a direct lookup")
		return fallbackPlan(query, experts), nil
	}
	if plan.Type == "" {
		plan.Type = PlanDeepAnalysis
	}
	return plan, nil
}

// fallbackPlan is the in-band default when the planner produces nothing
// usable: a single lookup against the first active expert, typed simple_fact
// so the research loop finalizes after one round. With no experts the plan is
// an empty no-op.
func fallbackPlan(query string, experts []string) Plan {
	plan := Plan{Type: PlanSimpleFact, Strategy: "direct lookup"}
	if len(experts) > 0 {
		plan.Steps = []PlanStep{{Tasks: []Task{{Expert: experts[0], Question: query}}}}
	}
	return plan
}

// Refine revises a plan against the advisor's report. The gate lives here:
// when every dimension scores at or above the threshold and no risks were
// raised, the original plan is returned untouched with no model call.
func (p *Planner) Refine(ctx context.Context, query string, plan Plan, report AdvisorReport, experts []string) (Plan, error) {
	if report.Scorecard.Min() >= p.cfg.Swarm.RefineMinScore && len(report.Risks) == 0 {
		return plan, nil
	}

	planJSON, _ := jsonMarshal(plan)
	reportJSON, _ := jsonMarshal(report)
	prompt := fmt.Sprintf(`You are the lead planner. An advisor reviewed your research plan and found weaknesses. Produce a revised plan that addresses them. Explain what changed in "revision_commentary".

Available experts:
%s

User query: %s

Current plan:
%s

Advisor report:
%s`, bulletList(experts), query, planJSON, reportJSON)

	out, err := gateway.WithRetry(ctx, func(ctx context.Context) (string, error) {
		return p.gw.Generate(ctx, gateway.Request{
			Model:  p.cfg.Gateway.Routing.Model(p.cfg.Gateway.Routing.Planning),
			Prompt: prompt,
			Schema: planSchema,
		})
	}, p.cfg.Gateway.MaxRetries, p.cfg.Gateway.RetryBaseDelay)
	if err != nil {
		if isFatal(err) {
			return Plan{}, err
		}
		p.logger.Printf("refinement failed, keeping original plan: %v", err)
		return plan, nil
	}

	var revised Plan
	if err := jsonx.Decode(out, &revised); err != nil {
		p.logger.Printf("unparsable refinement, keeping original plan")
		return plan, nil
	}
	if revised.Type == "" {
		revised.Type = plan.Type
	}
	return revised, nil
}

func bulletList(items []string) string {
	var b strings.Builder
	for _, it := range items {
		fmt.Fprintf(&b, "- %s\n", it)
	}
	return b.String()
}
