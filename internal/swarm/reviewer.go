package swarm

import (
	"context"
	"fmt"
	"log"

	"github.com/mohammad-safakhou/docser/config"
	"github.com/mohammad-safakhou/docser/internal/gateway"
	"github.com/mohammad-safakhou/docser/internal/jsonx"
)

// Reviewer audits a synthesized report against the evidence. It observes
// and argues; it never decides. Verdicts belong to the arbiter.
type Reviewer struct {
	cfg    *config.Config
	gw     gateway.Gateway
	logger *log.Logger
}

func NewReviewer(cfg *config.Config, gw gateway.Gateway) *Reviewer {
	return &Reviewer{cfg: cfg, gw: gw, logger: log.New(log.Writer(), "[REVIEW] ", log.LstdFlags)}
}

var reviewSchema = &gateway.Schema{
	Type:     "object",
	Required: []string{"answers_query", "has_hallucinations", "opinion"},
	Properties: map[string]*gateway.Schema{
		"answers_query":      {Type: "boolean"},
		"has_hallucinations": {Type: "boolean"},
		"opinion":            {Type: "string"},
	},
}

// approvingReview waves a report through when the reviewer is unavailable.
func approvingReview() Review {
	return Review{AnswersQuery: true, HasHallucinations: false, Opinion: "review unavailable, auto-approved"}
}

// Audit checks the report. priorDebate carries the arbiter's challenge when
// this audit is a debate round; it is empty on the first pass. On failure or
// unparsable output the report is waved through rather than blocked.
func (r *Reviewer) Audit(ctx context.Context, query, report string, answers []ExpertAnswer, priorDebate string) (Review, error) {
	prompt := fmt.Sprintf(`You are a critical reviewer. Audit the report below against the user's query and the evidence.

- "answers_query": does the report actually answer what was asked?
- "has_hallucinations": does it assert anything the evidence does not support?
- "opinion": your honest assessment, naming specific passages.

User query: %s

Evidence:
%s
Report:
%s`, query, renderAnswers(answers), report)
	if priorDebate != "" {
		prompt += fmt.Sprintf("\n\nAn arbiter challenged your previous assessment. Respond to the challenge, conceding or holding your position on its merits:\n%s", priorDebate)
	}

	out, err := gateway.WithRetry(ctx, func(ctx context.Context) (string, error) {
		return r.gw.Generate(ctx, gateway.Request{
			Model:  r.cfg.Gateway.Routing.Model(r.cfg.Gateway.Routing.Review),
			Prompt: prompt,
			Schema: reviewSchema,
		})
	}, r.cfg.Gateway.MaxRetries, r.cfg.Gateway.RetryBaseDelay)
	if err != nil {
		if isFatal(err) {
			return Review{}, err
		}
		r.logger.Printf("review failed, auto-approving: %v", err)
		return approvingReview(), nil
	}

	var review Review
	if err := jsonx.Decode(out, &review); err != nil {
		r.logger.Printf("unparsable review, auto-approving")
		return approvingReview(), nil
	}
	return review, nil
}
