package swarm

import (
	"context"
	"fmt"
	"log"

	"github.com/mohammad-safakhou/docser/config"
	"github.com/mohammad-safakhou/docser/internal/gateway"
	"github.com/mohammad-safakhou/docser/internal/jsonx"
)

// Arbiter weighs the reviewer's audit against the report and issues the
// binding verdict: approve, order an incremental rewrite, reject the whole
// research approach, push back into debate, or ask the user to clarify.
type Arbiter struct {
	cfg    *config.Config
	gw     gateway.Gateway
	logger *log.Logger
}

func NewArbiter(cfg *config.Config, gw gateway.Gateway) *Arbiter {
	return &Arbiter{cfg: cfg, gw: gw, logger: log.New(log.Writer(), "[ARBITER] ", log.LstdFlags)}
}

var verdictSchema = &gateway.Schema{
	Type:     "object",
	Required: []string{"verdict", "reasoning"},
	Properties: map[string]*gateway.Schema{
		"verdict": {Type: "string", Enum: []string{
			string(VerdictApproved),
			string(VerdictIncremental),
			string(VerdictRejected),
			string(VerdictDebate),
			string(VerdictNeedsClarification),
		}},
		"reasoning":    {Type: "string"},
		"remediation":  planSchema,
		"user_message": {Type: "string"},
	},
}

// approvedVerdict ships the report when arbitration itself is unavailable.
func approvedVerdict(reason string) Verdict {
	return Verdict{Kind: VerdictApproved, Reasoning: reason}
}

// Arbitrate issues the verdict for one review cycle. debateRound counts how
// many debate round-trips already happened; once the allowance is spent the
// debate option is withdrawn from the schema the model sees. Failures and
// unparsable output approve the report rather than blocking it.
func (a *Arbiter) Arbitrate(ctx context.Context, query, report string, review Review, debateRound int) (Verdict, error) {
	reviewJSON, _ := jsonMarshal(review)
	prompt := fmt.Sprintf(`You are the arbiter of a research assistant. A reviewer audited the report below. Weigh the review against the report and decide:

- "approved": the report ships as is.
- "incremental": the report's research is sound but the writing has fixable flaws. Provide "remediation" as a plan whose tasks describe the required edits.
- "rejected": the research itself missed the mark and must restart. Provide "remediation" as a plan of what the new research should cover.
- "debate": the review is unconvincing; challenge it in "reasoning" and the reviewer will respond.
- "needs_clarification": only the user can resolve the ambiguity. Put the question to the user in "user_message".

User query: %s

Report:
%s

Reviewer's audit:
%s`, query, report, reviewJSON)

	schema := verdictSchema
	if debateRound >= a.cfg.Swarm.MaxDebateRounds {
		schema = verdictSchemaNoDebate
		prompt += "\n\nThe debate allowance is spent. You must decide now; further debate is not available."
	}

	out, err := gateway.WithRetry(ctx, func(ctx context.Context) (string, error) {
		return a.gw.Generate(ctx, gateway.Request{
			Model:  a.cfg.Gateway.Routing.Model(a.cfg.Gateway.Routing.Arbitration),
			Prompt: prompt,
			Schema: schema,
		})
	}, a.cfg.Gateway.MaxRetries, a.cfg.Gateway.RetryBaseDelay)
	if err != nil {
		if isFatal(err) {
			return Verdict{}, err
		}
		a.logger.Printf("arbitration failed, approving: %v", err)
		return approvedVerdict("arbitration unavailable, auto-approved"), nil
	}

	var verdict Verdict
	if err := jsonx.Decode(out, &verdict); err != nil {
		a.logger.Printf("unparsable verdict, approving")
		return approvedVerdict("unparsable arbitration output, auto-approved"), nil
	}
	switch verdict.Kind {
	case VerdictApproved, VerdictDebate, VerdictNeedsClarification:
	case VerdictIncremental, VerdictRejected:
		if verdict.Remediation == nil || len(verdict.Remediation.Tasks()) == 0 {
			a.logger.Printf("%s verdict without remediation, approving", verdict.Kind)
			return approvedVerdict("remediation missing, auto-approved"), nil
		}
	default:
		a.logger.Printf("unknown verdict %q, approving", verdict.Kind)
		return approvedVerdict("unknown verdict kind, auto-approved"), nil
	}
	return verdict, nil
}

var verdictSchemaNoDebate = &gateway.Schema{
	Type:     "object",
	Required: []string{"verdict", "reasoning"},
	Properties: map[string]*gateway.Schema{
		"verdict": {Type: "string", Enum: []string{
			string(VerdictApproved),
			string(VerdictIncremental),
			string(VerdictRejected),
			string(VerdictNeedsClarification),
		}},
		"reasoning":    {Type: "string"},
		"remediation":  planSchema,
		"user_message": {Type: "string"},
	},
}
