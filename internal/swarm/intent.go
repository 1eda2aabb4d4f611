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

// IntentClassifier decides in one call whether a query needs the full
// pipeline or a short-circuit answer.
type IntentClassifier struct {
	cfg    *config.Config
	gw     gateway.Gateway
	logger *log.Logger
}

func NewIntentClassifier(cfg *config.Config, gw gateway.Gateway) *IntentClassifier {
	return &IntentClassifier{cfg: cfg, gw: gw, logger: log.New(log.Writer(), "[INTENT] ", log.LstdFlags)}
}

var intentSchema = &gateway.Schema{
	Type:     "object",
	Required: []string{"intent", "rationale"},
	Properties: map[string]*gateway.Schema{
		"intent":    {Type: "string", Enum: []string{string(IntentQuickAnswer), string(IntentDeepResearch)}},
		"rationale": {Type: "string"},
	},
}

// Classify tags the query. Unparsable or failed output defaults to
// deep-research: fail toward the more thorough path.
func (c *IntentClassifier) Classify(ctx context.Context, query string, images []gateway.Blob, experts []string) (IntentDecision, error) {
	prompt := c.buildPrompt(query, experts)
	out, err := gateway.WithRetry(ctx, func(ctx context.Context) (string, error) {
		return c.gw.Generate(ctx, gateway.Request{
			Model:  c.cfg.Gateway.Routing.Model(c.cfg.Gateway.Routing.Intent),
			Prompt: prompt,
			Blobs:  images,
			Schema: intentSchema,
		})
	}, c.cfg.Gateway.MaxRetries, c.cfg.Gateway.RetryBaseDelay)
	if err != nil {
		if isFatal(err) {
			return IntentDecision{}, err
		}
		c.logger.Printf("classification failed, defaulting to deep research: %v", err)
		return IntentDecision{Intent: IntentDeepResearch, Rationale: "classifier unavailable"}, nil
	}

	var decision IntentDecision
	if err := jsonx.Decode(out, &decision); err != nil || (decision.Intent != IntentQuickAnswer && decision.Intent != IntentDeepResearch) {
		c.logger.Printf("unparsable classification, defaulting to deep research")
		return IntentDecision{Intent: IntentDeepResearch, Rationale: "unparsable classifier output"}, nil
	}
	return decision, nil
}

func (c *IntentClassifier) buildPrompt(query string, experts []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Classify this user query for a document research assistant.

QUERY: %s

ACTIVE EXPERTS: %s

Rules:
- Greetings, pleasantries, and single-document factual lookups are "quick_answer".
- Multi-part comparisons, thematic synthesis across documents, table or formatted-output generation, and queries that would need disambiguation are "deep_research".

Return JSON with "intent" and "rationale".`, query, strings.Join(experts, ", "))
	return b.String()
}
