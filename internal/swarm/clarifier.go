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

// Clarifier decides whether a deep-research query is ambiguous enough to
// require user disambiguation before planning.
type Clarifier struct {
	cfg    *config.Config
	gw     gateway.Gateway
	logger *log.Logger
}

func NewClarifier(cfg *config.Config, gw gateway.Gateway) *Clarifier {
	return &Clarifier{cfg: cfg, gw: gw, logger: log.New(log.Writer(), "[CLARIFY] ", log.LstdFlags)}
}

var clarifySchema = &gateway.Schema{
	Type:     "object",
	Required: []string{"requires_clarification"},
	Properties: map[string]*gateway.Schema{
		"requires_clarification": {Type: "boolean"},
		"questions": {
			Type: "array",
			Items: &gateway.Schema{
				Type:     "object",
				Required: []string{"question", "options"},
				Properties: map[string]*gateway.Schema{
					"question": {Type: "string"},
					"options":  {Type: "array", Items: &gateway.Schema{Type: "string"}},
				},
			},
		},
	},
}

// Check inspects the query. Empty or unparsable output defaults to no
// clarification needed: fail toward proceeding, not blocking.
func (c *Clarifier) Check(ctx context.Context, query string, experts []string) (Clarification, error) {
	prompt := fmt.Sprintf(`A user asked a research assistant: %q

Active experts: %s

Decide whether this query is ambiguous enough that the user must disambiguate before research can be planned.
If clarification is required, produce 3-4 questions, each with 3-5 options. The FIRST option of every question must let the system decide (e.g. "You decide - use your best judgment"). The LAST option may invite a free-text answer.

Return JSON with "requires_clarification" and, when true, "questions".`, query, strings.Join(experts, ", "))

	out, err := gateway.WithRetry(ctx, func(ctx context.Context) (string, error) {
		return c.gw.Generate(ctx, gateway.Request{
			Model:  c.cfg.Gateway.Routing.Model(c.cfg.Gateway.Routing.Clarify),
			Prompt: prompt,
			Schema: clarifySchema,
		})
	}, c.cfg.Gateway.MaxRetries, c.cfg.Gateway.RetryBaseDelay)
	if err != nil {
		if isFatal(err) {
			return Clarification{}, err
		}
		c.logger.Printf("clarifier failed, proceeding without clarification: %v", err)
		return Clarification{Required: false}, nil
	}

	var result Clarification
	if err := jsonx.Decode(out, &result); err != nil {
		c.logger.Printf("unparsable clarifier output, proceeding without clarification")
		return Clarification{Required: false}, nil
	}
	if result.Required && len(result.Questions) == 0 {
		result.Required = false
	}
	return result, nil
}

// AugmentQuery appends the answered questions as rendered Question/Answer
// blocks. Unanswered questions are omitted entirely, not padded.
func AugmentQuery(query string, answers []ClarifyAnswer) string {
	var b strings.Builder
	b.WriteString(query)
	for _, a := range answers {
		if strings.TrimSpace(a.Answer) == "" {
			continue
		}
		fmt.Fprintf(&b, "\nQuestion: %s\nAnswer: %s", a.Question, a.Answer)
	}
	return b.String()
}
