package swarm

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mohammad-safakhou/docser/config"
	"github.com/mohammad-safakhou/docser/internal/gateway"
)

// Synthesizer composes the accumulated expert answers into the final cited
// report. It is the only stage that writes user-facing prose.
type Synthesizer struct {
	cfg    *config.Config
	gw     gateway.Gateway
	logger *log.Logger
}

func NewSynthesizer(cfg *config.Config, gw gateway.Gateway) *Synthesizer {
	return &Synthesizer{cfg: cfg, gw: gw, logger: log.New(log.Writer(), "[SYNTH] ", log.LstdFlags)}
}

const synthesizerSystem = `You are the lead writer of a research assistant. Compose a complete, well-structured answer to the user's query using ONLY the evidence provided. Never invent facts.

Begin your output with your working notes wrapped in <reasoning>...</reasoning>, then write the report itself.

Every claim drawn from evidence must carry an inline citation of the form:
<cite source="EXPERT NAME" quote="the exact supporting quote"/>
Include a page="..." attribute when the evidence names a page, and a logic="..." attribute when the claim is an inference rather than a direct statement. Preserve the originating expert's name as the source exactly; never substitute your own name.
Answers reading "Error: Expert not assigned." or "Error: Retrieval failed." are failures, not evidence. If the surviving evidence is too thin, say so plainly in the report.`

// remediationNote renders arbitration feedback for an incremental rewrite.
func remediationNote(feedback string) string {
	if feedback == "" {
		return ""
	}
	return fmt.Sprintf("\n\nA reviewer rejected a previous draft. Address this feedback in full:\n%s", feedback)
}

// Synthesize writes the report. feedback carries arbitration remediation
// notes on incremental rewrites and is empty on the first pass. Synthesis
// failures are fatal only for cancellation and retry exhaustion; anything
// else finalizes with an apologetic stub so the run still completes.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, answers []ExpertAnswer, history []Turn, feedback string) (Report, error) {
	var sb strings.Builder
	if len(history) > 0 {
		sb.WriteString("Conversation history:\n")
		for _, t := range history {
			fmt.Fprintf(&sb, "%s: %s\n", t.Role, t.Content)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "User query: %s\n\nEvidence:\n%s%s", query, renderAnswers(answers), remediationNote(feedback))

	out, err := gateway.WithRetry(ctx, func(ctx context.Context) (string, error) {
		return s.gw.Generate(ctx, gateway.Request{
			Model:  s.cfg.Gateway.Routing.Model(s.cfg.Gateway.Routing.Synthesis),
			System: synthesizerSystem,
			Prompt: sb.String(),
		})
	}, s.cfg.Gateway.MaxRetries, s.cfg.Gateway.RetryBaseDelay)
	if err != nil {
		if isFatal(err) {
			return Report{}, err
		}
		s.logger.Printf("synthesis failed, emitting fallback report: %v", err)
		return Report{Content: "The research completed but the final report could not be composed. Please retry."}, nil
	}

	report := splitReasoning(out)
	report.Content = NormalizeCitations(report.Content, answers)
	return report, nil
}

// splitReasoning separates the <reasoning> preamble from the report body.
// Missing or malformed delimiters leave the whole output as content.
func splitReasoning(out string) Report {
	const openTag, closeTag = "<reasoning>", "</reasoning>"
	start := strings.Index(out, openTag)
	end := strings.Index(out, closeTag)
	if start < 0 || end < start {
		return Report{Content: strings.TrimSpace(out)}
	}
	return Report{
		Thinking: strings.TrimSpace(out[start+len(openTag) : end]),
		Content:  strings.TrimSpace(out[end+len(closeTag):]),
	}
}
