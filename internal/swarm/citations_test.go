package swarm

import (
	"strings"
	"testing"
)

func TestNormalizeCitationsAttributesToOriginatingExpert(t *testing.T) {
	answers := []ExpertAnswer{
		{Expert: "contract.pdf", Answer: `The term runs for [[Page: 12 | Quote: "five (5) years from the effective date"]].`},
		{Expert: "Web Expert", Answer: `Industry norm is [[Quote: "three year terms"]] per trade press.`},
	}
	body := `The contract lasts [[Page: 12 | Quote: "five (5) years from the effective date"]] which exceeds the norm of [[Quote: "three year terms"]].`

	out := NormalizeCitations(body, answers)
	if !strings.Contains(out, `<cite source="contract.pdf" page="12" quote="five (5) years from the effective date"/>`) {
		t.Fatalf("document citation not normalized: %s", out)
	}
	if !strings.Contains(out, `<cite source="Web Expert" quote="three year terms"/>`) {
		t.Fatalf("web citation must keep its originating expert: %s", out)
	}
	if strings.Contains(out, "[[") {
		t.Fatalf("bracket forms must all be rewritten: %s", out)
	}
}

func TestNormalizeCitationsUnmatchedQuoteFallsBack(t *testing.T) {
	out := NormalizeCitations(`Claim [[Quote: "nobody said this"]].`, []ExpertAnswer{
		{Expert: "a.pdf", Answer: "something else entirely"},
	})
	if !strings.Contains(out, `<cite source="report" quote="nobody said this"/>`) {
		t.Fatalf("unmatched quote must fall back to the report source: %s", out)
	}
}

func TestCitationTagEscapesAttributes(t *testing.T) {
	tag := Citation{Source: `R&D "notes"`, Quote: `uses "quotes" & ampersands`}.Tag()
	if strings.Count(tag, `"`) != 4 {
		t.Fatalf("unescaped quotes leak into attributes: %s", tag)
	}
	if citeAttr(tag, "source") != `R&D "notes"` {
		t.Fatalf("source round-trip failed: %s", tag)
	}
	if citeAttr(tag, "quote") != `uses "quotes" & ampersands` {
		t.Fatalf("quote round-trip failed: %s", tag)
	}
}

func TestAugmentQueryOmitsUnanswered(t *testing.T) {
	out := AugmentQuery("base query", []ClarifyAnswer{
		{Question: "Which year?", Answer: "2025"},
		{Question: "Which region?", Answer: ""},
	})
	if !strings.Contains(out, "Question: Which year?\nAnswer: 2025") {
		t.Fatalf("answered question missing: %q", out)
	}
	if strings.Contains(out, "Which region?") {
		t.Fatalf("unanswered question must be omitted: %q", out)
	}
}
