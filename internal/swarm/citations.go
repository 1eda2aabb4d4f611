package swarm

import (
	"fmt"
	"regexp"
	"strings"
)

// Citation is the inline claim-provenance annotation consumed by rendering.
// Source identifiers are preserved verbatim from whichever expert produced
// them; the synthesizer never renames an externally-sourced citation to its
// own label.
type Citation struct {
	Source string
	Page   string
	Quote  string
	Logic  string
}

// Tag renders the citation in the inline tag form.
func (c Citation) Tag() string {
	var b strings.Builder
	b.WriteString(`<cite source="`)
	b.WriteString(escapeAttr(c.Source))
	b.WriteString(`"`)
	if c.Page != "" {
		fmt.Fprintf(&b, ` page="%s"`, escapeAttr(c.Page))
	}
	fmt.Fprintf(&b, ` quote="%s"`, escapeAttr(c.Quote))
	if c.Logic != "" {
		fmt.Fprintf(&b, ` logic="%s"`, escapeAttr(c.Logic))
	}
	b.WriteString(`/>`)
	return b.String()
}

// bracketRe matches the [[Page: X | Quote: "..."]] form document experts use
// internally. The page segment is optional.
var bracketRe = regexp.MustCompile(`\[\[\s*(?:Page:\s*([^|\]]+?)\s*\|\s*)?Quote:\s*"((?:[^"\\]|\\.)*)"\s*\]\]`)

// citeAttrRe pulls a single attribute out of a rendered tag.
func citeAttr(tag, name string) string {
	re := regexp.MustCompile(name + `="((?:[^"\\]|\\.)*)"`)
	m := re.FindStringSubmatch(tag)
	if m == nil {
		return ""
	}
	return unescapeAttr(m[1])
}

// NormalizeCitations rewrites any bracket-form citations left in a
// synthesized body into the tag form, attributing each to the expert whose
// accumulated answer contains the quoted substring. Quotes that match no
// expert keep a "report" source rather than being dropped.
func NormalizeCitations(body string, answers []ExpertAnswer) string {
	return bracketRe.ReplaceAllStringFunc(body, func(match string) string {
		m := bracketRe.FindStringSubmatch(match)
		page := strings.TrimSpace(m[1])
		quote := m[2]
		source := "report"
		for _, a := range answers {
			if strings.Contains(a.Answer, quote) {
				source = a.Expert
				break
			}
		}
		return Citation{Source: source, Page: page, Quote: quote}.Tag()
	})
}

func escapeAttr(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	return strings.ReplaceAll(s, `"`, "&quot;")
}

func unescapeAttr(s string) string {
	s = strings.ReplaceAll(s, "&quot;", `"`)
	return strings.ReplaceAll(s, "&amp;", "&")
}
