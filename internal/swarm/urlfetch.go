package swarm

import (
	"context"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
)

type readablePage struct {
	Title string
	Text  string
}

const maxBriefingRunes = 20000

// fetchReadable pulls a page and extracts its readable text for URL-expert
// briefing. Long pages are truncated; the expert can still consult the live
// page through its URL tool.
func fetchReadable(ctx context.Context, pageURL string, timeout time.Duration) (readablePage, error) {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if err := ctx.Err(); err != nil {
		return readablePage{}, err
	}
	article, err := readability.FromURL(pageURL, timeout)
	if err != nil {
		return readablePage{}, err
	}
	text := strings.TrimSpace(article.TextContent)
	if runes := []rune(text); len(runes) > maxBriefingRunes {
		text = string(runes[:maxBriefingRunes])
	}
	return readablePage{Title: article.Title, Text: text}, nil
}
