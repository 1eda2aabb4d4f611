package swarm

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/mohammad-safakhou/docser/config"
	"github.com/mohammad-safakhou/docser/internal/gateway"
)

// Reserved names for the two standing sources.
const (
	WebExpertName = "Web Expert"
	URLExpertName = "URL Expert"
)

const documentExpertSystem = `You are a document analysis expert. You have been given exactly one document and you answer questions using only that document.
Every factual claim in your answers must carry a citation in the form [[Page: <page> | Quote: "<exact substring from the document>"]].
If the document does not contain the answer, say so plainly. Never invent page numbers or quotes.`

const webExpertSystem = `You are a web research expert with live search access. Answer questions with current information from the web.
Cite your sources: after each claim include [[Quote: "<exact quoted text>"]] and name the publishing site in the claim itself. Preserve source names exactly as published.`

const urlExpertSystem = `You are a URL analysis expert. You answer questions about a fixed set of web pages briefed to you at the start of the conversation.
Cite your sources: after each claim include [[Quote: "<exact quoted text>"]] and name the page it came from. Do not speculate about pages you were not briefed on.`

// Registry is the process-wide table of named, independently-stateful expert
// sessions. It is the single writer of the name->session mapping; callers
// look sessions up by name per call and never cache them.
type Registry struct {
	cfg    *config.Config
	gw     gateway.Gateway
	logger *log.Logger
	alert  func(string)

	mu       sync.RWMutex
	sessions map[string]*expertSession
	order    []string
}

// expertSession serializes sends: history mutation inside a session is not
// safe across interleaved sends, so one in-flight message per session.
type expertSession struct {
	name string
	sess gateway.Session
	mu   sync.Mutex
}

// NewRegistry creates an empty registry. alert receives user-visible
// warnings (briefing failures); nil falls back to the logger.
func NewRegistry(cfg *config.Config, gw gateway.Gateway, logger *log.Logger, alert func(string)) *Registry {
	if logger == nil {
		logger = log.New(log.Writer(), "[REGISTRY] ", log.LstdFlags)
	}
	r := &Registry{
		cfg:      cfg,
		gw:       gw,
		logger:   logger,
		sessions: make(map[string]*expertSession),
	}
	if alert == nil {
		alert = func(msg string) { r.logger.Printf("alert: %s", msg) }
	}
	r.alert = alert
	return r
}

// EnsureStandingExperts idempotently creates the two standing sessions. The
// URL expert is briefed with the URL list present at creation time only;
// adding URLs after the session exists does not re-brief it.
func (r *Registry) EnsureStandingExperts(ctx context.Context, urls []string) error {
	if err := r.ensureWebExpert(ctx); err != nil {
		return err
	}
	return r.ensureURLExpert(ctx, urls)
}

func (r *Registry) ensureWebExpert(ctx context.Context) error {
	if r.has(WebExpertName) {
		return nil
	}
	sess, err := r.gw.StartSession(ctx, gateway.SessionConfig{
		Model:  r.cfg.Gateway.Routing.Model(r.cfg.Gateway.Routing.Expert),
		System: webExpertSystem,
		Tools:  []gateway.ToolKind{gateway.ToolWebSearch},
	})
	if err != nil {
		return fmt.Errorf("create web expert: %w", err)
	}
	r.add(WebExpertName, sess)
	return nil
}

func (r *Registry) ensureURLExpert(ctx context.Context, urls []string) error {
	if r.has(URLExpertName) {
		return nil
	}
	sess, err := r.gw.StartSession(ctx, gateway.SessionConfig{
		Model:  r.cfg.Gateway.Routing.Model(r.cfg.Gateway.Routing.Expert),
		System: urlExpertSystem,
		Tools:  []gateway.ToolKind{gateway.ToolURLContext},
	})
	if err != nil {
		return fmt.Errorf("create url expert: %w", err)
	}
	r.add(URLExpertName, sess)
	if len(urls) == 0 {
		return nil
	}
	briefing := r.renderURLBriefing(ctx, urls)
	if _, err := r.send(ctx, URLExpertName, gateway.Part{Text: briefing}); err != nil {
		r.alert(fmt.Sprintf("URL Expert briefing failed: %v", err))
	}
	return nil
}

// renderURLBriefing lists the briefing URLs and, where the pages are
// reachable, inlines their readable text so the expert's world is populated
// at spawn. Fetch failures degrade to the bare URL.
func (r *Registry) renderURLBriefing(ctx context.Context, urls []string) string {
	var b strings.Builder
	b.WriteString("You are briefed on the following pages. Confirm readiness.\n")
	for _, u := range urls {
		b.WriteString("\nURL: " + u + "\n")
		if page, err := fetchReadable(ctx, u, r.cfg.Swarm.URLFetchTimeout); err == nil {
			b.WriteString("Title: " + page.Title + "\n")
			b.WriteString(page.Text + "\n")
		} else {
			r.logger.Printf("prefetch %s failed: %v", u, err)
		}
	}
	return b.String()
}

// BriefDocumentExpert creates one session for the document and sends the
// initial confirm-readiness turn through the retry envelope. Briefing an
// existing name is a no-op. A failure surfaces as a user-visible alert and
// an error, but callers tolerate it: other documents still get briefed.
func (r *Registry) BriefDocumentExpert(ctx context.Context, doc Document) error {
	if doc.Name == "" {
		return fmt.Errorf("document name required")
	}
	if r.has(doc.Name) {
		return nil
	}
	sess, err := r.gw.StartSession(ctx, gateway.SessionConfig{
		Model:  r.cfg.Gateway.Routing.Model(r.cfg.Gateway.Routing.Expert),
		System: documentExpertSystem,
	})
	if err != nil {
		r.alert(fmt.Sprintf("expert for %q could not be created: %v", doc.Name, err))
		return fmt.Errorf("create expert %q: %w", doc.Name, err)
	}
	r.add(doc.Name, sess)

	brief := fmt.Sprintf("This document is %q. Read it and confirm you are ready to answer questions about it.", doc.Name)
	_, err = r.send(ctx, doc.Name,
		gateway.Part{Blob: &gateway.Blob{MIMEType: doc.MIMEType, Data: doc.Data}},
		gateway.Part{Text: brief},
	)
	if err != nil {
		r.Remove(doc.Name)
		r.alert(fmt.Sprintf("expert for %q failed to brief: %v", doc.Name, err))
		return fmt.Errorf("brief expert %q: %w", doc.Name, err)
	}
	r.logger.Printf("briefed expert %q", doc.Name)
	return nil
}

// Ask sends one question to the named expert, serialized against any other
// in-flight message to the same session and retried on transient failure.
func (r *Registry) Ask(ctx context.Context, name, question string) (string, error) {
	return r.send(ctx, name, gateway.Part{Text: question})
}

func (r *Registry) send(ctx context.Context, name string, parts ...gateway.Part) (string, error) {
	r.mu.RLock()
	es, ok := r.sessions[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("expert %q not found", name)
	}
	es.mu.Lock()
	defer es.mu.Unlock()
	return gateway.WithRetry(ctx, func(ctx context.Context) (string, error) {
		return es.sess.Send(ctx, parts...)
	}, r.cfg.Gateway.MaxRetries, r.cfg.Gateway.RetryBaseDelay)
}

// List returns the active expert names in creation order, without duplicates.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Has reports whether an expert is active.
func (r *Registry) Has(name string) bool { return r.has(name) }

// Remove withdraws an expert and its session.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[name]; !ok {
		return
	}
	delete(r.sessions, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *Registry) has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[name]
	return ok
}

func (r *Registry) add(name string, sess gateway.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[name]; ok {
		return
	}
	r.sessions[name] = &expertSession{name: name, sess: sess}
	r.order = append(r.order, name)
}
