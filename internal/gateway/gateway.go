// Package gateway is the LLM invocation boundary: a stateless generate call
// and stateful multi-turn sessions, plus the retry envelope every caller
// routes through.
package gateway

import (
	"context"
	"errors"
)

// Sentinel errors for the failure taxonomy. ErrTransient marks rate-limit or
// overload failures the retry envelope may back off on; everything else is
// re-raised as-is.
var (
	ErrAborted        = errors.New("gateway: aborted")
	ErrRetryExhausted = errors.New("gateway: retry attempts exhausted")
	ErrTransient      = errors.New("gateway: transient failure")
)

// Blob is an opaque binary payload with its MIME type, used for document
// briefings and image inputs.
type Blob struct {
	MIMEType string
	Data     []byte
}

// ToolKind names a built-in tool a session or call may be granted.
type ToolKind string

const (
	ToolWebSearch  ToolKind = "web_search"
	ToolURLContext ToolKind = "url_context"
)

// Schema is a provider-neutral response schema. When set on a Request the
// provider runs in structured-output mode and the returned text is expected
// to parse as JSON conforming to it (violations are the caller's problem).
type Schema struct {
	Type        string             // "object", "array", "string", "integer", "number", "boolean"
	Description string
	Properties  map[string]*Schema
	Items       *Schema
	Required    []string
	Enum        []string
	Minimum     int
	Maximum     int
}

// Request is one stateless generation call.
type Request struct {
	Model           string
	System          string
	Prompt          string
	Blobs           []Blob
	Schema          *Schema
	Temperature     *float64
	MaxOutputTokens int
	ThinkingBudget  *int
	Tools           []ToolKind
}

// SessionConfig configures a stateful multi-turn session.
type SessionConfig struct {
	Model       string
	System      string
	Temperature *float64
	Tools       []ToolKind
}

// Part is one piece of a session message.
type Part struct {
	Text string
	Blob *Blob
}

// Session owns an append-only turn history that grows by exactly one user
// turn and one model turn per Send. A session must not be sent two messages
// concurrently; callers serialize.
type Session interface {
	Send(ctx context.Context, parts ...Part) (string, error)
}

// Gateway is the LLM boundary contract.
type Gateway interface {
	Generate(ctx context.Context, req Request) (string, error)
	StartSession(ctx context.Context, cfg SessionConfig) (Session, error)
}

// Transient wraps err so the retry envelope treats it as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

type transientError struct{ err error }

func (e *transientError) Error() string   { return e.err.Error() }
func (e *transientError) Unwrap() []error { return []error{ErrTransient, e.err} }
