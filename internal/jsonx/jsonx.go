// Package jsonx extracts JSON from LLM output. Model responses wrap JSON in
// markdown fences, prefix it with prose, or truncate it mid-structure; Parse
// tries progressively more forgiving strategies before giving up.
package jsonx

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrUnparseable is returned when every extraction strategy fails.
var ErrUnparseable = errors.New("jsonx: unparseable output")

// Parse extracts a JSON value from raw model output. Strategies, in order:
// direct unmarshal, fenced code block, outermost {...} span, and truncated
// repair (closing unbalanced strings, brackets and braces).
func Parse(text string) (interface{}, error) {
	candidates := []string{strings.TrimSpace(text)}

	if fenced := stripFence(text); fenced != "" {
		candidates = append(candidates, fenced)
	}
	if span := outermostObject(text); span != "" {
		candidates = append(candidates, span)
	}

	for _, c := range candidates {
		if c == "" {
			continue
		}
		var v interface{}
		if err := json.Unmarshal([]byte(c), &v); err == nil {
			return v, nil
		}
	}

	// Last resort: balance the most promising candidate.
	for _, c := range candidates {
		repaired := repair(c)
		if repaired == "" || repaired == c {
			continue
		}
		var v interface{}
		if err := json.Unmarshal([]byte(repaired), &v); err == nil {
			return v, nil
		}
	}

	return nil, ErrUnparseable
}

// Decode is Parse followed by a re-marshal into v, so callers can target
// typed structs without repeating the extraction dance.
func Decode(text string, v interface{}) error {
	value, err := Parse(text)
	if err != nil {
		return err
	}
	b, err := json.Marshal(value)
	if err != nil {
		return ErrUnparseable
	}
	if err := json.Unmarshal(b, v); err != nil {
		return ErrUnparseable
	}
	return nil
}

// stripFence pulls the body out of the first ```...``` block, tolerating a
// language tag after the opening fence.
func stripFence(text string) string {
	start := strings.Index(text, "```")
	if start < 0 {
		return ""
	}
	body := text[start+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(body[:nl])
		if firstLine == "" || isFenceTag(firstLine) {
			body = body[nl+1:]
		}
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

func isFenceTag(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

// outermostObject returns the first balanced {...} or [...] span, tracking
// string state so braces inside quoted values do not confuse the depth count.
func outermostObject(text string) string {
	start := -1
	depth := 0
	inString := false
	escaped := false
	var open, close byte
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if start >= 0 && inString {
			if escaped {
				escaped = false
			} else if ch == '\\' {
				escaped = true
			} else if ch == '"' {
				inString = false
			}
			continue
		}
		switch {
		case start < 0 && (ch == '{' || ch == '['):
			start = i
			open = ch
			if ch == '{' {
				close = '}'
			} else {
				close = ']'
			}
			depth = 1
		case start >= 0 && ch == '"':
			inString = true
		case start >= 0 && ch == open:
			depth++
		case start >= 0 && ch == close:
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	if start >= 0 {
		return text[start:] // truncated; repair may still salvage it
	}
	return ""
}

// repair appends the closers a truncated JSON fragment is missing: an open
// string gets its quote, then open brackets/braces close in reverse order.
// A trailing comma or dangling key is trimmed first.
func repair(text string) string {
	text = strings.TrimSpace(text)
	if text == "" || (text[0] != '{' && text[0] != '[') {
		return ""
	}
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if inString {
			if escaped {
				escaped = false
			} else if ch == '\\' {
				escaped = true
			} else if ch == '"' {
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == ch {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if !inString && len(stack) == 0 {
		return text
	}
	var b strings.Builder
	b.WriteString(text)
	if inString {
		b.WriteByte('"')
	}
	trimmed := strings.TrimRight(b.String(), " \t\n\r")
	trimmed = strings.TrimRight(trimmed, ",")
	b.Reset()
	b.WriteString(trimmed)
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String()
}
