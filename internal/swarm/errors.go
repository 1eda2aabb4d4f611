package swarm

import (
	"encoding/json"
	"errors"

	"github.com/mohammad-safakhou/docser/internal/gateway"
)

// isFatal reports whether a stage failure must unwind the pipeline. Only
// cancellation and retry exhaustion terminate a run abnormally; every other
// failure mode falls back to that stage's in-band default.
func isFatal(err error) bool {
	return errors.Is(err, gateway.ErrAborted) || errors.Is(err, gateway.ErrRetryExhausted)
}

// isAbort distinguishes user-initiated stops from other fatal failures so
// the caller can report "stopped by user" instead of a generic error.
func isAbort(err error) bool {
	return errors.Is(err, gateway.ErrAborted)
}

// jsonMarshal renders a value for inclusion in a prompt.
func jsonMarshal(v interface{}) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
