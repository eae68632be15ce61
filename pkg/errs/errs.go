// Package errs defines the closed set of error kinds the core
// distinguishes between when deciding whether to retry, degrade,
// surface to the caller, or abort a turn.
package errs

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Wrap them with fmt.Errorf("...: %w", ErrX) and
// unwrap with errors.Is/errors.As at the boundary that needs to branch
// on kind (tool dispatch, the orchestrator's step loop, the gateway's
// SSE error event).
var (
	// ErrValidation marks a malformed or out-of-policy request. Never retried.
	ErrValidation = errors.New("validation error")

	// ErrAuthorization marks a principal attempting an operation or
	// collection access it is not entitled to. Never retried.
	ErrAuthorization = errors.New("authorization error")

	// ErrRetrievalTransient marks a recoverable retrieval-pipeline
	// failure (vector store timeout, embedding service hiccup). The
	// retrieval pipeline may retry or degrade to fewer collections.
	ErrRetrievalTransient = errors.New("retrieval transient error")

	// ErrTool marks a tool invocation failure. Fed back into the ReAct
	// loop as an Observation, not surfaced directly to the caller.
	ErrTool = errors.New("tool error")

	// ErrModelTransient marks a recoverable LLM provider failure
	// (rate limit, timeout, 5xx). The gateway advances the fallback
	// cascade.
	ErrModelTransient = errors.New("model transient error")

	// ErrModelTerminal marks an unrecoverable LLM provider failure
	// (auth failure, invalid request). The cascade aborts.
	ErrModelTerminal = errors.New("model terminal error")

	// ErrMemory marks a conversation-memory read/write failure.
	ErrMemory = errors.New("memory error")

	// ErrCancelled marks caller-initiated cancellation (client
	// disconnect, context deadline). Never logged as a failure.
	ErrCancelled = errors.New("cancelled")
)

// Wrap annotates err with a message while preserving errors.Is matching
// against kind.
func Wrap(kind error, msg string, err error) error {
	if err == nil {
		return fmt.Errorf("%s: %w", msg, kind)
	}
	return fmt.Errorf("%s: %w: %w", msg, kind, err)
}

// Is reports whether err is (or wraps) one of the given kinds.
func Is(err error, kinds ...error) bool {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}
