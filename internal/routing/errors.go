package routing

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an error by semantic meaning rather than by
// transport, so the failover executor can decide retry/fail-over policy
// without caring whether the underlying error came from an HTTP status code
// or a CLI exit message.
type ErrorKind string

const (
	// ErrAuth: 401/403, "not authenticated". Non-retryable; fail over.
	ErrAuth ErrorKind = "auth"
	// ErrPayment: 402, "credits exhausted". Non-retryable; fail over + notify.
	ErrPayment ErrorKind = "payment"
	// ErrRateLimit: 429, "rate limit". Retryable; notify.
	ErrRateLimit ErrorKind = "rate_limit"
	// ErrTransport: network errors, 5xx, timeouts. Retryable.
	ErrTransport ErrorKind = "transport"
	// ErrEmptyOrMeta: empty content or meta-talk without a tool call. Soft
	// failure; fail over; does not consume retry budget.
	ErrEmptyOrMeta ErrorKind = "empty_or_meta"
	// ErrBadModelFormat: model name violates the provider's naming rule.
	// Coerced to auto-select, not surfaced as a failure.
	ErrBadModelFormat ErrorKind = "bad_model_format"
	// ErrFatalInput: missing required parameter, unknown provider, empty
	// chain. Surfaced immediately, no failover attempted.
	ErrFatalInput ErrorKind = "fatal_input"
)

// Retryable reports whether an error of this kind should consume the
// shared retry budget when it fails over to the next chain entry.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrRateLimit, ErrTransport:
		return true
	default:
		return false
	}
}

// Soft reports whether an error of this kind is a soft failure: it moves to
// the next chain entry without counting against the retry budget and
// without marking the provider unhealthy.
func (k ErrorKind) Soft() bool {
	return k == ErrEmptyOrMeta
}

// Notify reports whether total chain exhaustion on this error kind should
// raise a user-visible notification (payment and rate-limit problems only;
// transient network errors stay silent).
func (k ErrorKind) Notify() bool {
	switch k {
	case ErrPayment, ErrRateLimit:
		return true
	default:
		return false
	}
}

// ClassifiedError wraps an underlying error with the ErrorKind the failover
// executor uses to decide policy, and the provider that produced it.
type ClassifiedError struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

func (e *ClassifiedError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// NewClassifiedError wraps err under kind, attributed to provider.
func NewClassifiedError(kind ErrorKind, provider string, err error) *ClassifiedError {
	return &ClassifiedError{Kind: kind, Provider: provider, Err: err}
}

// KindOf extracts the ErrorKind from err if it is (or wraps) a
// *ClassifiedError, defaulting to ErrTransport for anything unclassified —
// an unrecognized error is treated as transient rather than fatal so a
// single unexpected error type doesn't stall the whole chain.
func KindOf(err error) ErrorKind {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ErrTransport
}

// ErrEmptyChain is returned by the chain resolver when no provider is
// available for a tier.
var ErrEmptyChain = errors.New("no providers available for tier")

// ErrUnknownProvider is returned when a requested provider ID has no
// registered profile or adapter.
var ErrUnknownProvider = errors.New("unknown provider")
