package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// FailureClass normalizes provider-specific errors so the router can
// decide whether to retry, advance, or fail the whole chain.
type FailureClass string

const (
	// FailTransport covers connection resets, 5xx responses and other
	// errors worth one retry on the same backend.
	FailTransport FailureClass = "transport"
	// FailQuota covers rate limit and quota exhaustion responses.
	FailQuota FailureClass = "quota"
	// FailPolicy covers content-policy rejections of the prompt itself.
	FailPolicy FailureClass = "policy"
	// FailTimeout covers per-attempt deadline expiry.
	FailTimeout FailureClass = "timeout"
)

// GenerateOptions tunes a single generation call.
type GenerateOptions struct {
	Temperature float32
	MaxTokens   int32
	Timeout     time.Duration
}

// Generation is a successful LLM completion plus serving metadata.
type Generation struct {
	Text    string
	Backend string
	Latency time.Duration
}

// Backend is one LLM provider the router can dispatch to.
type Backend interface {
	Name() string
	// Available reports whether the backend is configured. Unavailable
	// backends are skipped without counting as failures.
	Available() bool
	Complete(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// BackendError wraps a provider error with its backend name and
// normalized failure class.
type BackendError struct {
	Backend string
	Class   FailureClass
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s (%s): %v", e.Backend, e.Class, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// classify maps an error onto a FailureClass. Backends that know better
// should wrap their errors in BackendError directly; this is the
// message-sniffing fallback.
func classify(err error) FailureClass {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Class
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "quota"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "429"),
		strings.Contains(msg, "resource exhausted"):
		return FailQuota
	case strings.Contains(msg, "safety"),
		strings.Contains(msg, "blocked"),
		strings.Contains(msg, "content policy"),
		strings.Contains(msg, "content_policy"):
		return FailPolicy
	default:
		return FailTransport
	}
}
