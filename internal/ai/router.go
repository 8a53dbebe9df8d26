package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"resume-ai-backend/internal/apperr"
	"resume-ai-backend/internal/logger"
)

// RouterConfig carries the fallback chain tuning.
type RouterConfig struct {
	// Order is the default backend preference when the caller has none.
	Order []string
	// DefaultTimeout bounds each individual attempt.
	DefaultTimeout time.Duration
	// RetryBackoff is the pause before the single transient retry.
	RetryBackoff time.Duration
	// AdvanceOnPolicyError lets the chain move past content-policy
	// rejections instead of failing the whole call.
	AdvanceOnPolicyError bool
}

// Router walks an ordered chain of LLM backends until one produces a
// completion. Transport errors earn one retry on the same backend;
// quota and timeout errors advance immediately; policy rejections fail
// the call unless configured otherwise.
type Router struct {
	backends map[string]Backend
	cfg      RouterConfig
}

// AllBackendsFailedError reports why every attempted backend failed,
// keyed by backend name.
type AllBackendsFailedError struct {
	Reasons map[string]string
}

func (e *AllBackendsFailedError) Error() string {
	parts := make([]string, 0, len(e.Reasons))
	for name, reason := range e.Reasons {
		parts = append(parts, fmt.Sprintf("%s: %s", name, reason))
	}
	sort.Strings(parts)
	return "all backends failed: " + strings.Join(parts, "; ")
}

func NewRouter(backends []Backend, cfg RouterConfig) *Router {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	byName := make(map[string]Backend, len(backends))
	for _, b := range backends {
		byName[b.Name()] = b
	}
	if len(cfg.Order) == 0 {
		for _, b := range backends {
			cfg.Order = append(cfg.Order, b.Name())
		}
	}
	return &Router{backends: byName, cfg: cfg}
}

// BackendStatus describes one registered backend for the settings API.
type BackendStatus struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
}

// Backends lists registered backends in the default chain order.
func (r *Router) Backends() []BackendStatus {
	out := make([]BackendStatus, 0, len(r.cfg.Order))
	for _, name := range r.cfg.Order {
		b, ok := r.backends[name]
		if !ok {
			continue
		}
		out = append(out, BackendStatus{Name: name, Available: b.Available()})
	}
	return out
}

// Generate attempts the preferred backends in order and returns the
// first completion. An empty prefs slice uses the configured default
// order. Caller cancellation abandons the chain immediately.
func (r *Router) Generate(ctx context.Context, prompt string, prefs []string, opts GenerateOptions) (*Generation, error) {
	tracer := otel.Tracer("llm-router")
	ctx, span := tracer.Start(ctx, "router.generate")
	defer span.End()

	chain := prefs
	if len(chain) == 0 {
		chain = r.cfg.Order
	}
	span.SetAttributes(attribute.StringSlice("router.chain", chain))

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = r.cfg.DefaultTimeout
	}

	reasons := make(map[string]string, len(chain))
	for _, name := range chain {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		backend, ok := r.backends[name]
		if !ok {
			reasons[name] = "unknown backend"
			continue
		}
		if !backend.Available() {
			reasons[name] = "not configured"
			continue
		}

		gen, err := r.attempt(ctx, backend, prompt, opts, timeout)
		if err == nil {
			span.SetAttributes(
				attribute.String("router.backend", gen.Backend),
				attribute.Int64("router.latency_ms", gen.Latency.Milliseconds()),
			)
			return gen, nil
		}

		// Caller gave up; the chain stops here.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		class := classify(err)
		logger.Warn("LLM backend attempt failed", "backend", name, "class", string(class), "error", err)
		reasons[name] = fmt.Sprintf("%s: %v", class, err)

		if class == FailPolicy && !r.cfg.AdvanceOnPolicyError {
			span.SetAttributes(attribute.Bool("router.policy_rejected", true))
			return nil, apperr.Wrap(apperr.KindValidation, "prompt rejected by content policy", err)
		}
	}

	span.SetAttributes(attribute.Bool("router.exhausted", true))
	failure := &AllBackendsFailedError{Reasons: reasons}
	return nil, apperr.Wrap(apperr.KindAllBackendsFailed, "no backend could serve the request", failure)
}

// attempt runs one backend with a per-attempt timeout, retrying once on
// transport errors.
func (r *Router) attempt(ctx context.Context, backend Backend, prompt string, opts GenerateOptions, timeout time.Duration) (*Generation, error) {
	run := func() (*Generation, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		start := time.Now()
		text, err := backend.Complete(attemptCtx, prompt, opts)
		if err != nil {
			return nil, err
		}
		return &Generation{Text: text, Backend: backend.Name(), Latency: time.Since(start)}, nil
	}

	gen, err := run()
	if err == nil {
		return gen, nil
	}
	if classify(err) != FailTransport || ctx.Err() != nil {
		return nil, err
	}

	if r.cfg.RetryBackoff > 0 {
		select {
		case <-time.After(r.cfg.RetryBackoff):
		case <-ctx.Done():
			return nil, err
		}
	}
	logger.Debug("Retrying backend after transient error", "backend", backend.Name())
	return run()
}
