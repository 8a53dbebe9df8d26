package ai

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"resume-ai-backend/internal/apperr"
)

type scriptedBackend struct {
	name      string
	available bool
	text      string
	errs      []error // consumed per call; nil entry means success

	mu    sync.Mutex
	calls int
	block chan struct{}
}

func (b *scriptedBackend) Name() string    { return b.name }
func (b *scriptedBackend) Available() bool { return b.available }

func (b *scriptedBackend) Complete(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	b.mu.Lock()
	call := b.calls
	b.calls++
	block := b.block
	b.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if call < len(b.errs) && b.errs[call] != nil {
		return "", b.errs[call]
	}
	return b.text, nil
}

func (b *scriptedBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func transportErr(name string) error {
	return &BackendError{Backend: name, Class: FailTransport, Err: errors.New("connection reset")}
}

func quotaErr(name string) error {
	return &BackendError{Backend: name, Class: FailQuota, Err: errors.New("quota exceeded")}
}

func policyErr(name string) error {
	return &BackendError{Backend: name, Class: FailPolicy, Err: errors.New("prompt blocked")}
}

func newTestRouter(cfg RouterConfig, backends ...Backend) *Router {
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = time.Second
	}
	return NewRouter(backends, cfg)
}

func TestGenerateWalksFallbackChain(t *testing.T) {
	// First backend fails twice (initial + retry), second is not
	// configured, third answers.
	first := &scriptedBackend{name: "gemini", available: true, errs: []error{transportErr("gemini"), transportErr("gemini")}}
	second := &scriptedBackend{name: "openai", available: false}
	third := &scriptedBackend{name: "local", available: true, text: "answer from local"}

	r := newTestRouter(RouterConfig{Order: []string{"gemini", "openai", "local"}}, first, second, third)

	gen, err := r.Generate(context.Background(), "hello", nil, GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if gen.Backend != "local" || gen.Text != "answer from local" {
		t.Errorf("unexpected generation: %+v", gen)
	}
	if got := first.callCount(); got != 2 {
		t.Errorf("transport failure should earn exactly one retry, got %d calls", got)
	}
	if got := second.callCount(); got != 0 {
		t.Errorf("unavailable backend must be skipped, got %d calls", got)
	}
}

func TestGenerateRecordsServingBackendAndLatency(t *testing.T) {
	b := &scriptedBackend{name: "gemini", available: true, text: "hi"}
	r := newTestRouter(RouterConfig{Order: []string{"gemini"}}, b)

	gen, err := r.Generate(context.Background(), "hello", nil, GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if gen.Backend != "gemini" {
		t.Errorf("Backend = %q, want gemini", gen.Backend)
	}
	if gen.Latency < 0 {
		t.Errorf("negative latency: %v", gen.Latency)
	}
}

func TestGenerateQuotaErrorAdvancesWithoutRetry(t *testing.T) {
	first := &scriptedBackend{name: "gemini", available: true, errs: []error{quotaErr("gemini")}}
	second := &scriptedBackend{name: "openai", available: true, text: "served"}
	r := newTestRouter(RouterConfig{Order: []string{"gemini", "openai"}}, first, second)

	gen, err := r.Generate(context.Background(), "hello", nil, GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if gen.Backend != "openai" {
		t.Errorf("expected fallback to openai, got %s", gen.Backend)
	}
	if got := first.callCount(); got != 1 {
		t.Errorf("quota errors must not be retried, got %d calls", got)
	}
}

func TestGeneratePolicyRejectionFailsFast(t *testing.T) {
	first := &scriptedBackend{name: "gemini", available: true, errs: []error{policyErr("gemini")}}
	second := &scriptedBackend{name: "openai", available: true, text: "should not serve"}
	r := newTestRouter(RouterConfig{Order: []string{"gemini", "openai"}}, first, second)

	_, err := r.Generate(context.Background(), "hello", nil, GenerateOptions{})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation_error for policy rejection, got %v", err)
	}
	if got := second.callCount(); got != 0 {
		t.Errorf("policy rejection must not advance the chain, got %d calls", got)
	}
}

func TestGeneratePolicyRejectionAdvancesWhenConfigured(t *testing.T) {
	first := &scriptedBackend{name: "gemini", available: true, errs: []error{policyErr("gemini")}}
	second := &scriptedBackend{name: "openai", available: true, text: "served anyway"}
	r := newTestRouter(RouterConfig{Order: []string{"gemini", "openai"}, AdvanceOnPolicyError: true}, first, second)

	gen, err := r.Generate(context.Background(), "hello", nil, GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if gen.Backend != "openai" {
		t.Errorf("expected chain to advance past policy error, got %s", gen.Backend)
	}
}

func TestGenerateAllBackendsFailedCarriesReasons(t *testing.T) {
	first := &scriptedBackend{name: "gemini", available: true, errs: []error{quotaErr("gemini")}}
	second := &scriptedBackend{name: "openai", available: false}
	r := newTestRouter(RouterConfig{Order: []string{"gemini", "openai", "ghost"}}, first, second)

	_, err := r.Generate(context.Background(), "hello", nil, GenerateOptions{})
	if !apperr.IsKind(err, apperr.KindAllBackendsFailed) {
		t.Fatalf("expected all_backends_failed, got %v", err)
	}

	var failure *AllBackendsFailedError
	if !errors.As(err, &failure) {
		t.Fatalf("expected AllBackendsFailedError in chain, got %v", err)
	}
	if len(failure.Reasons) != 3 {
		t.Errorf("expected 3 per-backend reasons, got %v", failure.Reasons)
	}
	if !strings.Contains(failure.Reasons["gemini"], "quota") {
		t.Errorf("gemini reason should mention quota: %q", failure.Reasons["gemini"])
	}
	if failure.Reasons["openai"] != "not configured" {
		t.Errorf("openai reason = %q", failure.Reasons["openai"])
	}
	if failure.Reasons["ghost"] != "unknown backend" {
		t.Errorf("ghost reason = %q", failure.Reasons["ghost"])
	}
}

func TestGenerateCallerCancellationAbandonsChain(t *testing.T) {
	first := &scriptedBackend{name: "gemini", available: true, block: make(chan struct{})}
	second := &scriptedBackend{name: "openai", available: true, text: "never"}
	r := newTestRouter(RouterConfig{Order: []string{"gemini", "openai"}}, first, second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := r.Generate(ctx, "hello", nil, GenerateOptions{})
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Generate did not return after cancellation")
	}
	if got := second.callCount(); got != 0 {
		t.Errorf("cancellation must abandon the chain, got %d fallback calls", got)
	}
}

func TestGeneratePreferenceOverridesDefaultOrder(t *testing.T) {
	first := &scriptedBackend{name: "gemini", available: true, text: "from gemini"}
	second := &scriptedBackend{name: "openai", available: true, text: "from openai"}
	r := newTestRouter(RouterConfig{Order: []string{"gemini", "openai"}}, first, second)

	gen, err := r.Generate(context.Background(), "hello", []string{"openai"}, GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if gen.Backend != "openai" {
		t.Errorf("preference ignored, served by %s", gen.Backend)
	}
	if got := first.callCount(); got != 0 {
		t.Errorf("default-order backend called despite explicit preference: %d", got)
	}
}
