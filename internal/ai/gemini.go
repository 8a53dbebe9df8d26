package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"

	"resume-ai-backend/internal/logger"
)

// GeminiBackend serves completions through the Gemini API behind a
// circuit breaker and a client-side rate limiter sized for the account
// tier.
type GeminiBackend struct {
	apiKey      string
	model       string
	client      *genai.Client
	breaker     *gobreaker.CircuitBreaker
	rateLimiter *rate.Limiter
}

type rateLimits struct {
	RPM int
	TPM int
	RPD int
}

func tierLimits(tier string) rateLimits {
	switch tier {
	case "free":
		return rateLimits{RPM: 10, TPM: 250000, RPD: 250}
	case "tier1":
		return rateLimits{RPM: 1000, TPM: 1000000, RPD: 10000}
	case "tier2":
		return rateLimits{RPM: 2000, TPM: 4000000, RPD: 50000}
	default:
		return rateLimits{RPM: 10, TPM: 250000, RPD: 250}
	}
}

func NewGeminiBackend(apiKey, model, tier string) (*GeminiBackend, error) {
	if apiKey == "" {
		return &GeminiBackend{model: model}, nil
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	limits := tierLimits(tier)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	// RPM limit with some buffer
	burst := limits.RPM / 10
	if burst < 1 {
		burst = 1
	}
	rateLimiter := rate.NewLimiter(rate.Limit(float64(limits.RPM)*0.9/60.0), burst)

	return &GeminiBackend{
		apiKey:      apiKey,
		model:       model,
		client:      client,
		breaker:     breaker,
		rateLimiter: rateLimiter,
	}, nil
}

func (g *GeminiBackend) Name() string { return "gemini" }

func (g *GeminiBackend) Available() bool { return g.client != nil }

func (g *GeminiBackend) Complete(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	if g.client == nil {
		return "", &BackendError{Backend: g.Name(), Class: FailTransport, Err: errors.New("gemini not configured")}
	}

	tracer := otel.Tracer("gemini-backend")
	ctx, span := tracer.Start(ctx, "gemini.complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("gemini.model", g.model),
		attribute.Int("gemini.estimated_tokens", len(prompt)/4),
	)

	if err := g.rateLimiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return "", g.wrap(err)
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		model := g.client.GenerativeModel(g.model)
		if opts.Temperature > 0 {
			model.SetTemperature(opts.Temperature)
		}
		if opts.MaxTokens > 0 {
			model.SetMaxOutputTokens(opts.MaxTokens)
		}

		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			span.SetAttributes(attribute.Bool("gemini.circuit_breaker_open", true))
			return "", &BackendError{Backend: g.Name(), Class: FailTransport, Err: err}
		}
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return "", g.wrap(err)
	}

	resp := result.(*genai.GenerateContentResponse)

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		span.SetAttributes(attribute.String("gemini.block_reason", resp.PromptFeedback.BlockReason.String()))
		return "", &BackendError{
			Backend: g.Name(),
			Class:   FailPolicy,
			Err:     fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason),
		}
	}

	text := collectText(resp)
	if text == "" {
		if reason := safetyFinish(resp); reason != "" {
			return "", &BackendError{
				Backend: g.Name(),
				Class:   FailPolicy,
				Err:     fmt.Errorf("generation stopped: %s", reason),
			}
		}
		return "", &BackendError{Backend: g.Name(), Class: FailTransport, Err: errors.New("empty response")}
	}

	if resp.UsageMetadata != nil {
		span.SetAttributes(attribute.Int("gemini.actual_tokens", int(resp.UsageMetadata.TotalTokenCount)))
	}
	return text, nil
}

func (g *GeminiBackend) wrap(err error) error {
	return &BackendError{Backend: g.Name(), Class: classify(err), Err: err}
}

func collectText(resp *genai.GenerateContentResponse) string {
	out := ""
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				out += string(text)
			}
		}
	}
	return out
}

func safetyFinish(resp *genai.GenerateContentResponse) string {
	for _, candidate := range resp.Candidates {
		if candidate.FinishReason == genai.FinishReasonSafety {
			return candidate.FinishReason.String()
		}
	}
	return ""
}

func (g *GeminiBackend) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
