package ai

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// OpenAIBackend serves completions through the OpenAI chat API. It acts
// as the fallback behind Gemini in the default chain.
type OpenAIBackend struct {
	configured bool
	model      string
	client     openai.Client
}

func NewOpenAIBackend(apiKey, model string) *OpenAIBackend {
	if apiKey == "" {
		return &OpenAIBackend{model: model}
	}
	return &OpenAIBackend{
		configured: true,
		model:      model,
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithMaxRetries(0), // the router owns retry policy
		),
	}
}

func (o *OpenAIBackend) Name() string { return "openai" }

func (o *OpenAIBackend) Available() bool { return o.configured }

func (o *OpenAIBackend) Complete(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	if !o.configured {
		return "", &BackendError{Backend: o.Name(), Class: FailTransport, Err: errors.New("openai not configured")}
	}

	tracer := otel.Tracer("openai-backend")
	ctx, span := tracer.Start(ctx, "openai.complete")
	defer span.End()
	span.SetAttributes(attribute.String("openai.model", o.model))

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	}
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(float64(opts.Temperature))
	}
	if opts.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(opts.MaxTokens))
	}

	start := time.Now()
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		span.SetAttributes(attribute.Bool("openai.error", true))
		return "", o.wrap(err)
	}
	span.SetAttributes(attribute.Int64("openai.latency_ms", time.Since(start).Milliseconds()))

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", &BackendError{Backend: o.Name(), Class: FailTransport, Err: errors.New("empty response")}
	}
	if resp.Choices[0].FinishReason == "content_filter" {
		return "", &BackendError{Backend: o.Name(), Class: FailPolicy, Err: errors.New("completion stopped by content filter")}
	}
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAIBackend) wrap(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		class := FailTransport
		switch {
		case apierr.StatusCode == http.StatusTooManyRequests:
			class = FailQuota
		case apierr.StatusCode == http.StatusBadRequest && apierr.Code == "content_policy_violation":
			class = FailPolicy
		}
		return &BackendError{Backend: o.Name(), Class: class, Err: err}
	}
	return &BackendError{Backend: o.Name(), Class: classify(err), Err: err}
}
