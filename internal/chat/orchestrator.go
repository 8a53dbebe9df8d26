package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"resume-ai-backend/internal/ai"
	"resume-ai-backend/internal/apperr"
	"resume-ai-backend/internal/logger"
	"resume-ai-backend/internal/rag"
)

// Mode selects the answer style and its prompt template.
type Mode string

const (
	ModeChat      Mode = "chat"
	ModeEmail     Mode = "email"
	ModeTailor    Mode = "tailor"
	ModeInterview Mode = "interview"
)

// Request is a validated chat turn from the API layer.
type Request struct {
	Message         string
	Mode            Mode
	JobDescription  string
	SessionID       string
	UseVerification bool
	Backends        []string // preferred backend order, empty uses default
}

// Response is the orchestrator's answer with its supporting metadata.
type Response struct {
	SessionID      string
	Text           string
	Mode           Mode
	Citations      []rag.Citation
	GroundingScore *float64
	Backend        string
	ProcessingTime time.Duration
}

// Searcher is the retrieval dependency, satisfied by rag.PassageIndex.
type Searcher interface {
	Search(ctx context.Context, query string, k int, mode rag.SearchMode) ([]rag.RetrievalHit, error)
}

// Generator is the LLM dependency, satisfied by ai.Router.
type Generator interface {
	Generate(ctx context.Context, prompt string, prefs []string, opts ai.GenerateOptions) (*ai.Generation, error)
}

// Config carries the orchestrator knobs.
type Config struct {
	TopK         int
	MinRelevance float64
	GenOpts      ai.GenerateOptions
}

// Orchestrator runs one chat turn: validate, retrieve, generate, cite,
// and optionally verify grounding.
type Orchestrator struct {
	index  Searcher
	gen    Generator
	scorer rag.Scorer
	cfg    Config
}

func NewOrchestrator(index Searcher, gen Generator, scorer rag.Scorer, cfg Config) *Orchestrator {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	return &Orchestrator{index: index, gen: gen, scorer: scorer, cfg: cfg}
}

const maxSnippetLen = 200

var systemPrompts = map[Mode]string{
	ModeChat: "You are an assistant answering questions about a candidate using only the resume excerpts below. " +
		"If the excerpts do not contain the answer, say so instead of guessing.",
	ModeEmail: "You draft concise, professional job application emails on behalf of the candidate. " +
		"Ground every claim about the candidate in the resume excerpts below.",
	ModeTailor: "You advise the candidate on tailoring their resume to a specific job. " +
		"Base all suggestions on the resume excerpts below and the job description.",
	ModeInterview: "You help the candidate prepare for interviews. " +
		"Answers about the candidate's background must come from the resume excerpts below.",
}

// Chat runs the full pipeline for one turn.
func (o *Orchestrator) Chat(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	tracer := otel.Tracer("chat-orchestrator")
	ctx, span := tracer.Start(ctx, "chat.turn")
	defer span.End()

	if err := validate(req); err != nil {
		return nil, err
	}
	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}
	span.SetAttributes(
		attribute.String("chat.mode", string(req.Mode)),
		attribute.String("chat.session_id", req.SessionID),
		attribute.Bool("chat.verification", req.UseVerification),
	)

	query := buildQuery(req)
	hits, err := o.index.Search(ctx, query, o.cfg.TopK, rag.ModeHybrid)
	if err != nil {
		return nil, err
	}

	prompt := buildPrompt(req, hits)
	gen, err := o.gen.Generate(ctx, prompt, req.Backends, o.cfg.GenOpts)
	if err != nil {
		return nil, err
	}

	citations := o.citations(hits)

	resp := &Response{
		SessionID: req.SessionID,
		Text:      gen.Text,
		Mode:      req.Mode,
		Citations: citations,
		Backend:   gen.Backend,
	}
	if req.UseVerification {
		score := o.scorer.Score(gen.Text, citations)
		resp.GroundingScore = &score
		span.SetAttributes(attribute.Float64("chat.grounding_score", score))
	}

	resp.ProcessingTime = time.Since(start)
	logger.Info("Chat turn completed",
		"session_id", req.SessionID,
		"mode", req.Mode,
		"backend", gen.Backend,
		"citations", len(citations),
		"duration_ms", resp.ProcessingTime.Milliseconds(),
	)
	return resp, nil
}

func validate(req Request) error {
	if strings.TrimSpace(req.Message) == "" {
		return apperr.New(apperr.KindValidation, "message is required")
	}
	switch req.Mode {
	case ModeChat, ModeInterview:
	case ModeEmail, ModeTailor:
		if strings.TrimSpace(req.JobDescription) == "" {
			return apperr.Newf(apperr.KindValidation, "%s mode requires a job description", req.Mode)
		}
	default:
		return apperr.Newf(apperr.KindValidation, "unknown mode: %s", req.Mode)
	}
	return nil
}

// buildQuery shapes the retrieval query per mode so the index surfaces
// the passages the generation step will need.
func buildQuery(req Request) string {
	switch req.Mode {
	case ModeEmail:
		return fmt.Sprintf("Skills and experience relevant to this job: %s\n\nFocus: %s", req.JobDescription, req.Message)
	case ModeTailor:
		return fmt.Sprintf("Resume sections relevant to this job: %s\n\nQuestion: %s", req.JobDescription, req.Message)
	case ModeInterview:
		if req.JobDescription != "" {
			return fmt.Sprintf("%s\n\nTarget role: %s", req.Message, req.JobDescription)
		}
		return req.Message
	default:
		return req.Message
	}
}

func buildPrompt(req Request, hits []rag.RetrievalHit) string {
	var b strings.Builder
	b.WriteString(systemPrompts[req.Mode])
	b.WriteString("\n\n")

	if len(hits) == 0 {
		b.WriteString("No resume excerpts matched this question.\n\n")
	} else {
		b.WriteString("Resume excerpts:\n")
		for i, h := range hits {
			fmt.Fprintf(&b, "[%d] (%s)\n%s\n\n", i+1, h.Passage.Section, h.Passage.Text)
		}
	}

	if req.JobDescription != "" && req.Mode != ModeChat {
		b.WriteString("Job description:\n")
		b.WriteString(req.JobDescription)
		b.WriteString("\n\n")
	}

	b.WriteString("Request: ")
	b.WriteString(req.Message)
	return b.String()
}

// citations keeps hits above the relevance floor, preserving rank order.
func (o *Orchestrator) citations(hits []rag.RetrievalHit) []rag.Citation {
	out := make([]rag.Citation, 0, len(hits))
	for _, h := range hits {
		if h.FusedScore < o.cfg.MinRelevance {
			continue
		}
		out = append(out, rag.Citation{
			Section:   h.Passage.Section,
			Text:      snippet(h.Passage.Text),
			Relevance: h.FusedScore,
		})
	}
	return out
}

func snippet(text string) string {
	runes := []rune(text)
	if len(runes) <= maxSnippetLen {
		return text
	}
	return string(runes[:maxSnippetLen]) + "..."
}
