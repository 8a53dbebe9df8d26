package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"resume-ai-backend/internal/logger"
	"resume-ai-backend/internal/rag"
	"resume-ai-backend/internal/resume"
)

const (
	TaskIndexRebuild    = "index:rebuild"
	TaskEmbeddingWarmup = "embeddings:warmup"
)

type IndexRebuildPayload struct {
	ResumePath string `json:"resume_path"`
	Reason     string `json:"reason"`
}

type EmbeddingWarmupPayload struct {
	Queries []string `json:"queries"`
}

// Task creators

func NewIndexRebuildTask(resumePath, reason string) (*asynq.Task, error) {
	payload, err := json.Marshal(IndexRebuildPayload{ResumePath: resumePath, Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(
		TaskIndexRebuild,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(5*time.Minute),
		asynq.Queue("critical"),
	), nil
}

// NewEmbeddingWarmupTask pre-embeds common queries so the first real
// chat after a deploy does not pay the cold-cache latency.
func NewEmbeddingWarmupTask(queries []string) (*asynq.Task, error) {
	payload, err := json.Marshal(EmbeddingWarmupPayload{Queries: queries})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(
		TaskEmbeddingWarmup,
		payload,
		asynq.MaxRetry(1),
		asynq.Timeout(2*time.Minute),
		asynq.Queue("default"),
	), nil
}

// TaskProcessor handles background index maintenance.
type TaskProcessor struct {
	index *rag.PassageIndex
	cache *rag.EmbeddingCache
}

func NewTaskProcessor(index *rag.PassageIndex, cache *rag.EmbeddingCache) *TaskProcessor {
	return &TaskProcessor{index: index, cache: cache}
}

func (p *TaskProcessor) HandleIndexRebuild(ctx context.Context, t *asynq.Task) error {
	var payload IndexRebuildPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	logger.Info("Rebuilding passage index", "path", payload.ResumePath, "reason", payload.Reason)

	text, err := resume.LoadDocument(payload.ResumePath)
	if err != nil {
		return err
	}
	passages := resume.BuildPassages(text)
	if len(passages) == 0 {
		logger.Warn("Resume produced no passages, keeping previous index", "path", payload.ResumePath)
		return fmt.Errorf("empty resume: %w", asynq.SkipRetry)
	}

	if err := p.index.Build(ctx, passages); err != nil {
		// The index swapped in a lexical-only snapshot; retry so a
		// later attempt can restore vector scoring.
		return err
	}
	return nil
}

func (p *TaskProcessor) HandleEmbeddingWarmup(ctx context.Context, t *asynq.Task) error {
	var payload EmbeddingWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}
	if len(payload.Queries) == 0 {
		return nil
	}

	if _, err := p.cache.Embed(ctx, payload.Queries); err != nil {
		return err
	}
	logger.Info("Embedding cache warmed", "queries", len(payload.Queries))
	return nil
}
