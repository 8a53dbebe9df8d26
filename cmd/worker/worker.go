package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/hibiken/asynq"

	"resume-ai-backend/internal/config"
	"resume-ai-backend/internal/logger"
	"resume-ai-backend/internal/queue"
)

// The worker is the scheduler side of the queue: it enqueues index
// rebuilds and cache warmups on a cron schedule. The API process
// consumes them, since the passage index lives in its memory.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.InitLogger(cfg)

	client := asynq.NewClient(config.AsynqRedisOpt(cfg))
	defer client.Close()

	enqueueRebuild := func(reason string) {
		task, err := queue.NewIndexRebuildTask(cfg.ResumePath, reason)
		if err != nil {
			logger.Error("Failed to build rebuild task", "error", err)
			return
		}
		info, err := client.Enqueue(task)
		if err != nil {
			logger.Error("Failed to enqueue rebuild task", "error", err)
			return
		}
		logger.Info("Enqueued index rebuild", "task_id", info.ID, "reason", reason)
	}

	// Warm the embedding cache with the starter questions once at boot.
	if task, err := queue.NewEmbeddingWarmupTask([]string{
		"What is your strongest technical skill?",
		"Tell me about your most recent role.",
		"Which projects are you most proud of?",
	}); err == nil {
		if _, err := client.Enqueue(task); err != nil {
			logger.Warn("Failed to enqueue warmup task", "error", err)
		}
	}

	scheduler := gocron.NewScheduler(time.UTC)
	if cfg.ReindexCron != "" {
		if _, err := scheduler.Cron(cfg.ReindexCron).Do(func() {
			enqueueRebuild("scheduled")
		}); err != nil {
			log.Fatalf("Invalid REINDEX_CRON %q: %v", cfg.ReindexCron, err)
		}
		logger.Info("Reindex schedule registered", "cron", cfg.ReindexCron)
	} else {
		logger.Info("REINDEX_CRON not set, scheduler idle")
	}
	scheduler.StartAsync()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Worker shutting down")
	scheduler.Stop()
}
