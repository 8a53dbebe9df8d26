package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"resume-ai-backend/internal/ai"
	"resume-ai-backend/internal/chat"
	"resume-ai-backend/internal/config"
	"resume-ai-backend/internal/logger"
	"resume-ai-backend/internal/match"
	"resume-ai-backend/internal/queue"
	"resume-ai-backend/internal/rag"
	"resume-ai-backend/internal/resume"
	"resume-ai-backend/internal/telemetry"
	"resume-ai-backend/middleware"
	"resume-ai-backend/routes"
	"resume-ai-backend/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.InitLogger(cfg)
	gin.SetMode(cfg.GinMode)

	shutdownTracer, err := telemetry.InitTracer("resume-ai-backend", cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer shutdownTracer()

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to initialize metrics: %v", err)
	}

	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer rdb.Close()

	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())

	// Retrieval stack: embeddings behind the cache, cache behind the index.
	embedder, err := ai.NewEmbeddingBackend(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize embeddings: %v", err)
	}
	cache, err := rag.NewEmbeddingCache(embedder, cfg.EmbeddingCacheSize, cfg.MaxEmbeddingInput)
	if err != nil {
		log.Fatalf("Failed to initialize embedding cache: %v", err)
	}
	index := rag.NewPassageIndex(cache, rag.IndexConfig{
		VectorWeight:  cfg.RetrievalVectorWeight,
		LexicalWeight: cfg.RetrievalLexicalWeight,
		MaxQueryRunes: cfg.MaxEmbeddingInput,
	})

	buildIndex(cfg, index)

	// LLM stack: backends behind the fallback router.
	gemini, err := ai.NewGeminiBackend(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiTier)
	if err != nil {
		log.Fatalf("Failed to initialize Gemini backend: %v", err)
	}
	defer gemini.Close()
	openaiBackend := ai.NewOpenAIBackend(cfg.OpenAIAPIKey, cfg.OpenAIModel)

	llmRouter := ai.NewRouter([]ai.Backend{gemini, openaiBackend}, ai.RouterConfig{
		Order:                cfg.BackendOrder,
		DefaultTimeout:       time.Duration(cfg.DefaultTimeout) * time.Second,
		RetryBackoff:         time.Duration(cfg.RetryBackoffMs) * time.Millisecond,
		AdvanceOnPolicyError: cfg.AdvanceOnPolicyError,
	})

	orchestrator := chat.NewOrchestrator(index, llmRouter, rag.GroundingScorer{}, chat.Config{
		TopK:         cfg.RetrievalTopK,
		MinRelevance: cfg.CitationMinRelevance,
		GenOpts:      ai.GenerateOptions{Temperature: 0.7, MaxTokens: 2048},
	})

	extractor := match.NewExtractor(llmRouter, ai.GenerateOptions{MaxTokens: 1024})
	engine := match.NewEngine(index, extractor, match.Config{
		Weights: match.Weights{
			Skills:     cfg.MatchSkillsWeight,
			Experience: cfg.MatchExperienceWeight,
			Education:  cfg.MatchEducationWeight,
			Keywords:   cfg.MatchKeywordsWeight,
		},
		SkillThreshold: cfg.MatchSkillThreshold,
		ToleranceYears: cfg.ExperienceToleranceYears,
	})

	history := services.NewHistoryService(mongoClient.Database(cfg.DBName))

	// Queue consumer runs in-process so rebuild tasks swap this
	// process's index snapshot.
	processor := queue.NewTaskProcessor(index, cache)
	asynqSrv := asynq.NewServer(config.AsynqRedisOpt(cfg), asynq.Config{
		Concurrency: 2,
		Queues:      map[string]int{"critical": 6, "default": 3},
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskIndexRebuild, processor.HandleIndexRebuild)
	mux.HandleFunc(queue.TaskEmbeddingWarmup, processor.HandleEmbeddingWarmup)
	go func() {
		if err := asynqSrv.Run(mux); err != nil {
			logger.Error("Task server stopped", "error", err)
		}
	}()

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.EnrichTrace())
	router.Use(middleware.MetricsMiddleware(metrics))
	router.Use(middleware.RateLimitMiddleware(rdb, cfg))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization", middleware.RequestIDHeader)
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"index_ready": index.Ready(),
			"passages":    len(index.Passages()),
		})
	})

	routes.SetupChatRoutes(router, orchestrator, history)
	routes.SetupAnalyzeRoutes(router, engine, extractor, history)
	routes.SetupSettingsRoutes(router, cfg, llmRouter)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")
	asynqSrv.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	logger.Info("Server exited")
}

// buildIndex loads and indexes the resume at startup. A missing resume
// or a failed embedding pass is not fatal; the index either stays empty
// until a rebuild task succeeds or serves lexical-only scoring.
func buildIndex(cfg *config.Config, index *rag.PassageIndex) {
	text, err := resume.LoadDocument(cfg.ResumePath)
	if err != nil {
		logger.Warn("Resume not indexed at startup", "path", cfg.ResumePath, "error", err)
		return
	}
	passages := resume.BuildPassages(text)
	if len(passages) == 0 {
		logger.Warn("Resume produced no passages", "path", cfg.ResumePath)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := index.Build(ctx, passages); err != nil {
		logger.Warn("Index built without vectors", "error", err)
	}
}
