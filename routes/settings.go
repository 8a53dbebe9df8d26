package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"resume-ai-backend/internal/ai"
	"resume-ai-backend/internal/config"
)

func SetupSettingsRoutes(router *gin.Engine, cfg *config.Config, llmRouter *ai.Router) {
	group := router.Group("/settings")

	group.GET("/backends", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"backends":      llmRouter.Backends(),
			"default_order": cfg.BackendOrder,
		})
	})

	group.GET("/retrieval", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"top_k":                  cfg.RetrievalTopK,
			"vector_weight":          cfg.RetrievalVectorWeight,
			"lexical_weight":         cfg.RetrievalLexicalWeight,
			"citation_min_relevance": cfg.CitationMinRelevance,
			"embeddings_provider":    cfg.EmbeddingsProvider,
		})
	})
}
