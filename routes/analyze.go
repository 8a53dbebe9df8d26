package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"resume-ai-backend/internal/match"
	"resume-ai-backend/models"
	"resume-ai-backend/services"
	"resume-ai-backend/utils"
)

func SetupAnalyzeRoutes(router *gin.Engine, engine *match.Engine, extractor *match.Extractor, history *services.HistoryService) {
	group := router.Group("/analyze")

	group.POST("/match", func(c *gin.Context) {
		var req models.MatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithError(c, http.StatusBadRequest,
				"validation_error", "Invalid request data",
				gin.H{"error": err.Error()})
			return
		}

		analysis, err := engine.Match(c.Request.Context(), req.JobDescription)
		if err != nil {
			utils.RespondWithAppError(c, err)
			return
		}

		_ = history.SaveAnalysis(c.Request.Context(), models.SavedAnalysis{
			Company:   req.Company,
			Title:     req.Title,
			Overall:   analysis.Overall,
			Quality:   analysis.Quality,
			Analysis:  analysis,
			CreatedAt: time.Now(),
		})

		c.JSON(http.StatusOK, gin.H{
			"overall_score":   analysis.Overall,
			"quality":         analysis.Quality,
			"breakdown":       analysis.Breakdown,
			"matched_skills":  analysis.Matched,
			"missing_skills":  analysis.Missing,
			"recommendations": analysis.Recommendations,
			"requirements":    analysis.Requirements,
			"latency_ms":      analysis.ProcessingTime.Milliseconds(),
		})
	})

	group.POST("/keywords", func(c *gin.Context) {
		var req models.KeywordsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithError(c, http.StatusBadRequest,
				"validation_error", "Invalid request data",
				gin.H{"error": err.Error()})
			return
		}

		keywords, err := extractor.Keywords(c.Request.Context(), req.JobDescription)
		if err != nil {
			utils.RespondWithAppError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"keywords": keywords, "total": len(keywords)})
	})

	group.GET("/history", func(c *gin.Context) {
		analyses, err := history.RecentAnalyses(c.Request.Context(), 20)
		if err != nil {
			utils.RespondWithError(c, http.StatusInternalServerError,
				"internal_error", "Failed to retrieve analyses", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"analyses": analyses, "total": len(analyses)})
	})
}
