package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"resume-ai-backend/internal/chat"
	"resume-ai-backend/internal/rag"
	"resume-ai-backend/models"
	"resume-ai-backend/services"
	"resume-ai-backend/utils"
)

// suggestions are starter questions for an empty chat session, one set
// per mode.
var suggestions = map[string][]string{
	"chat": {
		"What is your strongest technical skill?",
		"Tell me about your most recent role.",
		"Which projects are you most proud of?",
	},
	"email": {
		"Draft a short application email for this role.",
		"Write a follow-up email after an interview.",
	},
	"tailor": {
		"Which of my skills should I emphasize for this job?",
		"What is missing from my resume for this role?",
	},
	"interview": {
		"What questions should I expect about my background?",
		"Help me prepare a strengths-and-weaknesses answer.",
	},
}

func SetupChatRoutes(router *gin.Engine, orchestrator *chat.Orchestrator, history *services.HistoryService) {
	group := router.Group("/chat")

	group.POST("/send", func(c *gin.Context) {
		var req models.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithError(c, http.StatusBadRequest,
				"validation_error", "Invalid request data",
				gin.H{"error": err.Error()})
			return
		}

		mode := chat.Mode(req.Mode)
		if req.Mode == "" {
			mode = chat.ModeChat
		}

		resp, err := orchestrator.Chat(c.Request.Context(), chat.Request{
			Message:         req.Message,
			Mode:            mode,
			JobDescription:  req.JobDescription,
			SessionID:       req.SessionID,
			UseVerification: req.UseVerification,
			Backends:        req.Backends,
		})
		if err != nil {
			utils.RespondWithAppError(c, err)
			return
		}

		citations := toCitationResponses(resp.Citations)

		// Persist the turn; the answer already succeeded, so a storage
		// failure only gets logged inside the service.
		_ = history.SaveTurn(c.Request.Context(), models.ChatTurn{
			SessionID:      resp.SessionID,
			Message:        req.Message,
			Reply:          resp.Text,
			Mode:           string(resp.Mode),
			Backend:        resp.Backend,
			Citations:      citations,
			GroundingScore: resp.GroundingScore,
			Timestamp:      time.Now(),
		})

		c.JSON(http.StatusOK, models.ChatResponse{
			SessionID:      resp.SessionID,
			Reply:          resp.Text,
			Mode:           string(resp.Mode),
			Citations:      citations,
			GroundingScore: resp.GroundingScore,
			Backend:        resp.Backend,
			LatencyMs:      resp.ProcessingTime.Milliseconds(),
			Timestamp:      time.Now(),
		})
	})

	group.GET("/suggestions", func(c *gin.Context) {
		mode := c.DefaultQuery("mode", "chat")
		list, ok := suggestions[mode]
		if !ok {
			utils.RespondWithError(c, http.StatusBadRequest,
				"validation_error", "Unknown mode", gin.H{"mode": mode})
			return
		}
		c.JSON(http.StatusOK, gin.H{"mode": mode, "suggestions": list})
	})

	group.GET("/history/:session_id", func(c *gin.Context) {
		sessionHistory, err := history.SessionHistory(c.Request.Context(), c.Param("session_id"))
		if err != nil {
			utils.RespondWithError(c, http.StatusInternalServerError,
				"internal_error", "Failed to retrieve session history", nil)
			return
		}
		c.JSON(http.StatusOK, sessionHistory)
	})
}

func toCitationResponses(citations []rag.Citation) []models.CitationResponse {
	out := make([]models.CitationResponse, len(citations))
	for i, cit := range citations {
		out[i] = models.CitationResponse{
			Section:   cit.Section,
			Text:      cit.Text,
			Relevance: cit.Relevance,
		}
	}
	return out
}
