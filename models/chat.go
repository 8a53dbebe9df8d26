package models

import "time"

// ChatRequest is the POST /chat/send payload.
type ChatRequest struct {
	Message         string   `json:"message" binding:"required"`
	Mode            string   `json:"mode"`
	JobDescription  string   `json:"job_description"`
	SessionID       string   `json:"session_id"`
	UseVerification bool     `json:"use_verification"`
	Backends        []string `json:"backends"`
}

// CitationResponse is one supporting resume excerpt in a chat response.
type CitationResponse struct {
	Section   string  `json:"section"`
	Text      string  `json:"text"`
	Relevance float64 `json:"relevance"`
}

// ChatResponse is the POST /chat/send response body.
type ChatResponse struct {
	SessionID      string             `json:"session_id"`
	Reply          string             `json:"reply"`
	Mode           string             `json:"mode"`
	Citations      []CitationResponse `json:"citations"`
	GroundingScore *float64           `json:"grounding_score,omitempty"`
	Backend        string             `json:"backend"`
	LatencyMs      int64              `json:"latency_ms"`
	Timestamp      time.Time          `json:"timestamp"`
}

// ChatTurn is one stored question/answer pair.
type ChatTurn struct {
	SessionID      string             `bson:"session_id" json:"session_id"`
	Message        string             `bson:"message" json:"message"`
	Reply          string             `bson:"reply" json:"reply"`
	Mode           string             `bson:"mode" json:"mode"`
	Backend        string             `bson:"backend" json:"backend"`
	Citations      []CitationResponse `bson:"citations,omitempty" json:"citations,omitempty"`
	GroundingScore *float64           `bson:"grounding_score,omitempty" json:"grounding_score,omitempty"`
	Timestamp      time.Time          `bson:"timestamp" json:"timestamp"`
}

// SessionHistory is the GET /chat/history/:session_id response body.
type SessionHistory struct {
	SessionID string     `json:"session_id"`
	Turns     []ChatTurn `json:"turns"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
