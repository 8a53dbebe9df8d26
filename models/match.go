package models

import "time"

// MatchRequest is the POST /analyze/match payload.
type MatchRequest struct {
	JobDescription string `json:"job_description" binding:"required"`
	Company        string `json:"company"`
	Title          string `json:"title"`
}

// KeywordsRequest is the POST /analyze/keywords payload.
type KeywordsRequest struct {
	JobDescription string `json:"job_description" binding:"required"`
}

// SavedAnalysis is a job match analysis persisted for later review.
type SavedAnalysis struct {
	Company   string    `bson:"company" json:"company"`
	Title     string    `bson:"title" json:"title"`
	Overall   float64   `bson:"overall_score" json:"overall_score"`
	Quality   string    `bson:"quality" json:"quality"`
	Analysis  any       `bson:"analysis" json:"analysis"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
