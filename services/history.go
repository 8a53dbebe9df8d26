package services

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"resume-ai-backend/internal/logger"
	"resume-ai-backend/models"
)

// HistoryService persists chat turns and saved job analyses. All writes
// are best effort from the caller's point of view; a chat answer is not
// failed because Mongo was down.
type HistoryService struct {
	turns    *mongo.Collection
	analyses *mongo.Collection
}

func NewHistoryService(db *mongo.Database) *HistoryService {
	return &HistoryService{
		turns:    db.Collection("chat_turns"),
		analyses: db.Collection("job_analyses"),
	}
}

// SaveTurn stores one question/answer pair.
func (s *HistoryService) SaveTurn(ctx context.Context, turn models.ChatTurn) error {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	_, err := s.turns.InsertOne(ctx, turn)
	if err != nil {
		logger.Warn("Failed to save chat turn", "session_id", turn.SessionID, "error", err)
	}
	return err
}

// SessionHistory returns a session's turns in chronological order.
func (s *HistoryService) SessionHistory(ctx context.Context, sessionID string) (*models.SessionHistory, error) {
	cursor, err := s.turns.Find(ctx,
		bson.M{"session_id": sessionID},
		options.Find().SetSort(bson.M{"timestamp": 1}),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	turns := make([]models.ChatTurn, 0)
	if err := cursor.All(ctx, &turns); err != nil {
		return nil, err
	}

	history := &models.SessionHistory{
		SessionID: sessionID,
		Turns:     turns,
	}
	if len(turns) > 0 {
		history.CreatedAt = turns[0].Timestamp
		history.UpdatedAt = turns[len(turns)-1].Timestamp
	}
	return history, nil
}

// SaveAnalysis stores a completed job match analysis.
func (s *HistoryService) SaveAnalysis(ctx context.Context, analysis models.SavedAnalysis) error {
	if analysis.CreatedAt.IsZero() {
		analysis.CreatedAt = time.Now()
	}
	_, err := s.analyses.InsertOne(ctx, analysis)
	if err != nil {
		logger.Warn("Failed to save job analysis", "company", analysis.Company, "error", err)
	}
	return err
}

// RecentAnalyses lists saved analyses, newest first.
func (s *HistoryService) RecentAnalyses(ctx context.Context, limit int64) ([]models.SavedAnalysis, error) {
	if limit <= 0 {
		limit = 20
	}
	cursor, err := s.analyses.Find(ctx,
		bson.M{},
		options.Find().SetSort(bson.M{"created_at": -1}).SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	analyses := make([]models.SavedAnalysis, 0)
	if err := cursor.All(ctx, &analyses); err != nil {
		return nil, err
	}
	return analyses, nil
}
