// Package recommend runs predictions for the interactive surfaces and
// records them in the recommendation log.
package recommend

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/edgard/cropwise/internal/crop"
	"github.com/edgard/cropwise/internal/database"
	"github.com/edgard/cropwise/internal/predictor"
)

// Predictor produces a recommendation from a vector.
type Predictor interface {
	Predict(v crop.InputVector) (predictor.Recommendation, error)
}

// Service predicts and logs. A nil store disables logging.
type Service struct {
	predictor    Predictor
	store        database.Store
	logger       *zap.Logger
	writeTimeout time.Duration
}

// NewService returns a service backed by p and store.
func NewService(p Predictor, store database.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		predictor:    p,
		store:        store,
		logger:       logger.Named("recommend"),
		writeTimeout: 5 * time.Second,
	}
}

// Recommend predicts for v. A failed log write is logged and does not fail
// the prediction.
func (s *Service) Recommend(ctx context.Context, sessionID, surface string, v crop.InputVector) (predictor.Recommendation, error) {
	rec, err := s.predictor.Predict(v)
	if err != nil {
		s.logger.Error("prediction failed",
			zap.String("session_id", sessionID),
			zap.String("surface", surface),
			zap.Error(err))
		return predictor.Recommendation{}, err
	}

	s.logger.Info("crop recommended",
		zap.String("session_id", sessionID),
		zap.String("surface", surface),
		zap.String("label", rec.Label))

	if s.store != nil {
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.writeTimeout)
		defer cancel()

		if err := s.store.SaveRecommendation(writeCtx, database.NewRecommendation(sessionID, surface, rec.Input, rec.Label)); err != nil {
			s.logger.Warn("failed to record recommendation", zap.String("session_id", sessionID), zap.Error(err))
		}
	}

	return rec, nil
}

// Recent returns the most recent logged recommendations.
func (s *Service) Recent(ctx context.Context, limit int) ([]database.Recommendation, error) {
	if s.store == nil {
		return nil, nil
	}

	return s.store.RecentRecommendations(ctx, limit)
}
