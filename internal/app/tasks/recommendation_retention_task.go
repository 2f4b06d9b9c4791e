package tasks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

func newRecommendationRetentionTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With(zap.String("task", "recommendation_retention"))

	return func(ctx context.Context) error {
		timeoutCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()

		cutoff := deps.Now().Add(-deps.Retention)
		n, err := deps.Store.PurgeRecommendations(timeoutCtx, cutoff)
		if err != nil {
			return fmt.Errorf("recommendation retention failed: %w", err)
		}

		log.Info("purged old recommendations", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))

		return nil
	}
}
