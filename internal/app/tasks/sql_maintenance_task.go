package tasks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

func newSQLMaintenanceTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With(zap.String("task", "sql_maintenance"))

	return func(ctx context.Context) error {
		startTime := time.Now()

		if err := deps.Store.RunSQLMaintenance(ctx); err != nil {
			return fmt.Errorf("sql maintenance failed: %w", err)
		}

		log.Info("sql maintenance completed", zap.Duration("duration", time.Since(startTime)))

		return nil
	}
}
