package tasks

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ScheduledTaskFunc is the signature of every scheduled task. The context
// provided by the scheduler must be respected for cancellation.
type ScheduledTaskFunc func(ctx context.Context) error

// RegisterAllTasks returns every task keyed by the name used in the
// scheduler configuration.
func RegisterAllTasks(deps TaskDeps) map[string]ScheduledTaskFunc {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	tasks := make(map[string]ScheduledTaskFunc)

	tasks["session_reaper"] = newSessionReaperTask(deps)
	tasks["recommendation_retention"] = newRecommendationRetentionTask(deps)
	tasks["sql_maintenance"] = newSQLMaintenanceTask(deps)

	deps.Logger.Info("initialized scheduled tasks", zap.Int("count", len(tasks)))

	return tasks
}
