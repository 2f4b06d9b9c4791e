package tasks

import (
	"context"

	"go.uber.org/zap"
)

func newSessionReaperTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With(zap.String("task", "session_reaper"))

	return func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		if n := deps.Sessions.Reap(); n > 0 {
			log.Info("ended idle sessions", zap.Int("count", n))
		}

		return nil
	}
}
