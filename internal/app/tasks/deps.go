// Package tasks implements the housekeeping tasks run by the scheduler.
package tasks

import (
	"time"

	"go.uber.org/zap"

	"github.com/edgard/cropwise/internal/database"
)

// SessionReaper ends idle interactive sessions.
type SessionReaper interface {
	Reap() int
}

// TaskDeps contains the dependencies of the scheduled tasks.
type TaskDeps struct {
	Logger    *zap.Logger
	Store     database.Store
	Sessions  SessionReaper
	Retention time.Duration
	// Now replaces time.Now.
	Now func() time.Time
}
