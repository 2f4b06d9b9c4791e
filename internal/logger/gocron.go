package logger

import (
	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// gocronLogger implements gocron.Logger on top of zap.
type gocronLogger struct {
	log *zap.SugaredLogger
}

// NewGocronLogger adapts log to the gocron.Logger interface. gocron passes
// alternating key/value pairs, which map onto zap's sugared fields.
//
//nolint:ireturn // gocron's option takes the interface
func NewGocronLogger(log *zap.Logger) gocron.Logger {
	if log == nil {
		log = zap.NewNop()
	}

	return &gocronLogger{log: log.Named("gocron").Sugar()}
}

func (l *gocronLogger) Debug(msg string, args ...any) { l.log.Debugw(msg, schedulerArgs(args)...) }
func (l *gocronLogger) Info(msg string, args ...any)  { l.log.Infow(msg, schedulerArgs(args)...) }
func (l *gocronLogger) Warn(msg string, args ...any)  { l.log.Warnw(msg, schedulerArgs(args)...) }
func (l *gocronLogger) Error(msg string, args ...any) { l.log.Errorw(msg, schedulerArgs(args)...) }

// schedulerArgs turns error values into zap error fields and drops a
// trailing key without a value.
func schedulerArgs(args []any) []any {
	out := make([]any, 0, len(args))
	for i := 0; i+1 < len(args); i += 2 {
		key, val := args[i], args[i+1]
		if err, ok := val.(error); ok {
			name, _ := key.(string)
			if name == "" {
				name = "error"
			}
			out = append(out, zap.NamedError(name, err))
			continue
		}
		out = append(out, key, val)
	}

	return out
}
