// Package logger builds the zap logger used across CropWise and the
// Telegram update logging middleware.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/edgard/cropwise/internal/config"
	"github.com/edgard/cropwise/internal/text"
)

// ParseLevel maps a configured level name to a zap level. Unknown names map to info.
func ParseLevel(levelStr string) zapcore.Level {
	switch levelStr {
	case "debug":
		return zap.DebugLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// NewLogger creates a logger writing to w. Format "json" uses the production
// encoder, anything else a colored console encoder.
func NewLogger(levelStr, format string, w io.Writer) *zap.Logger {
	level := ParseLevel(levelStr)

	var encoder zapcore.Encoder
	if format == "json" {
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "time"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "time"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(w), level)

	return zap.New(core, zap.AddCaller())
}

// New builds the logger described by cfg. When cfg.File is set output goes
// there; the returned closer releases it.
func New(cfg config.LogConfig) (*zap.Logger, func() error, error) {
	if cfg.File == "" {
		return NewLogger(cfg.Level, cfg.Format, os.Stdout), func() error { return nil }, nil
	}

	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file %s: %w", cfg.File, err)
	}

	return NewLogger(cfg.Level, cfg.Format, f), f.Close, nil
}

// Middleware creates a logging middleware for the Telegram bot.
// It logs every incoming update and how long its handler took.
func Middleware(log *zap.Logger) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			startTime := time.Now()

			entry := log.With(zap.Int64("update_id", update.ID))

			switch {
			case update.Message != nil:
				fields := []zap.Field{
					zap.String("update_type", "message"),
					zap.Int("message_id", update.Message.ID),
					zap.Int64("chat_id", update.Message.Chat.ID),
				}
				if update.Message.From != nil {
					fields = append(fields, zap.Int64("user_id", update.Message.From.ID))
				}
				entry = entry.With(fields...)
				entry.Debug("update text", zap.String("text_preview", text.Preview(update.Message.Text, 50)))
			case update.CallbackQuery != nil:
				entry = entry.With(
					zap.String("update_type", "callback_query"),
					zap.String("callback_query_id", update.CallbackQuery.ID),
					zap.Int64("user_id", update.CallbackQuery.From.ID),
				)
			default:
				entry = entry.With(zap.String("update_type", "other"))
			}

			entry.Info("processing update")

			next(ctx, b, update)

			entry.Info("finished processing update", zap.Duration("duration", time.Since(startTime)))
		}
	}
}
