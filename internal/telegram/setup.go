// Package telegram runs the optional Telegram surface: bot setup, command
// and chat handlers, and their registration.
package telegram

import (
	"fmt"

	"github.com/go-telegram/bot"
	"go.uber.org/zap"

	"github.com/edgard/cropwise/internal/logger"
)

// NewTelegramBot creates a bot whose unmatched messages go to the chat
// handler and whose every update passes the logging middleware.
func NewTelegramBot(token string, deps HandlerDeps, opts ...bot.Option) (*bot.Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token cannot be empty")
	}
	log := deps.logger().Named("telegram")

	opts = append([]bot.Option{
		bot.WithMiddlewares(logger.Middleware(log)),
		bot.WithDefaultHandler(NewChatHandler(deps)),
	}, opts...)

	b, err := bot.New(token, opts...)
	if err != nil {
		log.Error("failed to create Telegram bot instance", zap.Error(err))
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	log.Info("Telegram bot instance created")

	return b, nil
}

// applyMiddleware wraps handler so that the first middleware in mw is the
// outermost.
func applyMiddleware(handler bot.HandlerFunc, mw []bot.Middleware) bot.HandlerFunc {
	for i := len(mw) - 1; i >= 0; i-- {
		handler = mw[i](handler)
	}

	return handler
}

// RegisterHandlers registers every command in registered with b.
func RegisterHandlers(b *bot.Bot, log *zap.Logger, registered map[string]RegisteredHandler) error {
	if b == nil {
		return fmt.Errorf("bot instance cannot be nil")
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("handler_registry")

	if len(registered) == 0 {
		log.Warn("no handlers provided for registration")
		return nil
	}

	for name, h := range registered {
		if h.Handler == nil {
			log.Warn("skipping registration for nil handler", zap.String("command", name))
			continue
		}

		b.RegisterHandler(h.HandlerType, h.Pattern, h.MatchType, applyMiddleware(h.Handler, h.Middleware))
		log.Debug("registered handler",
			zap.String("command", name),
			zap.Int("middleware_count", len(h.Middleware)))
	}

	log.Info("registered Telegram handlers", zap.Int("count", len(registered)))

	return nil
}
