package telegram

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/edgard/cropwise/internal/config"
	"github.com/edgard/cropwise/internal/session"
)

// Surface is the session surface name for Telegram chats.
const Surface = "telegram"

// Sessions looks up or starts the session of a chat.
type Sessions interface {
	GetOrCreate(id, surface string) *session.Session
}

// HandlerDeps provides dependencies for Telegram handlers.
type HandlerDeps struct {
	Logger   *zap.Logger
	Messages config.MessagesConfig
	Sessions Sessions
	// TypingInterval is how often the typing indicator is refreshed while
	// the assistant answers. Zero disables it.
	TypingInterval time.Duration
}

func (d HandlerDeps) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}

	return d.Logger
}

// sessionFor returns the session of chatID.
func (d HandlerDeps) sessionFor(chatID int64) *session.Session {
	return d.Sessions.GetOrCreate(fmt.Sprintf("telegram-%d", chatID), Surface)
}
