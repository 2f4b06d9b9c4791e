package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	"github.com/edgard/cropwise/internal/crop"
	"github.com/edgard/cropwise/internal/session"
)

const (
	sendMessageTimeout = 10 * time.Second
	// maxMessageRunes is the Telegram limit for one text message.
	maxMessageRunes = 4096
)

// ErrRecommendUsage is returned for /recommend arguments that are not seven
// values.
var ErrRecommendUsage = errors.New("expected seven values: N P K temperature humidity pH rainfall")

// NewStartHandler returns a handler for the /start command.
func NewStartHandler(deps HandlerDeps) bot.HandlerFunc {
	return staticHandler{deps: deps, name: "start", text: func(d HandlerDeps) string { return d.Messages.Welcome }}.Handle
}

// NewHelpHandler returns a handler for the /help command.
func NewHelpHandler(deps HandlerDeps) bot.HandlerFunc {
	return staticHandler{deps: deps, name: "help", text: func(d HandlerDeps) string { return d.Messages.Help }}.Handle
}

// staticHandler replies with a configured message.
type staticHandler struct {
	deps HandlerDeps
	name string
	text func(HandlerDeps) string
}

func (h staticHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.logger().With(zap.String("handler", h.name))

	if update.Message == nil {
		log.Warn("handler received update without a message", zap.Int64("update_id", update.ID))
		return
	}

	sendText(ctx, b, log, update.Message.Chat.ID, h.text(h.deps))
}

// NewRecommendHandler returns a handler for /recommend N P K T H PH R.
func NewRecommendHandler(deps HandlerDeps) bot.HandlerFunc {
	return recommendHandler{deps}.Handle
}

type recommendHandler struct {
	deps HandlerDeps
}

func (h recommendHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.logger().With(zap.String("handler", "recommend"))

	if update.Message == nil {
		log.Warn("recommend handler received update without a message", zap.Int64("update_id", update.ID))
		return
	}
	chatID := update.Message.Chat.ID

	entries, err := ParseRecommendArgs(update.Message.Text)
	if err != nil {
		sendText(ctx, b, log, chatID, h.deps.Messages.RecommendUsage)
		return
	}

	sess := h.deps.sessionFor(chatID)
	rec, notices, err := sess.Recommend(ctx, entries)

	var lines []string
	for _, n := range notices {
		lines = append(lines, "⚠️ "+n.Message)
	}
	switch {
	case errors.Is(err, session.ErrEnded):
		log.Debug("recommend on ended session", zap.Int64("chat_id", chatID))
		return
	case err != nil:
		log.Error("prediction failed", zap.Int64("chat_id", chatID), zap.Error(err))
		lines = append(lines, h.deps.Messages.PredictionFailed)
	default:
		lines = append(lines, "🌱 "+rec.Headline())
	}

	sendText(ctx, b, log, chatID, strings.Join(lines, "\n"))
}

// ParseRecommendArgs maps the seven values after the /recommend command to
// panel entries in feature order.
func ParseRecommendArgs(text string) (map[crop.Field]string, error) {
	args := strings.Fields(text)
	if len(args) > 0 && strings.HasPrefix(args[0], "/") {
		args = args[1:]
	}
	if len(args) != crop.NumFeatures {
		return nil, ErrRecommendUsage
	}

	entries := make(map[crop.Field]string, crop.NumFeatures)
	for i, b := range crop.Bounds {
		entries[b.Field] = args[i]
	}

	return entries, nil
}

// NewChatHandler returns the default handler: every text message that is
// not a registered command goes to the chat's assistant session.
func NewChatHandler(deps HandlerDeps) bot.HandlerFunc {
	return chatHandler{deps}.Handle
}

type chatHandler struct {
	deps HandlerDeps
}

func (h chatHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.logger().With(zap.String("handler", "chat"))

	msg := update.Message
	if msg == nil || strings.TrimSpace(msg.Text) == "" {
		log.Debug("ignoring update without text", zap.Int64("update_id", update.ID))
		return
	}
	chatID := msg.Chat.ID

	typingCtx, stopTyping := context.WithCancel(ctx)
	if h.deps.TypingInterval > 0 {
		go sendContinuousTyping(typingCtx, b, log, chatID, h.deps.TypingInterval)
	}

	ex, err := h.deps.sessionFor(chatID).Send(ctx, msg.Text)
	stopTyping()

	switch {
	case errors.Is(err, session.ErrEnded):
		log.Debug("chat on ended session", zap.Int64("chat_id", chatID))
	case err != nil:
		notice := h.deps.Messages.RemoteTransient
		if ex.User != nil && ex.User.Failure != nil {
			notice = ex.User.Failure.Notice
		}
		sendText(ctx, b, log, chatID, notice)
	case ex.Reply != nil:
		sendText(ctx, b, log, chatID, ex.Reply.Content)
	}
}

// sendText sends text to chatID, split into as many messages as the
// Telegram length limit requires.
func sendText(ctx context.Context, b *bot.Bot, log *zap.Logger, chatID int64, text string) {
	for _, part := range splitMessage(text, maxMessageRunes) {
		sendCtx, cancel := context.WithTimeout(ctx, sendMessageTimeout)
		_, err := b.SendMessage(sendCtx, &bot.SendMessageParams{ChatID: chatID, Text: part})
		cancel()
		if err != nil {
			log.Error("failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
			return
		}
	}
}

// splitMessage cuts text into parts of at most limit runes, preferring to
// cut at a newline.
func splitMessage(text string, limit int) []string {
	var parts []string
	for utf8.RuneCountInString(text) > limit {
		cut := byteOffset(text, limit)
		if nl := strings.LastIndexByte(text[:cut], '\n'); nl > 0 {
			cut = nl + 1
		}
		parts = append(parts, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		parts = append(parts, text)
	}

	return parts
}

func byteOffset(s string, runes int) int {
	i := 0
	for n := 0; n < runes && i < len(s); n++ {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}

	return i
}

// sendContinuousTyping refreshes the typing indicator until ctx is done.
func sendContinuousTyping(ctx context.Context, b *bot.Bot, log *zap.Logger, chatID int64, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := sendTypingAction(ctx, b, chatID); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Debug("typing action failed", zap.Int64("chat_id", chatID), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func sendTypingAction(ctx context.Context, b *bot.Bot, chatID int64) error {
	_, err := b.SendChatAction(ctx, &bot.SendChatActionParams{ChatID: chatID, Action: models.ChatActionTyping})
	if err != nil {
		return fmt.Errorf("failed to send typing action: %w", err)
	}

	return nil
}
