package config

import "time"

const (
	// DefaultInstruction is the fixed system instruction sent ahead of every transcript.
	DefaultInstruction = "You are an agricultural assistant. Give clear, simple, and farmer-friendly answers."

	DefaultOpenAIBaseURL = "https://api.groq.com/openai/v1"
	DefaultOpenAIModel   = "llama-3.1-8b-instant"
	DefaultGeminiModel   = "gemini-2.0-flash"
)

var defaults = map[string]any{
	"log.level":  "info",
	"log.format": "json",

	"model.path": "models/dt_crop.json",

	"assistant.provider":           "openai",
	"assistant.base_url":           DefaultOpenAIBaseURL,
	"assistant.model":              DefaultOpenAIModel,
	"assistant.instruction":        DefaultInstruction,
	"assistant.temperature":        0.0,
	"assistant.max_tokens":         0,
	"assistant.timeout":            30 * time.Second,
	"assistant.max_retries":        1,
	"assistant.retry_delay":        500 * time.Millisecond,
	"assistant.breaker_failures":   5,
	"assistant.breaker_cooldown":   30 * time.Second,
	"assistant.context_policy":     "full",
	"assistant.max_context_tokens": 8000,
	"assistant.tokenizer":          "tiktoken",

	"session.idle_timeout": 30 * time.Minute,

	"web.enabled":          true,
	"web.addr":             ":8501",
	"web.cookie_name":      "cropwise_session",
	"web.secure_cookie":    false,
	"web.read_timeout":     15 * time.Second,
	"web.write_timeout":    2 * time.Minute,
	"web.shutdown_timeout": 10 * time.Second,

	"telegram.enabled": false,

	"database.path": "cropwise.db",

	"recommendations.retention": 30 * 24 * time.Hour,

	"scheduler.tasks.session_reaper.enabled":           true,
	"scheduler.tasks.session_reaper.schedule":          "0 * * * * *",
	"scheduler.tasks.recommendation_retention.enabled":  true,
	"scheduler.tasks.recommendation_retention.schedule": "0 15 3 * * *",
	"scheduler.tasks.sql_maintenance.enabled":          true,
	"scheduler.tasks.sql_maintenance.schedule":         "0 30 3 * * 0",

	"messages.title":             "🌾 AI-Based Crop Recommendation System",
	"messages.welcome":           "🌾 Welcome! Send /recommend with your soil and climate readings, or just ask me anything about crops, fertilizers, irrigation or weather.",
	"messages.help":              "Commands:\n/recommend N P K temperature humidity pH rainfall - recommend a crop\n/help - show this message\n\nAny other message goes to the farmer assistant.",
	"messages.chat_placeholder":  "Ask about crops, fertilizers, irrigation, weather...",
	"messages.prediction_failed": "❌ The crop model could not make a recommendation for these values.",
	"messages.remote_transient":  "⏱️ The assistant is not responding right now. Please try again.",
	"messages.remote_auth":       "🚫 The assistant rejected our credentials. Please contact the administrator.",
	"messages.remote_quota":      "⏳ The assistant's usage limit was reached. Please try again later.",
	"messages.recommend_usage":   "Usage: /recommend N P K temperature humidity pH rainfall\nExample: /recommend 90 42 43 20.8 82 6.5 202.9",
}

// envAliases binds keys to environment variables outside the CROPWISE_
// namespace. Earlier names win.
var envAliases = map[string][]string{
	"assistant.api_key": {"CROPWISE_ASSISTANT_API_KEY", "GROQ_API_KEY", "GEMINI_API_KEY"},
	"telegram.token":    {"CROPWISE_TELEGRAM_TOKEN", "TELEGRAM_BOT_TOKEN"},
}
