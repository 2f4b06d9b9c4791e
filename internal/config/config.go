// Package config loads CropWise configuration from defaults, an optional
// config file, a .env file and CROPWISE_ environment variables.
package config

import "time"

// Config is the full application configuration.
type Config struct {
	Log             LogConfig             `mapstructure:"log"`
	Model           ModelConfig           `mapstructure:"model"`
	Assistant       AssistantConfig       `mapstructure:"assistant"`
	Session         SessionConfig         `mapstructure:"session"`
	Web             WebConfig             `mapstructure:"web"`
	Telegram        TelegramConfig        `mapstructure:"telegram"`
	Database        DatabaseConfig        `mapstructure:"database"`
	Recommendations RecommendationsConfig `mapstructure:"recommendations"`
	Scheduler       SchedulerConfig       `mapstructure:"scheduler"`
	Messages        MessagesConfig        `mapstructure:"messages"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `mapstructure:"level"  validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json console"`
	// File, when set, receives log output instead of stdout.
	File string `mapstructure:"file"`
}

// ModelConfig locates the classifier artifact.
type ModelConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// AssistantConfig configures the chat-completion provider and call policy.
// APIKey is checked when the client is built, so commands that never call
// the assistant can run without one.
type AssistantConfig struct {
	Provider    string  `mapstructure:"provider"    validate:"required,oneof=openai gemini"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"    validate:"omitempty,url"`
	Model       string  `mapstructure:"model"       validate:"required"`
	Instruction string  `mapstructure:"instruction" validate:"required"`
	Temperature float32 `mapstructure:"temperature" validate:"min=0,max=2"`
	MaxTokens   int     `mapstructure:"max_tokens"  validate:"min=0"`

	Timeout         time.Duration `mapstructure:"timeout"          validate:"min=1s,max=10m"`
	MaxRetries      int           `mapstructure:"max_retries"      validate:"min=0,max=5"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"      validate:"min=0,max=1m"`
	BreakerFailures int           `mapstructure:"breaker_failures" validate:"min=1,max=100"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown" validate:"min=1s,max=1h"`

	ContextPolicy    string `mapstructure:"context_policy"     validate:"required,oneof=full window"`
	MaxContextTokens int    `mapstructure:"max_context_tokens" validate:"min=256,max=2000000"`
	Tokenizer        string `mapstructure:"tokenizer"          validate:"required,oneof=tiktoken heuristic"`
}

// SessionConfig controls interactive session lifetime.
type SessionConfig struct {
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"min=1m,max=24h"`
}

// WebConfig configures the HTTP surface.
type WebConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Addr            string        `mapstructure:"addr"             validate:"required_if=Enabled true"`
	CookieName      string        `mapstructure:"cookie_name"      validate:"required"`
	SecureCookie    bool          `mapstructure:"secure_cookie"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"     validate:"min=1s"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"    validate:"min=1s"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=1s,max=5m"`
}

// TelegramConfig configures the optional Telegram surface.
type TelegramConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token" validate:"required_if=Enabled true"`
}

// DatabaseConfig locates the SQLite recommendation log.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// RecommendationsConfig controls the recommendation log.
type RecommendationsConfig struct {
	Retention time.Duration `mapstructure:"retention" validate:"min=1h"`
}

// SchedulerConfig maps task names to their schedule.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks" validate:"dive"`
}

// TaskConfig schedules one task. Schedule is a cron expression with a
// leading seconds field.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule" validate:"required_if=Enabled true"`
}

// MessagesConfig holds user-facing text shared by the surfaces.
type MessagesConfig struct {
	Title            string `mapstructure:"title"             validate:"required"`
	Welcome          string `mapstructure:"welcome"           validate:"required"`
	Help             string `mapstructure:"help"              validate:"required"`
	ChatPlaceholder  string `mapstructure:"chat_placeholder"  validate:"required"`
	PredictionFailed string `mapstructure:"prediction_failed" validate:"required"`
	RemoteTransient  string `mapstructure:"remote_transient"  validate:"required"`
	RemoteAuth       string `mapstructure:"remote_auth"       validate:"required"`
	RemoteQuota      string `mapstructure:"remote_quota"      validate:"required"`
	RecommendUsage   string `mapstructure:"recommend_usage"   validate:"required"`
}
