package assistant

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/edgard/cropwise/internal/config"
	apperrors "github.com/edgard/cropwise/internal/errors"
	"github.com/edgard/cropwise/internal/resilience"
)

// PolicyConfig derives the call policy from the assistant configuration.
func PolicyConfig(cfg config.AssistantConfig) resilience.Config {
	policy := resilience.DefaultConfig("assistant-" + cfg.Provider)
	policy.Timeout = cfg.Timeout
	policy.MaxRetries = cfg.MaxRetries
	policy.InitialInterval = cfg.RetryDelay
	policy.BreakerFailures = cfg.BreakerFailures
	policy.BreakerCooldown = cfg.BreakerCooldown
	policy.Retryable = apperrors.IsRetryable

	return policy
}

// New creates the configured provider wrapped with the call policy.
// A missing API key is a StartupError.
func New(ctx context.Context, cfg config.AssistantConfig, logger *zap.Logger) (Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if cfg.APIKey == "" {
		return nil, apperrors.NewStartupError(
			fmt.Sprintf("no API key configured for assistant provider %q", cfg.Provider), nil)
	}

	logger.Info("initializing assistant client",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model))

	var provider Client
	switch cfg.Provider {
	case "openai":
		provider = NewOpenAI(cfg, logger)
	case "gemini":
		client, err := NewGemini(ctx, cfg, logger)
		if err != nil {
			return nil, apperrors.NewStartupError("failed to create Gemini client", err)
		}
		provider = client
	default:
		return nil, apperrors.NewStartupError(fmt.Sprintf("unknown assistant provider %q", cfg.Provider), nil)
	}

	return WithPolicy(provider, resilience.New(PolicyConfig(cfg), logger), logger), nil
}
