package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/edgard/cropwise/internal/config"
	apperrors "github.com/edgard/cropwise/internal/errors"
)

// GeminiClient calls the Gemini API through the genai SDK.
type GeminiClient struct {
	client        *genai.Client
	model         string
	contentConfig genai.GenerateContentConfig
	logger        *zap.Logger
}

// NewGemini creates a Gemini client. cfg.BaseURL overrides the API endpoint.
func NewGemini(ctx context.Context, cfg config.AssistantConfig, logger *zap.Logger) (*GeminiClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	gi, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	temperature := cfg.Temperature
	contentConfig := genai.GenerateContentConfig{Temperature: &temperature}
	if cfg.MaxTokens > 0 {
		contentConfig.MaxOutputTokens = int32(cfg.MaxTokens)
	}

	return &GeminiClient{
		client:        gi,
		model:         cfg.Model,
		contentConfig: contentConfig,
		logger:        logger.Named("gemini"),
	}, nil
}

func (c *GeminiClient) Complete(ctx context.Context, req Request) (Reply, error) {
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, msg := range req.Messages {
		var role genai.Role = genai.RoleUser
		if msg.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}

	cfg := c.contentConfig
	if req.Instruction != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.Instruction}}}
	}

	c.logger.Debug("sending generate content request",
		zap.String("model", c.model),
		zap.Int("contents", len(contents)))

	apiStartTime := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, &cfg)
	if err != nil {
		return Reply{}, classifyGemini(err)
	}

	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" && fb.BlockReason != genai.BlockedReasonUnspecified {
		return Reply{}, apperrors.NewRemoteServiceError(apperrors.RemoteTransient, 0, false,
			"gemini blocked the prompt", fmt.Errorf("block reason %s", resp.PromptFeedback.BlockReason))
	}

	content := resp.Text()
	if content == "" {
		return Reply{}, apperrors.NewRemoteServiceError(apperrors.RemoteTransient, 0, false,
			"gemini returned no text", errors.New("empty candidates"))
	}

	reply := Reply{Content: content, Model: c.model}
	if resp.UsageMetadata != nil {
		reply.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		reply.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	c.logger.Debug("generate content received",
		zap.Int64("api_ms", time.Since(apiStartTime).Milliseconds()),
		zap.Int("prompt_tokens", reply.PromptTokens))

	return reply, nil
}
