package assistant

import (
	"context"
	"errors"
	"time"

	gopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/edgard/cropwise/internal/config"
	apperrors "github.com/edgard/cropwise/internal/errors"
	"github.com/edgard/cropwise/internal/text"
)

// OpenAIClient calls any OpenAI-compatible chat-completion endpoint.
type OpenAIClient struct {
	client      *gopenai.Client
	model       string
	temperature float32
	maxTokens   int
	logger      *zap.Logger
}

// NewOpenAI creates a client for cfg.BaseURL, or the public OpenAI API when
// it is empty.
func NewOpenAI(cfg config.AssistantConfig, logger *zap.Logger) *OpenAIClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	clientConfig := gopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIClient{
		client:      gopenai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logger.Named("openai"),
	}
}

func (c *OpenAIClient) Complete(ctx context.Context, req Request) (Reply, error) {
	messages := make([]gopenai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.Instruction != "" {
		messages = append(messages, gopenai.ChatCompletionMessage{
			Role:    gopenai.ChatMessageRoleSystem,
			Content: req.Instruction,
		})
	}

	for _, msg := range req.Messages {
		role := gopenai.ChatMessageRoleUser
		if msg.Role == RoleAssistant {
			role = gopenai.ChatMessageRoleAssistant
		}
		messages = append(messages, gopenai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}

	tokens := text.EstimateTokens(req.Instruction)
	for _, msg := range req.Messages {
		tokens += text.EstimateTokens(msg.Content)
	}
	c.logger.Debug("sending chat completion",
		zap.String("model", c.model),
		zap.Int("messages", len(messages)),
		zap.Int("estimated_tokens", tokens))

	apiStartTime := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, gopenai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return Reply{}, classifyOpenAI(err)
	}

	if len(resp.Choices) == 0 {
		return Reply{}, apperrors.NewRemoteServiceError(apperrors.RemoteTransient, 0, false,
			"openai returned no choices", errors.New("empty choices"))
	}

	c.logger.Debug("chat completion received",
		zap.Int64("api_ms", time.Since(apiStartTime).Milliseconds()),
		zap.Int("total_tokens", resp.Usage.TotalTokens))

	model := resp.Model
	if model == "" {
		model = c.model
	}

	return Reply{
		Content:          resp.Choices[0].Message.Content,
		Model:            model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}
