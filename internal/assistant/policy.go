package assistant

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/edgard/cropwise/internal/errors"
	"github.com/edgard/cropwise/internal/resilience"
	"github.com/edgard/cropwise/internal/text"
)

type guardedClient struct {
	next   Client
	policy *resilience.Policy
	logger *zap.Logger
}

// WithPolicy runs every call to next under policy and sanitizes the reply.
// Returned errors are always RemoteServiceErrors.
func WithPolicy(next Client, policy *resilience.Policy, logger *zap.Logger) Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &guardedClient{next: next, policy: policy, logger: logger.Named("assistant")}
}

func (g *guardedClient) Complete(ctx context.Context, req Request) (Reply, error) {
	startTime := time.Now()

	var reply Reply
	err := g.policy.Do(ctx, func(ctx context.Context) error {
		r, err := g.next.Complete(ctx, req)
		if err != nil {
			return err
		}

		content, err := text.Sanitize(r.Content)
		if err != nil {
			return apperrors.NewRemoteServiceError(apperrors.RemoteTransient, 0, false, "assistant returned an empty reply", err)
		}

		r.Content = content
		reply = r

		return nil
	})
	if err != nil {
		err = normalize(err)
		g.logger.Warn("assistant call failed",
			zap.String("kind", string(apperrors.RemoteKindOf(err))),
			zap.Int64("duration_ms", time.Since(startTime).Milliseconds()),
			zap.Error(err))

		return Reply{}, err
	}

	g.logger.Info("assistant reply generated",
		zap.String("model", reply.Model),
		zap.Int("messages", len(req.Messages)),
		zap.Int64("duration_ms", time.Since(startTime).Milliseconds()),
		zap.Int("completion_tokens", reply.CompletionTokens))

	return reply, nil
}

func normalize(err error) error {
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		return apperrors.NewRemoteServiceError(apperrors.RemoteTransient, 0, false, "assistant temporarily unavailable", err)
	}

	var remoteErr *apperrors.RemoteServiceError
	if errors.As(err, &remoteErr) {
		return err
	}

	return apperrors.NewRemoteServiceError(apperrors.RemoteTransient, 0, false, "assistant call failed", err)
}
