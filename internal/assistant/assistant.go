// Package assistant talks to hosted chat-completion providers.
//
// Providers implement Client. New builds the configured provider and
// wraps it with the call policy, so callers receive sanitized replies and
// errors classified as RemoteServiceError.
package assistant

import "context"

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the conversation sent to a provider.
type Message struct {
	Role    Role
	Content string
}

// Request is a single completion call. Instruction is sent in the provider's
// system slot ahead of Messages.
type Request struct {
	Instruction string
	Messages    []Message
}

// Reply is the provider's answer.
type Reply struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Client sends a conversation and returns the single reply.
type Client interface {
	Complete(ctx context.Context, req Request) (Reply, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req Request) (Reply, error)

func (f ClientFunc) Complete(ctx context.Context, req Request) (Reply, error) {
	return f(ctx, req)
}
