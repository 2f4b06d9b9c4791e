package session

import (
	"time"

	"github.com/edgard/cropwise/internal/assistant"
	apperrors "github.com/edgard/cropwise/internal/errors"
	"github.com/edgard/cropwise/internal/text"
)

// Failure marks a user turn whose exchange did not get a reply.
type Failure struct {
	Kind   apperrors.RemoteKind `json:"kind"`
	Notice string               `json:"notice"`
}

// Turn is one transcript entry.
type Turn struct {
	Role    assistant.Role `json:"role"`
	Content string         `json:"content"`
	At      time.Time      `json:"at"`
	Failure *Failure       `json:"failure,omitempty"`
}

// Failed reports whether the turn carries a failure marker.
func (t Turn) Failed() bool { return t.Failure != nil }

// Notices holds the user-facing text for failures.
type Notices struct {
	PredictionFailed string
	RemoteTransient  string
	RemoteAuth       string
	RemoteQuota      string
}

// ForRemote returns the notice shown for a failed exchange of kind.
func (n Notices) ForRemote(kind apperrors.RemoteKind) string {
	switch kind {
	case apperrors.RemoteAuth:
		return n.RemoteAuth
	case apperrors.RemoteQuota:
		return n.RemoteQuota
	default:
		return n.RemoteTransient
	}
}

// contextBuilder turns a transcript into the messages of one request.
// A nil window sends every successful turn.
type contextBuilder struct {
	instruction string
	window      *text.Window
}

func (b contextBuilder) build(turns []Turn) assistant.Request {
	messages := make([]assistant.Message, 0, len(turns))
	for _, t := range turns {
		if t.Failed() {
			continue
		}
		messages = append(messages, assistant.Message{Role: t.Role, Content: t.Content})
	}

	if b.window != nil && len(messages) > 0 {
		contents := make([]string, len(messages))
		for i, m := range messages {
			contents[i] = m.Content
		}

		start := b.window.Select(contents, b.window.Counter.Count(b.instruction))
		// Drop whole exchanges so the context opens with a user turn.
		for start < len(messages)-1 && messages[start].Role != assistant.RoleUser {
			start++
		}
		messages = messages[start:]
	}

	return assistant.Request{Instruction: b.instruction, Messages: messages}
}
