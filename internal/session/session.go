// Package session holds interactive sessions: the input panel, the last
// recommendation and the assistant transcript of one user.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/edgard/cropwise/internal/assistant"
	"github.com/edgard/cropwise/internal/crop"
	apperrors "github.com/edgard/cropwise/internal/errors"
	"github.com/edgard/cropwise/internal/predictor"
)

// ErrEnded is returned by actions on a session that has been ended.
var ErrEnded = errors.New("session ended")

// Recommender produces and records a recommendation for one session.
type Recommender interface {
	Recommend(ctx context.Context, sessionID, surface string, v crop.InputVector) (predictor.Recommendation, error)
}

// Exchange is what one Send appended to the transcript. Reply is nil when
// the exchange failed or the message was empty.
type Exchange struct {
	User  *Turn `json:"user,omitempty"`
	Reply *Turn `json:"reply,omitempty"`
}

// Turns lists the appended turns in order.
func (e Exchange) Turns() []Turn {
	var turns []Turn
	if e.User != nil {
		turns = append(turns, *e.User)
	}
	if e.Reply != nil {
		turns = append(turns, *e.Reply)
	}

	return turns
}

// Snapshot is a consistent copy of the session state for rendering.
type Snapshot struct {
	ID             string
	Panel          crop.InputVector
	Recommendation *predictor.Recommendation
	Transcript     []Turn
	Flash          []string
}

// Session serializes the actions of one user. Every action holds the
// session lock until it completes.
type Session struct {
	ID        string
	Surface   string
	CreatedAt time.Time

	lastActive atomic.Int64

	mu          sync.Mutex
	ended       bool
	panel       *crop.Panel
	last        *predictor.Recommendation
	transcript  []Turn
	flash       []string
	assistant   assistant.Client
	recommender Recommender
	builder     contextBuilder
	notices     Notices
	logger      *zap.Logger
	now         func() time.Time
}

// LastActive is when the session last started an action.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

func (s *Session) touch() {
	s.lastActive.Store(s.now().UnixNano())
}

// Send appends message as a user turn, asks the assistant and appends the
// reply. Messages that are empty after trimming are ignored. On a remote
// failure the user turn is kept with a failure marker and the error is
// returned with the exchange.
func (s *Session) Send(ctx context.Context, message string) (Exchange, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Exchange{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return Exchange{}, ErrEnded
	}
	s.touch()

	s.transcript = append(s.transcript, Turn{Role: assistant.RoleUser, Content: message, At: s.now()})
	userIdx := len(s.transcript) - 1

	req := s.builder.build(s.transcript)
	s.logger.Debug("sending message",
		zap.Int("transcript_turns", len(s.transcript)),
		zap.Int("context_messages", len(req.Messages)))

	reply, err := s.assistant.Complete(ctx, req)
	if err != nil {
		kind := apperrors.RemoteKindOf(err)
		s.transcript[userIdx].Failure = &Failure{Kind: kind, Notice: s.notices.ForRemote(kind)}
		user := s.transcript[userIdx]
		s.logger.Warn("exchange failed", zap.String("kind", string(kind)), zap.Error(err))

		return Exchange{User: &user}, err
	}

	s.transcript = append(s.transcript, Turn{Role: assistant.RoleAssistant, Content: reply.Content, At: s.now()})
	user, answer := s.transcript[userIdx], s.transcript[userIdx+1]

	return Exchange{User: &user, Reply: &answer}, nil
}

// Recommend applies entries to the panel and predicts from the resulting
// values. The returned notices describe clamped or refused entries.
func (s *Session) Recommend(ctx context.Context, entries map[crop.Field]string) (predictor.Recommendation, []crop.Notice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return predictor.Recommendation{}, nil, ErrEnded
	}
	s.touch()

	notices := s.panel.Apply(entries)
	for _, n := range notices {
		s.flash = append(s.flash, n.Message)
	}

	rec, err := s.recommender.Recommend(ctx, s.ID, s.Surface, s.panel.Vector())
	if err != nil {
		s.flash = append(s.flash, s.notices.PredictionFailed)

		return predictor.Recommendation{}, notices, err
	}
	s.last = &rec

	return rec, notices, nil
}

// Transcript returns a copy of the transcript.
func (s *Session) Transcript() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Turn(nil), s.transcript...)
}

// Snapshot copies the session state and consumes pending flash notices.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:         s.ID,
		Panel:      s.panel.Vector(),
		Transcript: append([]Turn(nil), s.transcript...),
		Flash:      s.flash,
	}
	if s.last != nil {
		rec := *s.last
		snap.Recommendation = &rec
	}
	s.flash = nil

	return snap
}

// end clears the transcript and refuses further actions. It waits for a
// running action to finish.
func (s *Session) end() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ended = true
	s.transcript = nil
	s.flash = nil
	s.last = nil
}
