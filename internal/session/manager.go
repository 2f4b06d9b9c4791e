package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edgard/cropwise/internal/assistant"
	"github.com/edgard/cropwise/internal/config"
	"github.com/edgard/cropwise/internal/crop"
	"github.com/edgard/cropwise/internal/text"
)

// Options configures the sessions a Manager creates.
type Options struct {
	Assistant   assistant.Client
	Recommender Recommender
	Instruction string
	// Window limits the context sent with each message. Nil sends the
	// whole transcript.
	Window      *text.Window
	Notices     Notices
	IdleTimeout time.Duration
	// Clock replaces time.Now.
	Clock func() time.Time
}

// NoticesFrom picks the failure notices out of the configured messages.
func NoticesFrom(cfg config.MessagesConfig) Notices {
	return Notices{
		PredictionFailed: cfg.PredictionFailed,
		RemoteTransient:  cfg.RemoteTransient,
		RemoteAuth:       cfg.RemoteAuth,
		RemoteQuota:      cfg.RemoteQuota,
	}
}

// WindowFor returns the context window configured for cfg, or nil for the
// full policy.
func WindowFor(cfg config.AssistantConfig, logger *zap.Logger) *text.Window {
	if cfg.ContextPolicy != "window" {
		return nil
	}

	var counter text.Counter = text.HeuristicCounter{}
	if cfg.Tokenizer == "tiktoken" {
		counter = text.NewTiktokenCounter(logger)
	}

	return text.NewWindow(cfg.MaxContextTokens, counter)
}

// Manager owns the live sessions.
type Manager struct {
	opts   Options
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager returns an empty manager.
func NewManager(opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	return &Manager{
		opts:     opts,
		logger:   logger.Named("session"),
		now:      now,
		sessions: make(map[string]*Session),
	}
}

// Create starts a session with a random id.
func (m *Manager) Create(surface string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.createLocked(uuid.NewString(), surface)
}

// GetOrCreate returns the session with id, starting it if it does not
// exist. An empty id gets a random one.
func (m *Manager) GetOrCreate(id, surface string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id == "" {
		id = uuid.NewString()
	}
	if s, ok := m.sessions[id]; ok {
		return s
	}

	return m.createLocked(id, surface)
}

func (m *Manager) createLocked(id, surface string) *Session {
	s := &Session{
		ID:          id,
		Surface:     surface,
		CreatedAt:   m.now(),
		panel:       crop.NewPanel(),
		assistant:   m.opts.Assistant,
		recommender: m.opts.Recommender,
		builder:     contextBuilder{instruction: m.opts.Instruction, window: m.opts.Window},
		notices:     m.opts.Notices,
		logger:      m.logger.With(zap.String("session_id", id), zap.String("surface", surface)),
		now:         m.now,
	}
	s.touch()
	m.sessions[id] = s

	s.logger.Debug("session started")

	return s
}

// End destroys the session with id. It reports whether one existed.
func (m *Manager) End(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return false
	}

	s.end()
	s.logger.Debug("session ended")

	return true
}

// Reap ends every session idle for longer than the idle timeout and
// returns how many were ended.
func (m *Manager) Reap() int {
	if m.opts.IdleTimeout <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.opts.IdleTimeout)

	m.mu.Lock()
	var idle []*Session
	for id, s := range m.sessions {
		if s.LastActive().Before(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		s.end()
	}

	if len(idle) > 0 {
		m.logger.Info("reaped idle sessions", zap.Int("count", len(idle)))
	}

	return len(idle)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.sessions)
}
