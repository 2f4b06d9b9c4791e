// Package web serves the CropWise page and its JSON API.
package web

import (
	"context"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/edgard/cropwise/internal/config"
	"github.com/edgard/cropwise/internal/database"
	"github.com/edgard/cropwise/internal/session"
)

// Surface is the session surface name for web sessions.
const Surface = "web"

const (
	defaultRecentLimit = 20
	maxFormBytes       = 64 << 10
)

// Sessions looks up or starts web sessions.
type Sessions interface {
	GetOrCreate(id, surface string) *session.Session
}

// RecentLister reads the recommendation log.
type RecentLister interface {
	Recent(ctx context.Context, limit int) ([]database.Recommendation, error)
}

// Server holds the handlers of the web surface.
type Server struct {
	cfg      config.WebConfig
	messages config.MessagesConfig
	sessions Sessions
	recent   RecentLister
	page     *template.Template
	markdown *Markdown
	logger   *zap.Logger
}

// NewServer builds the web surface. recent may be nil, in which case the
// recommendation log route returns an empty list.
func NewServer(cfg config.WebConfig, messages config.MessagesConfig, sessions Sessions, recent RecentLister, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	page, err := parsePage()
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:      cfg,
		messages: messages,
		sessions: sessions,
		recent:   recent,
		page:     page,
		markdown: NewMarkdown(),
		logger:   logger.Named("web"),
	}, nil
}

// Routes returns the router with every route and middleware mounted.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.sessionCookie)

		r.Get("/", s.handleIndex)
		r.Post("/recommend", s.handleRecommendForm)
		r.Post("/chat", s.handleChatForm)

		r.Route("/api/v1", func(r chi.Router) {
			r.Post("/recommend", s.handleRecommendAPI)
			r.Post("/chat", s.handleChatAPI)
			r.Get("/transcript", s.handleTranscript)
			r.Get("/recommendations", s.handleRecommendations)
		})
	})

	return r
}

// HTTPServer wraps Routes in an http.Server configured from the web config.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Routes(),
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
