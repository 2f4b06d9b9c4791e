// Package app wires the CropWise components together and runs the
// long-lived surfaces under one errgroup.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/edgard/cropwise/internal/assistant"
	"github.com/edgard/cropwise/internal/config"
	"github.com/edgard/cropwise/internal/database"
	apperrors "github.com/edgard/cropwise/internal/errors"
	"github.com/edgard/cropwise/internal/predictor"
	"github.com/edgard/cropwise/internal/recommend"
	"github.com/edgard/cropwise/internal/session"
)

// Core holds the components shared by every surface.
type Core struct {
	Config    *config.Config
	Logger    *zap.Logger
	Predictor *predictor.Predictor
	Store     database.Store
	Recommend *recommend.Service
	Assistant assistant.Client
	Sessions  *session.Manager

	db *sqlx.DB
}

// NewCore loads the model, opens the database and builds the assistant
// client. Every failure is a StartupError.
func NewCore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Core, error) {
	model, err := predictor.LoadModel(cfg.Model.Path)
	if err != nil {
		return nil, err
	}
	logger.Info("crop model loaded",
		zap.String("path", cfg.Model.Path),
		zap.String("estimator", model.Estimator()),
		zap.Int("trees", model.Trees()),
		zap.Int("classes", len(model.Classes())))

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		return nil, apperrors.NewStartupError("failed to open the recommendation log", err)
	}

	client, err := assistant.New(ctx, cfg.Assistant, logger)
	if err != nil {
		database.CloseDB(db, logger)
		return nil, err
	}

	store := database.NewStore(db, logger)
	pred := predictor.New(model, logger)
	svc := recommend.NewService(pred, store, logger)

	sessions := session.NewManager(session.Options{
		Assistant:   client,
		Recommender: svc,
		Instruction: cfg.Assistant.Instruction,
		Window:      session.WindowFor(cfg.Assistant, logger),
		Notices:     session.NoticesFrom(cfg.Messages),
		IdleTimeout: cfg.Session.IdleTimeout,
	}, logger)

	return &Core{
		Config:    cfg,
		Logger:    logger,
		Predictor: pred,
		Store:     store,
		Recommend: svc,
		Assistant: client,
		Sessions:  sessions,
		db:        db,
	}, nil
}

// Close releases the database.
func (c *Core) Close() {
	database.CloseDB(c.db, c.Logger)
}

// App runs the web server, the Telegram poller and the scheduler. Nil
// components are not started.
type App struct {
	logger          *zap.Logger
	server          *http.Server
	telegram        *tgbot.Bot
	scheduler       *Scheduler
	shutdownTimeout time.Duration
}

// New creates an App from already built components.
func New(logger *zap.Logger, server *http.Server, telegram *tgbot.Bot, scheduler *Scheduler, shutdownTimeout time.Duration) *App {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &App{
		logger:          logger.Named("app"),
		server:          server,
		telegram:        telegram,
		scheduler:       scheduler,
		shutdownTimeout: shutdownTimeout,
	}
}

// Run blocks until ctx is cancelled or a component fails, then shuts every
// component down.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting components")

	g, gCtx := errgroup.WithContext(ctx)

	if a.server != nil {
		srv := a.server
		g.Go(func() error {
			a.logger.Info("web server listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("web server failed: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			<-gCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gCtx), a.shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("web server shutdown failed: %w", err)
			}
			a.logger.Info("web server stopped")
			return nil
		})
	}

	if a.telegram != nil {
		g.Go(func() error {
			a.logger.Info("starting Telegram listener")
			a.telegram.Start(gCtx)

			if gCtx.Err() == nil {
				return fmt.Errorf("telegram listener stopped unexpectedly")
			}
			a.logger.Info("Telegram listener stopped")
			return nil
		})
	}

	if a.scheduler != nil {
		g.Go(func() error {
			if err := a.scheduler.Start(gCtx); err != nil {
				return fmt.Errorf("failed to start scheduler: %w", err)
			}

			<-gCtx.Done()
			if err := a.scheduler.Stop(); err != nil {
				a.logger.Error("error stopping scheduler", zap.Error(err))
			}
			return nil
		})
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("stopped due to error", zap.Error(err))
		return err
	}

	a.logger.Info("stopped gracefully")

	return nil
}
