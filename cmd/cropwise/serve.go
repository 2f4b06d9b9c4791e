package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/edgard/cropwise/internal/app"
	"github.com/edgard/cropwise/internal/app/tasks"
	"github.com/edgard/cropwise/internal/telegram"
	"github.com/edgard/cropwise/internal/web"
)

const serveLongDesc string = `Run the web surface, the optional Telegram bot and the
housekeeping scheduler until interrupted.`

const typingInterval = 4 * time.Second

type serveCommander struct {
	flags *rootFlags
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	cmder := &serveCommander{flags: flags}

	return &cobra.Command{
		Use:   "serve",
		Short: "Run the web server, Telegram bot and scheduler",
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context())
		},
	}
}

func (c *serveCommander) run(ctx context.Context) error {
	cfg, log, closeLog, err := c.flags.loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	log.Info("configuration loaded", zap.Any("config", cfg.Redacted()))

	core, err := app.NewCore(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", zap.Error(err))
		return err
	}
	defer core.Close()

	var server *http.Server
	if cfg.Web.Enabled {
		srv, err := web.NewServer(cfg.Web, cfg.Messages, core.Sessions, core.Recommend, log)
		if err != nil {
			return fmt.Errorf("failed to build web surface: %w", err)
		}
		server = srv.HTTPServer()
	}

	var tg *tgbot.Bot
	if cfg.Telegram.Enabled {
		deps := telegram.HandlerDeps{
			Logger:         log,
			Messages:       cfg.Messages,
			Sessions:       core.Sessions,
			TypingInterval: typingInterval,
		}
		tg, err = telegram.NewTelegramBot(cfg.Telegram.Token, deps)
		if err != nil {
			log.Error("failed to create Telegram bot", zap.Error(err))
			return err
		}
		if err := telegram.RegisterHandlers(tg, log, telegram.RegisterAllCommands(deps)); err != nil {
			log.Error("failed to register Telegram handlers", zap.Error(err))
			return err
		}
	}

	if server == nil && tg == nil {
		return fmt.Errorf("no surface enabled: set web.enabled or telegram.enabled")
	}

	sched, err := app.NewScheduler(log, cfg.Scheduler, tasks.RegisterAllTasks(tasks.TaskDeps{
		Logger:    log,
		Store:     core.Store,
		Sessions:  core.Sessions,
		Retention: cfg.Recommendations.Retention,
	}))
	if err != nil {
		return err
	}

	return app.New(log, server, tg, sched, cfg.Web.ShutdownTimeout).Run(ctx)
}
