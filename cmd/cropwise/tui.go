package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/edgard/cropwise/internal/app"
	"github.com/edgard/cropwise/internal/tui"
)

type tuiCommander struct {
	flags         *rootFlags
	markdownStyle string
}

func newTUICmd(flags *rootFlags) *cobra.Command {
	cmder := &tuiCommander{flags: flags}

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Open the terminal interface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&cmder.markdownStyle, "style", "", "Markdown style for replies (dark, light, notty, ...; default auto)")

	return cmd
}

func (c *tuiCommander) run(ctx context.Context) error {
	cfg, log, closeLog, err := c.flags.loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	// Log lines on stdout would corrupt the screen.
	if cfg.Log.File == "" {
		log = zap.NewNop()
	}

	core, err := app.NewCore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer core.Close()

	sess := core.Sessions.Create(tui.Surface)
	defer core.Sessions.End(sess.ID)

	return tui.Run(ctx, sess, tui.Options{
		Messages:      cfg.Messages,
		MarkdownStyle: c.markdownStyle,
		Logger:        log,
	})
}
