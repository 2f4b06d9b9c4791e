package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/edgard/cropwise/internal/config"
	"github.com/edgard/cropwise/internal/logger"
)

const rootLongDesc string = `CropWise recommends a crop from seven soil and climate readings
and answers farming questions through a hosted language model.

Configuration is read from config.yaml (or --config), a .env file and
CROPWISE_ environment variables.`

// rootFlags are shared by every subcommand.
type rootFlags struct {
	configPath string
}

// NewRootCmd builds the cropwise command tree.
func NewRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "cropwise",
		Short:         "Crop recommendation and farmer assistant",
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to configuration file (default ./config.yaml)")

	cmd.AddCommand(newServeCmd(flags))
	cmd.AddCommand(newTUICmd(flags))
	cmd.AddCommand(newPredictCmd(flags))

	return cmd
}

// loadConfig loads the configuration and builds the logger it describes.
// The returned closer flushes and releases the logger.
func (f *rootFlags) loadConfig() (*config.Config, *zap.Logger, func(), error) {
	cfg, err := config.LoadConfig(f.configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	log, closeLog, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, nil, err
	}

	closer := func() {
		_ = log.Sync()
		_ = closeLog()
	}

	return cfg, log, closer, nil
}
