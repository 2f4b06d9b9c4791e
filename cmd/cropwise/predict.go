package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edgard/cropwise/internal/crop"
	"github.com/edgard/cropwise/internal/predictor"
)

const predictLongDesc string = `Predict a crop for one set of readings and print the result.

Values outside a field's range are clamped, as on the input panel.

Example:
  cropwise predict --n 90 --p 42 --k 43 --temperature 20.8 --humidity 82 --ph 6.5 --rainfall 202.9`

type predictCommander struct {
	flags     *rootFlags
	modelPath string
	values    map[crop.Field]*string
}

func newPredictCmd(flags *rootFlags) *cobra.Command {
	cmder := &predictCommander{flags: flags, values: make(map[crop.Field]*string, crop.NumFeatures)}

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict a crop from the command line",
		Long:  predictLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	cmd.Flags().StringVar(&cmder.modelPath, "model", "", "Model artifact path (default from configuration)")
	for _, b := range crop.Bounds {
		v := new(string)
		cmder.values[b.Field] = v
		cmd.Flags().StringVar(v, string(b.Field), "", fmt.Sprintf("%s, %s to %s", b.Label, b.Format(b.Min), b.Format(b.Max)))
		_ = cmd.MarkFlagRequired(string(b.Field))
	}

	return cmd
}

func (c *predictCommander) run(cmd *cobra.Command) error {
	path := c.modelPath
	if path == "" {
		cfg, _, closeLog, err := c.flags.loadConfig()
		if err != nil {
			return err
		}
		closeLog()
		path = cfg.Model.Path
	}

	model, err := predictor.LoadModel(path)
	if err != nil {
		return err
	}

	entries := make(map[crop.Field]string, len(c.values))
	for field, v := range c.values {
		entries[field] = *v
	}

	panel := crop.NewPanel()
	for _, n := range panel.Apply(entries) {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning:", n.Message)
	}

	rec, err := predictor.New(model, nil).Predict(panel.Vector())
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), rec.Headline())

	return nil
}
