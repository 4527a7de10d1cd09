package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var renderFlags struct {
	run bool
}

var renderCmd = &cobra.Command{
	Use:   "render [feature-list]",
	Short: "Print the DOT graph of a feature list",
	Long: "Print the DOT graph of a feature list. With --run the list is run first\n" +
		"and the graph is colored by the trace records of that run.",
	Args: cobra.MaximumNArgs(1),
	RunE: runRender,
}

func init() {
	renderCmd.Flags().BoolVar(&renderFlags.run, "run", false, "run the list and render its trace")
}

func runRender(cmd *cobra.Command, args []string) error {
	list := listArg(args)
	if !renderFlags.run {
		r, err := loadRig()
		if err != nil {
			return err
		}
		defer r.Close(context.Background())

		dot, err := r.engine.RenderFeatureList(list)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), dot)
		return nil
	}

	r, status, err := runList(cmd.Context(), list, "")
	if err != nil {
		return err
	}
	defer r.Close(context.Background())

	dot, err := r.engine.RenderAcquisitionStatus(cmd.Context(), status.ID)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), dot)
	return nil
}
