package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/warriorguo/featureflow/features"
	"github.com/warriorguo/featureflow/types"
)

var runFlags struct {
	id string
}

var runCmd = &cobra.Command{
	Use:   "run [feature-list]",
	Short: "Run a feature list on the simulated microscope",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVar(&runFlags.id, "id", "", "acquisition id (generated when empty)")
}

func listArg(args []string) string {
	if len(args) == 0 {
		return features.ChannelLoopList
	}
	return args[0]
}

// runList runs one acquisition to its end on a fresh rig.
func runList(ctx context.Context, list, id string) (*rig, *types.AcquisitionStatus, error) {
	r, err := loadRig()
	if err != nil {
		return nil, nil, err
	}
	id, err = r.start(ctx, list, id, nil)
	if err != nil {
		r.Close(context.Background())
		return nil, nil, err
	}
	status, err := r.wait(ctx, id)
	if err != nil {
		r.Close(context.Background())
		return nil, nil, err
	}
	return r, status, nil
}

func printStatus(out io.Writer, status *types.AcquisitionStatus) {
	fmt.Fprintf(out, "Acquisition: %s\n", status.ID)
	fmt.Fprintf(out, "List:        %s\n", status.FeatureList)
	fmt.Fprintf(out, "Status:      %s\n", status.Status)
	fmt.Fprintf(out, "Ticks:       %d\n", status.Ticks)
	if len(status.Cursor) > 0 {
		fmt.Fprintf(out, "Cursor:      %s\n", strings.Join(status.Cursor, ", "))
	}
	if status.FailedNode != "" {
		fmt.Fprintf(out, "Failed:      %s at tick %d\n", status.FailedNode, status.FailedTick)
	}
	if status.LastError != "" {
		fmt.Fprintf(out, "Error:       %s\n", status.LastError)
	}
	fmt.Fprintf(out, "Duration:    %s\n", status.EndTime.Sub(status.StartTime))
}

func runRun(cmd *cobra.Command, args []string) error {
	r, status, err := runList(cmd.Context(), listArg(args), runFlags.id)
	if err != nil {
		return err
	}
	defer r.Close(context.Background())

	printStatus(cmd.OutOrStdout(), status)
	if status.Status != types.Finished {
		return errors.Errorf("acquisition %s %s", status.ID, status.Status)
	}
	return nil
}
