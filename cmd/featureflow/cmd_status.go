package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/warriorguo/featureflow/types"
)

var statusFlags struct {
	markdown bool
}

var statusCmd = &cobra.Command{
	Use:   "status [feature-list]",
	Short: "Run a feature list and print its node trace records",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusFlags.markdown, "markdown", false, "render the table as Markdown")
}

// renderRecords prints one row per node and phase, in tree path order.
func renderRecords(out io.Writer, records map[string]*types.NodeTraceRecord, markdown bool) {
	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w := table.NewWriter()
	w.SetOutputMirror(out)
	w.SetStyle(table.StyleLight)
	w.AppendHeader(table.Row{"Node", "Phase", "Count", "Tick", "Verdict", "Duration", "Error"})
	w.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 7, WidthMax: 60},
	})
	failed := 0
	for _, k := range keys {
		rec := records[k]
		if rec.Error != "" {
			failed++
		}
		w.AppendRow(table.Row{
			strings.Join(rec.Path, "."),
			rec.Phase,
			rec.Count,
			rec.Tick,
			rec.Verdict,
			rec.EndTime.Sub(rec.StartTime),
			rec.Error,
		})
	}
	w.AppendFooter(table.Row{"", "", "", "", "", "failed", failed})

	if markdown {
		w.RenderMarkdown()
		return
	}
	w.Render()
}

func runStatus(cmd *cobra.Command, args []string) error {
	r, status, err := runList(cmd.Context(), listArg(args), "")
	if err != nil {
		return err
	}
	defer r.Close(context.Background())

	records, err := r.engine.ListAcquisitionRecords(cmd.Context(), status.ID)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	printStatus(out, status)
	fmt.Fprintln(out)
	renderRecords(out, records, statusFlags.markdown)
	return nil
}
