package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"htcimaging/internal/spwplan"
)

func newPlanCommand(ctx *commandContext) *cobra.Command {
	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Plan how a dataset is split across jobs",
	}
	planCmd.AddCommand(newPlanSPWCommand(ctx))
	return planCmd
}

func newPlanSPWCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "spw <ms> <njob> <spws> <nchan>",
		Short: "Split spectral windows into per-job channel ranges",
		Long: "Split spectral windows into per-job channel ranges.\n\n" +
			"<spws> is a comma-separated list of spectral window ids; <nchan> is either one\n" +
			"channel count for every window or one count per window.",
		Args:        cobra.ExactArgs(4),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			njob, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("njob: %w", err)
			}
			spws, err := spwplan.ParseSPWs(args[2])
			if err != nil {
				return err
			}
			counts, err := spwplan.ParseCounts(args[3])
			if err != nil {
				return err
			}
			chunks, err := spwplan.Plan(args[0], njob, spws, counts)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, chunks)
			}

			out := cmd.OutOrStdout()
			widest := 0
			rows := make([][]string, 0, len(chunks))
			for _, c := range chunks {
				widest = max(widest, c.Channels())
				rows = append(rows, []string{c.SPW, c.Selection, strconv.Itoa(c.Channels()), c.Name})
			}
			fmt.Fprintf(out, "%d chunk(s) of up to %d channels\n", len(chunks), widest)
			fmt.Fprintln(out, renderTable([]string{"SPW", "Selection", "Channels", "Output"}, rows,
				[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft}))
			return nil
		},
	}
}
