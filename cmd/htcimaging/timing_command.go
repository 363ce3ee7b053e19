package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"htcimaging/internal/config"
	"htcimaging/internal/timing"
)

func newTimingCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "timing [dir]",
		Short: "Summarize per-job untar and tclean timing files",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dir := cfg.Paths.WorkDir
			if len(args) == 1 {
				if dir, err = config.ExpandPath(args[0]); err != nil {
					return err
				}
			}
			records, err := timing.ParseDir(dir)
			if err != nil {
				return err
			}
			summary := timing.Summarize(records)
			if ctx.jsonOutput() {
				return writeJSON(cmd, struct {
					Dir     string          `json:"dir"`
					Records []timing.Record `json:"records"`
					Summary timing.Summary  `json:"summary"`
				}{dir, records, summary})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Timing files in %s: %d (%d complete)\n", dir, summary.Files, summary.Complete)
			if len(records) == 0 {
				return nil
			}
			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				if !rec.Complete {
					rows = append(rows, []string{strconv.Itoa(rec.JobID), "-", "-", "incomplete"})
					continue
				}
				rows = append(rows, []string{strconv.Itoa(rec.JobID), formatSeconds(rec.UntarDuration), formatSeconds(rec.TcleanDuration), "ok"})
			}
			fmt.Fprintln(out, renderTable([]string{"Job", "Untar (s)", "Tclean (s)", "Status"}, rows,
				[]columnAlignment{alignRight, alignRight, alignRight, alignLeft}))
			if summary.Complete > 0 {
				fmt.Fprintln(out, renderTable(statsHeaders, [][]string{
					statsRow("untar", summary.Untar),
					statsRow("tclean", summary.Tclean),
				}, rightAligned(len(statsHeaders))))
			}
			if len(summary.Incomplete) > 0 {
				ids := make([]string, 0, len(summary.Incomplete))
				for _, id := range summary.Incomplete {
					ids = append(ids, strconv.Itoa(id))
				}
				fmt.Fprintf(out, "Jobs without imaging results: %s\n", strings.Join(ids, ", "))
			}
			return nil
		},
	}
}
