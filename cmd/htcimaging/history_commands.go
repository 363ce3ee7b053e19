package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"htcimaging/internal/config"
	"htcimaging/internal/history"
	"htcimaging/internal/logging"
	"htcimaging/internal/services"
	"htcimaging/internal/services/condor"
	"htcimaging/internal/store"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Import and analyse HTCondor job history",
		Long: "Import and analyse HTCondor job history.\n\n" +
			"Analysis commands take a cluster id that was imported earlier, a path to a\n" +
			"condor_history -json file, or nothing to use the most recent submission.",
	}
	historyCmd.AddCommand(newHistoryImportCommand(ctx))
	historyCmd.AddCommand(newHistoryListCommand(ctx))
	historyCmd.AddCommand(newHistoryStatsCommand(ctx))
	historyCmd.AddCommand(newHistoryConcurrencyCommand(ctx))
	historyCmd.AddCommand(newHistoryCompletionCommand(ctx))
	historyCmd.AddCommand(newHistoryHistogramCommand(ctx))
	historyCmd.AddCommand(newHistoryPhasesCommand(ctx))
	return historyCmd
}

func newHistoryImportCommand(ctx *commandContext) *cobra.Command {
	var clusterFlag int64
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Store job ads from a history file or from condor_history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			runCtx := services.WithPhase(commandCtx(cmd), "history")

			var records []history.Record
			var source string
			fallback := clusterFlag
			if len(args) == 1 {
				source = args[0]
				if records, err = readHistoryFile(source); err != nil {
					return err
				}
				if fallback == 0 {
					fallback, _ = history.ClusterFromFilename(source)
				}
			} else {
				if fallback == 0 {
					if fallback, err = latestCluster(runCtx, ctx); err != nil {
						return err
					}
				}
				client, err := condor.New(cfg.Condor.SubmitBinary, cfg.Condor.HistoryBinary, cfg.Condor.TimeoutSeconds)
				if err != nil {
					return err
				}
				raw, err := client.History(services.WithClusterID(runCtx, fallback), fallback)
				if err != nil {
					return err
				}
				if records, err = history.Parse(bytes.NewReader(raw)); err != nil {
					return err
				}
				source = cfg.Condor.HistoryBinary
			}

			groups, err := history.GroupByCluster(records, fallback)
			if err != nil {
				return services.Wrap(services.ErrValidation, "history", "import", "cannot determine the cluster id; pass --cluster", err)
			}
			if clusterFlag != 0 {
				for _, g := range groups {
					if g.ClusterID != clusterFlag {
						return services.Wrap(services.ErrValidation, "history", "import",
							fmt.Sprintf("job ads belong to cluster %d, not --cluster %d", g.ClusterID, clusterFlag), nil)
					}
				}
			}

			base := logging.NewComponentLogger(ctx.loggerValue(), "history")
			results := make([]store.ImportResult, 0, len(groups))
			for _, g := range groups {
				result, err := st.ImportJobs(runCtx, g.ClusterID, source, g.Records, overwrite)
				if err != nil {
					return err
				}
				logger := logging.WithContext(services.WithClusterID(runCtx, g.ClusterID), base)
				if result.Skipped {
					logging.WarnWithContext(logger, "cluster already imported", "history_import_skipped",
						logging.String(logging.FieldErrorHint, "pass --overwrite to replace the stored records"),
						logging.String(logging.FieldImpact, "stored records are unchanged"),
					)
				} else {
					logger.Info("history imported", logging.Int("jobs", result.Imported), logging.String("source", source))
				}
				results = append(results, result)
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, results)
			}
			out := cmd.OutOrStdout()
			for _, result := range results {
				if result.Skipped {
					fmt.Fprintf(out, "Cluster %d already imported; use --overwrite to replace it\n", result.ClusterID)
					continue
				}
				fmt.Fprintf(out, "Imported %d job(s) for cluster %d\n", result.Imported, result.ClusterID)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&clusterFlag, "cluster", 0, "Cluster id (queried with condor_history when no file is given)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace records of an already imported cluster")
	return cmd
}

func newHistoryListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List imported clusters",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			imports, err := st.ListImports(commandCtx(cmd))
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, imports)
			}
			out := cmd.OutOrStdout()
			if len(imports) == 0 {
				fmt.Fprintln(out, "No history imported")
				return nil
			}
			rows := make([][]string, 0, len(imports))
			for _, imp := range imports {
				rows = append(rows, []string{strconv.FormatInt(imp.ClusterID, 10), strconv.Itoa(imp.JobCount), formatTime(imp.ImportedAt), imp.Source})
			}
			fmt.Fprintln(out, renderTable([]string{"Cluster", "Jobs", "Imported", "Source"}, rows,
				[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft}))
			return nil
		},
	}
}

func readHistoryFile(path string) ([]history.Record, error) {
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(expanded)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "history", "open", expanded, err)
		}
		return nil, fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()
	return history.Parse(f)
}

func latestCluster(ctx context.Context, cc *commandContext) (int64, error) {
	st, err := cc.openStore()
	if err != nil {
		return 0, err
	}
	sub, err := st.LatestSubmission(ctx)
	if err != nil {
		return 0, err
	}
	if sub == nil {
		return 0, services.Wrap(services.ErrNotFound, "history", "cluster", "no cluster id given and no submission recorded", nil)
	}
	return sub.ClusterID, nil
}

// loadRecords resolves the analysis source: an imported cluster id, a history
// file, or the latest submission.
func loadRecords(cmd *cobra.Command, cc *commandContext, args []string) ([]history.Record, string, error) {
	ctx := commandCtx(cmd)
	var arg string
	if len(args) > 0 {
		arg = strings.TrimSpace(args[0])
	}
	if arg != "" {
		if _, err := strconv.ParseInt(arg, 10, 64); err != nil {
			records, err := readHistoryFile(arg)
			return records, arg, err
		}
	}

	var cluster int64
	if arg == "" {
		id, err := latestCluster(ctx, cc)
		if err != nil {
			return nil, "", err
		}
		cluster = id
	} else {
		cluster, _ = strconv.ParseInt(arg, 10, 64)
	}
	st, err := cc.openStore()
	if err != nil {
		return nil, "", err
	}
	records, err := st.JobRecords(ctx, cluster)
	if err != nil {
		return nil, "", err
	}
	label := "cluster " + strconv.FormatInt(cluster, 10)
	if len(records) == 0 {
		return nil, label, services.Wrap(services.ErrNotFound, "history", "load", label+" has no imported records; run `htcimaging history import` first", nil)
	}
	return records, label, nil
}

func newHistoryStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats [cluster|file]",
		Short: "Summarize job outcomes and durations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, label, err := loadRecords(cmd, ctx, args)
			if err != nil {
				return err
			}
			summary := history.Summarize(records)
			if ctx.jsonOutput() {
				return writeJSON(cmd, summary)
			}
			printSummary(cmd.OutOrStdout(), label, summary)
			return nil
		},
	}
}

func printSummary(out io.Writer, label string, s history.Summary) {
	fmt.Fprintf(out, "History: %s\n", label)
	fmt.Fprintf(out, "Jobs: %d  Failed: %d  Success rate: %s\n", s.Total, s.Failed, formatPercent(s.SuccessRate))
	fmt.Fprintf(out, "With completion time: %d  Without: %d\n", s.WithCompletion, s.WithoutCompletion)
	for _, inc := range s.Incomplete {
		fmt.Fprintf(out, "  %s: %d\n", inc.Name, inc.Count)
	}

	rows := make([][]string, 0, len(history.DurationKeys))
	for _, key := range history.DurationKeys {
		st, ok := s.Durations[key]
		if !ok {
			continue
		}
		rows = append(rows, statsRow(key, st))
	}
	if len(rows) > 0 {
		fmt.Fprintln(out, renderTable(statsHeaders, rows, rightAligned(len(statsHeaders))))
	}
}

var statsHeaders = []string{"Duration (s)", "Count", "Mean", "Median", "Min", "Max", "Std Dev"}

func statsRow(label string, st history.Stats) []string {
	return []string{
		label,
		strconv.Itoa(st.Count),
		formatSeconds(st.Mean),
		formatSeconds(st.Median),
		formatSeconds(st.Min),
		formatSeconds(st.Max),
		formatSeconds(st.StdDev),
	}
}

func newHistoryConcurrencyCommand(ctx *commandContext) *cobra.Command {
	var resolution int
	var showBins bool

	cmd := &cobra.Command{
		Use:   "concurrency [cluster|file]",
		Short: "Report how many jobs ran at once",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			records, label, err := loadRecords(cmd, ctx, args)
			if err != nil {
				return err
			}
			if resolution <= 0 {
				resolution = cfg.Analysis.ResolutionSeconds
			}
			report := history.Concurrency(records, time.Duration(resolution)*time.Second)
			if ctx.jsonOutput() {
				return writeJSON(cmd, report)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "History: %s\n", label)
			if report.Jobs == 0 {
				fmt.Fprintln(out, "No jobs with both start and completion times")
				return nil
			}
			fmt.Fprintf(out, "Jobs: %d  Window: %s to %s (%s)\n", report.Jobs, formatTime(report.Start), formatTime(report.End), formatDuration(report.End.Sub(report.Start)))
			fmt.Fprintf(out, "Concurrent jobs: max %d  mean %s  median %s (resolution %s)\n",
				report.Max, formatFloat(report.Mean, 1), formatFloat(report.Median, 1), report.Resolution)
			if showBins {
				rows := make([][]string, 0, len(report.Bins))
				for _, bin := range report.Bins {
					rows = append(rows, []string{formatTime(bin.Centre), formatFloat(bin.Elapsed, 3), strconv.Itoa(bin.Running)})
				}
				fmt.Fprintln(out, renderTable([]string{"Time", "Elapsed (h)", "Running"}, rows, rightAligned(3)))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&resolution, "resolution", 0, "Bin width in seconds (defaults to analysis.resolution_seconds)")
	cmd.Flags().BoolVar(&showBins, "bins", false, "Print every time bin")
	return cmd
}

func newHistoryCompletionCommand(ctx *commandContext) *cobra.Command {
	var showPoints bool

	cmd := &cobra.Command{
		Use:   "completion [cluster|file]",
		Short: "Report cumulative job completions over time",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, label, err := loadRecords(cmd, ctx, args)
			if err != nil {
				return err
			}
			report := history.Completion(records)
			if ctx.jsonOutput() {
				return writeJSON(cmd, report)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "History: %s\n", label)
			fmt.Fprintf(out, "Completed: %d of %d\n", report.Completed, report.Total)
			if report.Completed == 0 {
				return nil
			}
			fmt.Fprintf(out, "First: %s  Last: %s  Span: %s\n", formatTime(report.First), formatTime(report.Last), formatDuration(report.Span))
			fmt.Fprintf(out, "Throughput: %s jobs/min\n", formatFloat(report.JobsPerMinute, 2))
			if showPoints {
				rows := make([][]string, 0, len(report.Points))
				for _, p := range report.Points {
					rows = append(rows, []string{formatTime(p.Time), formatFloat(p.Elapsed, 3), strconv.Itoa(p.Cumulative)})
				}
				fmt.Fprintln(out, renderTable([]string{"Completed", "Elapsed (h)", "Cumulative"}, rows, rightAligned(3)))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showPoints, "points", false, "Print every completion")
	return cmd
}

func newHistoryHistogramCommand(ctx *commandContext) *cobra.Command {
	var bins int
	var phase string

	cmd := &cobra.Command{
		Use:   "histogram [cluster|file]",
		Short: "Histogram transfer and execution durations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			records, label, err := loadRecords(cmd, ctx, args)
			if err != nil {
				return err
			}
			if bins <= 0 {
				bins = cfg.Analysis.HistogramBins
			}
			hists := history.PhaseHistograms(records, bins)
			phases := history.PhaseOrder
			if phase != "" {
				if _, ok := hists[phase]; !ok {
					return services.Wrap(services.ErrValidation, "history", "histogram", fmt.Sprintf("unknown phase %q (want one of %s)", phase, strings.Join(history.PhaseOrder, ", ")), nil)
				}
				phases = []string{phase}
			}
			if ctx.jsonOutput() {
				selected := make(map[string]history.Histogram, len(phases))
				for _, p := range phases {
					selected[p] = hists[p]
				}
				return writeJSON(cmd, selected)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "History: %s\n", label)
			for _, p := range phases {
				printHistogram(out, p, hists[p])
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&bins, "bins", 0, "Number of bins (defaults to analysis.histogram_bins)")
	cmd.Flags().StringVar(&phase, "phase", "", "Only show one phase: input, execution or output")
	return cmd
}

const histogramBarWidth = 40

func printHistogram(out io.Writer, phase string, h history.Histogram) {
	fmt.Fprintf(out, "\n%s duration (s)\n", phase)
	if h.Stats.Count == 0 {
		fmt.Fprintln(out, "  no samples")
		return
	}
	fmt.Fprintf(out, "  n=%d mean=%s median=%s std=%s\n", h.Stats.Count, formatSeconds(h.Stats.Mean), formatSeconds(h.Stats.Median), formatSeconds(h.Stats.StdDev))
	if h.Trimmed {
		fmt.Fprintf(out, "  outliers above %s s excluded: %d\n", formatSeconds(h.Cutoff), h.Excluded)
	}
	peak := 0
	for _, b := range h.Buckets {
		peak = max(peak, b.Count)
	}
	rows := make([][]string, 0, len(h.Buckets))
	for _, b := range h.Buckets {
		bar := ""
		if peak > 0 {
			bar = strings.Repeat("#", b.Count*histogramBarWidth/peak)
		}
		rows = append(rows, []string{formatSeconds(b.Lower) + " - " + formatSeconds(b.Upper), strconv.Itoa(b.Count), bar})
	}
	fmt.Fprintln(out, renderTable([]string{"Range", "Jobs", ""}, rows, []columnAlignment{alignRight, alignRight, alignLeft}))
}

func newHistoryPhasesCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "phases [cluster|file]",
		Short: "Show per-job input, execution and output spans",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, label, err := loadRecords(cmd, ctx, args)
			if err != nil {
				return err
			}
			jobs := history.Phases(records)
			stats := history.PhaseStats(jobs)
			if ctx.jsonOutput() {
				return writeJSON(cmd, struct {
					Jobs  []history.JobPhases      `json:"jobs"`
					Stats map[string]history.Stats `json:"stats"`
				}{jobs, stats})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "History: %s (%d jobs)\n", label, len(jobs))
			shown := jobs
			if limit > 0 && len(shown) > limit {
				shown = shown[:limit]
			}
			rows := make([][]string, 0, len(shown))
			for _, job := range shown {
				row := []string{strconv.FormatInt(job.ProcID, 10), formatTime(job.JobStart), "-", "-", "-"}
				for _, span := range job.Spans {
					switch span.Phase {
					case history.PhaseInput:
						row[2] = formatSeconds(span.Duration)
					case history.PhaseExecution:
						row[3] = formatSeconds(span.Duration)
					case history.PhaseOutput:
						row[4] = formatSeconds(span.Duration)
					}
				}
				rows = append(rows, row)
			}
			if len(rows) > 0 {
				fmt.Fprintln(out, renderTable([]string{"Proc", "Start", "Input (s)", "Execution (s)", "Output (s)"}, rows, rightAligned(5)))
			}
			if len(shown) < len(jobs) {
				fmt.Fprintf(out, "... %d more job(s)\n", len(jobs)-len(shown))
			}

			names := make([]string, 0, len(stats))
			for name := range stats {
				names = append(names, name)
			}
			sort.Slice(names, func(i, j int) bool { return phaseRank(names[i]) < phaseRank(names[j]) })
			statRows := make([][]string, 0, len(names))
			for _, name := range names {
				statRows = append(statRows, statsRow(name, stats[name]))
			}
			if len(statRows) > 0 {
				headers := append([]string{"Phase (s)"}, statsHeaders[1:]...)
				fmt.Fprintln(out, renderTable(headers, statRows, rightAligned(len(headers))))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of jobs to list (0 for all)")
	return cmd
}

func phaseRank(phase string) int {
	for i, p := range history.PhaseOrder {
		if p == phase {
			return i
		}
	}
	return len(history.PhaseOrder)
}
