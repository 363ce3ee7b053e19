package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"htcimaging/internal/deps"
	"htcimaging/internal/history"
	"htcimaging/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check directories, scheduler tools and recorded runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			checks := []preflight.Result{
				preflight.CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
				preflight.CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
				preflight.CheckManifest(cfg.ManifestPath()),
			}
			statuses := preflight.CheckSystemDeps(cfg)

			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			latest, err := st.LatestSubmission(commandCtx(cmd))
			if err != nil {
				return err
			}
			imports, err := st.ListImports(commandCtx(cmd))
			if err != nil {
				return err
			}
			var lastImport *history.Summary
			if len(imports) > 0 {
				records, err := st.JobRecords(commandCtx(cmd), imports[0].ClusterID)
				if err != nil {
					return err
				}
				summary := history.Summarize(records)
				lastImport = &summary
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, map[string]any{
					"config":            ctx.configPath,
					"checks":            checks,
					"dependencies":      statuses,
					"latest_submission": latest,
					"imported_clusters": len(imports),
					"last_import":       lastImport,
				})
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			lines := renderSectionHeader("Configuration", colorize)
			lines = append(lines, renderStatusLine("Config", statusInfo, ctx.configPath, colorize))
			lines = append(lines, checkLines(checks, colorize)...)
			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Dependencies", colorize)...)
			lines = append(lines, dependencyLines(statuses, colorize)...)
			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Runs", colorize)...)
			if latest == nil {
				lines = append(lines, renderStatusLine("Last submission", statusInfo, "none recorded", colorize))
			} else {
				msg := fmt.Sprintf("cluster %d, %d job(s) at %s", latest.ClusterID, latest.JobCount, formatTime(latest.CreatedAt))
				lines = append(lines, renderStatusLine("Last submission", statusOK, msg, colorize))
			}
			lines = append(lines, renderStatusLine("Imported clusters", statusInfo, strconv.Itoa(len(imports)), colorize))
			if lastImport != nil {
				lines = append(lines, batchLines(imports[0].ClusterID, *lastImport, colorize)...)
			}
			fmt.Fprintln(out, strings.Join(lines, "\n"))
			return nil
		},
	}
}

func checkLines(results []preflight.Result, colorize bool) []string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		kind := statusOK
		if !r.Passed {
			kind = statusError
		}
		lines = append(lines, renderStatusLine(r.Name, kind, r.Detail, colorize))
	}
	return lines
}

func dependencyLines(statuses []deps.Status, colorize bool) []string {
	lines := make([]string, 0, len(statuses)+1)
	for _, dep := range statuses {
		if dep.Available {
			message := "Ready"
			if dep.Path != "" {
				message = fmt.Sprintf("Ready (%s)", dep.Path)
			}
			lines = append(lines, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}
		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, detail, colorize))
	}
	if missing := deps.Missing(statuses); len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for _, m := range missing {
			names = append(names, m.Name)
		}
		lines = append(lines, renderStatusLine("Missing dependencies", statusWarn, strings.Join(names, ", "), colorize))
	}
	return lines
}
