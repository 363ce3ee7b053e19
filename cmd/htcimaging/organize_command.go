package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"htcimaging/internal/config"
	"htcimaging/internal/organizer"
)

func newOrganizeCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	var onCollision string

	cmd := &cobra.Command{
		Use:   "organize [dir]",
		Short: "Sort job outputs into category directories",
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
			policy := cfg.Organize.OnCollision
			if onCollision != "" {
				policy = onCollision
			}

			result, err := organizer.Organize(commandCtx(cmd), dir, organizer.Options{
				DryRun:      dryRun,
				OnCollision: policy,
				LockPath:    cfg.LockPath(),
				Logger:      ctx.loggerValue(),
			})
			if err != nil {
				return err
			}

			if ctx.jsonOutput() {
				if err := writeJSON(cmd, result); err != nil {
					return err
				}
			} else {
				printOrganizeResult(cmd.OutOrStdout(), result)
			}
			if err := result.Err(); err != nil {
				return fmt.Errorf("%d file(s) could not be moved: %w", len(result.Failed), err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would move without touching files")
	cmd.Flags().StringVar(&onCollision, "on-collision", "", "Collision policy: overwrite, skip, rename or fail")
	return cmd
}

func printOrganizeResult(out io.Writer, result *organizer.Result) {
	verb := "Moved"
	if result.DryRun {
		verb = "Would move"
	}
	fmt.Fprintf(out, "Directory: %s\n", result.Dir)
	for _, dir := range result.Created {
		fmt.Fprintf(out, "Created %s\n", dir)
	}

	rows := make([][]string, 0, len(organizer.Directories()))
	for _, dir := range organizer.Directories() {
		rows = append(rows, []string{dir, strconv.Itoa(result.Counts[dir])})
	}
	fmt.Fprintln(out, renderTable([]string{"Category", verb}, rows, rightAligned(2)))

	for _, skip := range result.Skipped {
		fmt.Fprintf(out, "Skipped %s: %s\n", skip.Path, skip.Reason)
	}
	for _, failure := range result.Failed {
		fmt.Fprintf(out, "Failed %s: %s\n", failure.Path, failure.Error)
	}
	fmt.Fprintf(out, "%s %d file(s); %d left in place\n", verb, len(result.Moved), result.Unmatched)
}
