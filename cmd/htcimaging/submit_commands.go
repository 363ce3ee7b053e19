package main

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"htcimaging/internal/config"
	"htcimaging/internal/logging"
	"htcimaging/internal/manifest"
	"htcimaging/internal/preflight"
	"htcimaging/internal/services"
	"htcimaging/internal/services/condor"
	"htcimaging/internal/store"
	"htcimaging/internal/submit"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	submitCmd := &cobra.Command{
		Use:   "submit",
		Short: "Render and submit the imaging job description",
	}
	submitCmd.AddCommand(newSubmitRenderCommand(ctx))
	submitCmd.AddCommand(newSubmitExpandCommand(ctx))
	submitCmd.AddCommand(newSubmitRunCommand(ctx))
	return submitCmd
}

// submitInputs resolves the descriptor and manifest path shared by the submit subcommands.
func submitInputs(ctx *commandContext, manifestFlag string) (*config.Config, *submit.Descriptor, string, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, nil, "", err
	}
	desc, err := submit.NewDescriptor(cfg)
	if err != nil {
		return nil, nil, "", err
	}
	manifestPath := cfg.ManifestPath()
	if strings.TrimSpace(manifestFlag) != "" {
		manifestPath, err = config.ExpandPath(manifestFlag)
		if err != nil {
			return nil, nil, "", err
		}
	}
	return cfg, desc, manifestPath, nil
}

func newSubmitRenderCommand(ctx *commandContext) *cobra.Command {
	var manifestFlag string
	var outputFlag string

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Write the submit description",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, desc, manifestPath, err := submitInputs(ctx, manifestFlag)
			if err != nil {
				return err
			}
			if outputFlag == "-" {
				return desc.Render(cmd.OutOrStdout(), manifestPath)
			}
			target := cfg.SubmitPath()
			if strings.TrimSpace(outputFlag) != "" {
				if target, err = config.ExpandPath(outputFlag); err != nil {
					return err
				}
			}
			if err := writeSubmitFile(desc, target, manifestPath); err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, struct {
					SubmitFile string           `json:"submit_file"`
					Manifest   string           `json:"manifest"`
					Commands   []submit.Command `json:"commands"`
				}{target, manifestPath, desc.Commands()})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote submit description to %s\n", target)
			return nil
		},
	}
	cmd.Flags().StringVarP(&manifestFlag, "manifest", "m", "", "Manifest file (defaults to the configured manifest)")
	cmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Destination file, or - for stdout")
	return cmd
}

func writeSubmitFile(desc *submit.Descriptor, target, manifestPath string) error {
	var buf bytes.Buffer
	if err := desc.Render(&buf, manifestPath); err != nil {
		return err
	}
	if err := os.WriteFile(target, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write submit file: %w", err)
	}
	return nil
}

func newSubmitExpandCommand(ctx *commandContext) *cobra.Command {
	var manifestFlag string

	cmd := &cobra.Command{
		Use:   "expand",
		Short: "List the invocation each job would run",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, desc, manifestPath, err := submitInputs(ctx, manifestFlag)
			if err != nil {
				return err
			}
			entries, err := manifest.ReadFile(manifestPath)
			if err != nil {
				return err
			}
			invocations := desc.Expand(entries)
			if ctx.jsonOutput() {
				return writeJSON(cmd, invocations)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d job(s) from %s\n", len(invocations), manifestPath)
			if len(invocations) == 0 {
				return nil
			}
			rows := make([][]string, 0, len(invocations))
			for _, inv := range invocations {
				rows = append(rows, []string{strconv.Itoa(inv.Process), desc.Executable + " " + inv.Args})
			}
			fmt.Fprintln(out, renderTable([]string{"Process", "Command"}, rows, []columnAlignment{alignRight, alignLeft}))
			return nil
		},
	}
	cmd.Flags().StringVarP(&manifestFlag, "manifest", "m", "", "Manifest file (defaults to the configured manifest)")
	return cmd
}

type submitReport struct {
	RunID      string `json:"run_id"`
	ClusterID  int64  `json:"cluster_id,omitempty"`
	JobCount   int    `json:"job_count"`
	SubmitFile string `json:"submit_file"`
	Manifest   string `json:"manifest"`
	JobIDFile  string `json:"job_id_file,omitempty"`
	DryRun     bool   `json:"dry_run"`
}

func newSubmitRunCommand(ctx *commandContext) *cobra.Command {
	var manifestFlag string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Render the submit description and queue one job per manifest entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, desc, manifestPath, err := submitInputs(ctx, manifestFlag)
			if err != nil {
				return err
			}

			checkCfg := *cfg
			checkCfg.Manifest.File = manifestPath
			if failed := preflight.Failed(preflight.RunAll(&checkCfg)); len(failed) > 0 {
				msgs := make([]string, 0, len(failed))
				for _, f := range failed {
					msgs = append(msgs, fmt.Sprintf("%s: %s", f.Name, f.Detail))
				}
				return services.Wrap(services.ErrConfiguration, "submit", "preflight", strings.Join(msgs, "; "), nil)
			}

			entries, err := manifest.ReadFile(manifestPath)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return services.Wrap(services.ErrValidation, "submit", "manifest", manifestPath+" has no entries", nil)
			}

			report := submitReport{
				RunID:      uuid.NewString(),
				JobCount:   len(entries),
				SubmitFile: cfg.SubmitPath(),
				Manifest:   manifestPath,
				DryRun:     dryRun,
			}
			if err := writeSubmitFile(desc, report.SubmitFile, manifestPath); err != nil {
				return err
			}

			runCtx := services.WithRunID(services.WithPhase(commandCtx(cmd), "submit"), report.RunID)
			base := logging.NewComponentLogger(ctx.loggerValue(), "condor")
			logger := logging.WithContext(runCtx, base)

			if !dryRun {
				client, err := condor.New(cfg.Condor.SubmitBinary, cfg.Condor.HistoryBinary, cfg.Condor.TimeoutSeconds)
				if err != nil {
					return err
				}
				submission, err := client.Submit(runCtx, report.SubmitFile)
				if err != nil {
					logging.ErrorWithContext(logger, "condor_submit failed", "submit_failed",
						logging.Error(err),
						logging.String(logging.FieldErrorHint, services.Hint(err)),
					)
					return err
				}
				report.ClusterID = submission.ClusterID
				if submission.JobCount > 0 {
					report.JobCount = submission.JobCount
				}
				if submission.JobCount != len(entries) {
					logging.WarnWithContext(logger, "queued job count differs from manifest", "submit_count_mismatch",
						logging.Int("queued", submission.JobCount),
						logging.Int("entries", len(entries)),
						logging.String(logging.FieldErrorHint, "check the manifest for blank or malformed lines"),
					)
				}

				report.JobIDFile = cfg.JobIDPath()
				if err := os.WriteFile(report.JobIDFile, []byte(strconv.FormatInt(report.ClusterID, 10)+"\n"), 0o644); err != nil {
					return fmt.Errorf("write job id file: %w", err)
				}

				st, err := ctx.openStore()
				if err != nil {
					return err
				}
				if err := st.RecordSubmission(runCtx, store.Submission{
					RunID:        report.RunID,
					ClusterID:    report.ClusterID,
					JobCount:     report.JobCount,
					ManifestPath: manifestPath,
					SubmitFile:   report.SubmitFile,
					CreatedAt:    time.Now(),
				}); err != nil {
					return err
				}
				logger = logging.WithContext(services.WithClusterID(runCtx, report.ClusterID), base)
				logger.Info("jobs queued", logging.Int("jobs", report.JobCount))
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, report)
			}
			out := cmd.OutOrStdout()
			if dryRun {
				fmt.Fprintf(out, "Dry run: wrote %s for %d job(s); nothing submitted\n", report.SubmitFile, report.JobCount)
				return nil
			}
			fmt.Fprintf(out, "Submitted %d job(s) to cluster %d\n", report.JobCount, report.ClusterID)
			fmt.Fprintf(out, "Cluster id written to %s\n", report.JobIDFile)
			return nil
		},
	}
	cmd.Flags().StringVarP(&manifestFlag, "manifest", "m", "", "Manifest file (defaults to the configured manifest)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Render the submit file and run checks without submitting")
	return cmd
}
