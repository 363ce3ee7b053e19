package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"htcimaging/internal/config"
	"htcimaging/internal/manifest"
)

func newManifestCommand(ctx *commandContext) *cobra.Command {
	manifestCmd := &cobra.Command{
		Use:   "manifest",
		Short: "Build and inspect chunk manifests",
	}
	manifestCmd.AddCommand(newManifestGenerateCommand(ctx))
	manifestCmd.AddCommand(newManifestShowCommand(ctx))
	return manifestCmd
}

func newManifestGenerateCommand(ctx *commandContext) *cobra.Command {
	var opts manifest.GenerateOptions

	cmd := &cobra.Command{
		Use:   "generate <files...>",
		Short: "Group input files into manifest entries",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			opts.Inputs = args
			if opts.OutputFile == "" {
				opts.OutputFile = cfg.Manifest.File
			}
			if opts.OutputDir == "" {
				opts.OutputDir = cfg.Paths.WorkDir
			}
			if opts.RewriteFrom == "" {
				opts.RewriteFrom = cfg.Manifest.RewriteFrom
				opts.RewriteTo = cfg.Manifest.RewriteTo
			}
			opts.MemoryFudge = cfg.Manifest.MemoryFudge
			opts.Logger = ctx.loggerValue()
			if !ctx.jsonOutput() {
				opts.Progress = cmd.ErrOrStderr()
			}

			result, err := manifest.Generate(commandCtx(cmd), opts)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, result)
			}
			printGenerateResult(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().IntVarP(&opts.Breadth, "breadth", "b", 0, "Number of jobs to spread the inputs over")
	cmd.Flags().StringVarP(&opts.OutputFile, "output", "o", "", "Manifest file name")
	cmd.Flags().StringVarP(&opts.OutputDir, "dir", "d", "", "Directory for the manifest and tarballs")
	cmd.Flags().StringVar(&opts.RewriteFrom, "rewrite-from", "", "Path prefix to replace in manifest entries")
	cmd.Flags().StringVar(&opts.RewriteTo, "rewrite-to", "", "Replacement for --rewrite-from")
	cmd.Flags().BoolVar(&opts.Tar, "tar", false, "Pack each group into tar_chunk_NNNN.tar")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "Rebuild tarballs that already exist")
	_ = cmd.MarkFlagRequired("breadth")
	return cmd
}

func printGenerateResult(out io.Writer, result *manifest.Result) {
	fmt.Fprintf(out, "Manifest: %s\n", result.ManifestPath)
	fmt.Fprintf(out, "Inputs: %d  Breadth: %d  Stride: %d  Entries: %d\n\n", result.Inputs, result.Breadth, result.Stride, len(result.Groups))

	headers := []string{"Chunk", "Files", "Size", "Request Memory", "Tarball"}
	rows := make([][]string, 0, len(result.Groups))
	var total uint64
	for _, g := range result.Groups {
		tarball := "-"
		if g.Tarball != "" {
			tarball = g.Tarball
			if g.TarSkipped {
				tarball += " (existing)"
			}
		}
		rows = append(rows, []string{
			strconv.Itoa(g.Index),
			strconv.Itoa(len(g.Files)),
			g.Size(),
			g.Memory(),
			tarball,
		})
		total += g.Bytes
	}
	fmt.Fprintln(out, renderTable(headers, rows, []columnAlignment{alignRight, alignRight, alignRight, alignRight, alignLeft}))
	fmt.Fprintf(out, "Total input size: %s\n", humanize.Bytes(total))
}

func newManifestShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show [file]",
		Short: "List manifest entries",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path, err := manifestPathArg(cfg, args)
			if err != nil {
				return err
			}
			entries, err := manifest.ReadFile(path)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, struct {
					Path    string   `json:"path"`
					Entries []string `json:"entries"`
				}{path, entries})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Manifest: %s (%d entries)\n", path, len(entries))
			if len(entries) == 0 {
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for i, entry := range entries {
				files := manifest.Split(entry)
				rows = append(rows, []string{strconv.Itoa(i), strconv.Itoa(len(files)), strings.Join(files, "\n")})
			}
			fmt.Fprintln(out, renderTable([]string{"Process", "Files", "Inputs"}, rows, []columnAlignment{alignRight, alignRight, alignLeft}))
			return nil
		},
	}
}

// manifestPathArg resolves an optional manifest argument against the config.
func manifestPathArg(cfg *config.Config, args []string) (string, error) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return cfg.ManifestPath(), nil
	}
	return config.ExpandPath(args[0])
}
