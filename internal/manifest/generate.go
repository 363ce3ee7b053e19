package manifest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"htcimaging/internal/logging"
)

// DefaultMemoryFudge scales a group's on-disk size to a memory request.
const DefaultMemoryFudge = 2.5

// GenerateOptions controls manifest generation.
type GenerateOptions struct {
	Inputs      []string
	Breadth     int
	OutputFile  string
	OutputDir   string
	RewriteFrom string
	RewriteTo   string
	Tar         bool
	Force       bool
	MemoryFudge float64
	// Progress receives a progress bar while tarballs are written. Nil disables it.
	Progress io.Writer
	Logger   *slog.Logger
}

// Group is one manifest entry and the local files behind it.
type Group struct {
	Index           int      `json:"index"`
	Files           []string `json:"files"`
	Entry           string   `json:"entry"`
	Bytes           uint64   `json:"bytes"`
	SuggestedMemory uint64   `json:"suggested_memory"`
	Tarball         string   `json:"tarball,omitempty"`
	TarSkipped      bool     `json:"tar_skipped,omitempty"`
}

// Size renders Bytes in SI units.
func (g Group) Size() string { return humanize.Bytes(g.Bytes) }

// Memory renders SuggestedMemory in SI units.
func (g Group) Memory() string { return humanize.Bytes(g.SuggestedMemory) }

// Result summarizes a generated manifest.
type Result struct {
	ManifestPath string  `json:"manifest_path"`
	Inputs       int     `json:"inputs"`
	Breadth      int     `json:"breadth"`
	Stride       int     `json:"stride"`
	Groups       []Group `json:"groups"`
}

// Entries returns the manifest lines in order.
func (r *Result) Entries() []string {
	entries := make([]string, 0, len(r.Groups))
	for _, g := range r.Groups {
		entries = append(entries, g.Entry)
	}
	return entries
}

// Stride returns how many inputs go into each entry: n/breadth rounded to
// the nearest integer and never less than one.
func Stride(n, breadth int) int {
	if breadth <= 0 {
		return 0
	}
	stride := int(math.Round(float64(n) / float64(breadth)))
	return max(stride, 1)
}

// Generate sorts the inputs, groups them into entries of Stride files,
// writes the manifest into OutputDir and optionally packs each group into a
// tar_chunk_NNNN.tar file next to it.
func Generate(ctx context.Context, opts GenerateOptions) (*Result, error) {
	if opts.Breadth <= 0 {
		return nil, fmt.Errorf("breadth must be positive, got %d", opts.Breadth)
	}
	if len(opts.Inputs) == 0 {
		return nil, errors.New("no input files given")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	fudge := opts.MemoryFudge
	if fudge <= 0 {
		fudge = DefaultMemoryFudge
	}
	outDir := opts.OutputDir
	if strings.TrimSpace(outDir) == "" {
		outDir = "."
	}
	outFile := opts.OutputFile
	if strings.TrimSpace(outFile) == "" {
		outFile = "input_files.txt"
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	inputs := make([]string, 0, len(opts.Inputs))
	for _, in := range opts.Inputs {
		abs, err := filepath.Abs(in)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", in, err)
		}
		inputs = append(inputs, abs)
	}
	sort.Strings(inputs)

	stride := Stride(len(inputs), opts.Breadth)
	result := &Result{
		ManifestPath: filepath.Join(outDir, filepath.Base(outFile)),
		Inputs:       len(inputs),
		Breadth:      opts.Breadth,
		Stride:       stride,
	}

	for idx, start := 0, 0; start < len(inputs); idx, start = idx+1, start+stride {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		files := inputs[start:min(start+stride, len(inputs))]
		size, err := totalSize(files)
		if err != nil {
			return nil, err
		}
		rewritten := make([]string, len(files))
		for i, f := range files {
			rewritten[i] = RewritePrefix(f, opts.RewriteFrom, opts.RewriteTo)
		}
		group := Group{
			Index:           idx,
			Files:           files,
			Entry:           strings.Join(rewritten, ","),
			Bytes:           size,
			SuggestedMemory: uint64(math.Ceil(fudge * float64(size))),
		}
		if opts.Tar {
			tarball := filepath.Join(outDir, fmt.Sprintf("tar_chunk_%04d.tar", idx))
			group.Tarball = tarball
			skipped, err := writeTarball(ctx, tarball, files, size, opts.Force, opts.Progress)
			if err != nil {
				return nil, err
			}
			group.TarSkipped = skipped
			if skipped {
				logging.WarnWithContext(logger, "tarball exists; skipping", "manifest_tar_skipped",
					logging.String("tarball", tarball),
					logging.String(logging.FieldErrorHint, "pass --force to rebuild it"),
					logging.String(logging.FieldImpact, "existing tarball is reused"),
				)
			}
		}
		logger.Debug("manifest group",
			logging.Int("index", idx),
			logging.Int("files", len(files)),
			logging.String("size", group.Size()),
			logging.String("memory", group.Memory()),
		)
		result.Groups = append(result.Groups, group)
	}

	if err := WriteFile(result.ManifestPath, result.Entries()); err != nil {
		return nil, err
	}
	logger.Info("manifest written",
		logging.String("path", result.ManifestPath),
		logging.Int("entries", len(result.Groups)),
		logging.Int("stride", stride),
	)
	return result, nil
}

// RewritePrefix replaces a leading from with to. Empty from leaves path unchanged.
func RewritePrefix(path, from, to string) string {
	if from == "" || !strings.HasPrefix(path, from) {
		return path
	}
	return to + strings.TrimPrefix(path, from)
}

// totalSize sums regular-file sizes, descending into directories such as
// measurement sets.
func totalSize(paths []string) (uint64, error) {
	var total uint64
	for _, p := range paths {
		err := filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += uint64(info.Size())
			return nil
		})
		if err != nil {
			return 0, fmt.Errorf("size of %s: %w", p, err)
		}
	}
	return total, nil
}
