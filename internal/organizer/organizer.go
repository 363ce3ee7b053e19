package organizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"htcimaging/internal/config"
	"htcimaging/internal/fileutil"
	"htcimaging/internal/logging"
	"htcimaging/internal/services"
)

const lockRetryDelay = 200 * time.Millisecond

// Options controls one organizer sweep.
type Options struct {
	DryRun bool
	// OnCollision is one of the config.Collision* policies; empty means overwrite.
	OnCollision string
	// LockPath serializes concurrent sweeps. Empty disables locking.
	LockPath string
	Logger   *slog.Logger
}

// Move is a planned or completed file move.
type Move struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Category    string `json:"category"`
	Replaced    bool   `json:"replaced,omitempty"`
	Renamed     bool   `json:"renamed,omitempty"`
}

// Skip is a matching file that was left in place.
type Skip struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Failure is a matching file that could not be moved.
type Failure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
	err   error
}

// Result reports what a sweep did, or would do in dry-run mode.
type Result struct {
	Dir       string         `json:"dir"`
	DryRun    bool           `json:"dry_run"`
	Created   []string       `json:"created,omitempty"`
	Moved     []Move         `json:"moved"`
	Skipped   []Skip         `json:"skipped,omitempty"`
	Failed    []Failure      `json:"failed,omitempty"`
	Counts    map[string]int `json:"counts"`
	Unmatched int            `json:"unmatched"`
}

// Err joins the per-file failures, or returns nil when every move succeeded.
func (r *Result) Err() error {
	if r == nil || len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, fmt.Errorf("%s: %w", f.Path, f.err))
	}
	return errors.Join(errs...)
}

// Organize creates the destination directories in dir and moves every
// matching regular file into its category directory.
func Organize(ctx context.Context, dir string, opts Options) (*Result, error) {
	policy := strings.ToLower(strings.TrimSpace(opts.OnCollision))
	if policy == "" {
		policy = config.CollisionOverwrite
	}
	switch policy {
	case config.CollisionOverwrite, config.CollisionSkip, config.CollisionRename, config.CollisionFail:
	default:
		return nil, services.Wrap(services.ErrValidation, "organize", "collision policy", fmt.Sprintf("unsupported value %q", opts.OnCollision), nil)
	}
	logger := logging.NewComponentLogger(opts.Logger, "organizer")
	logger = logging.WithContext(ctx, logger)

	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "organize", "stat", dir, err)
		}
		return nil, fmt.Errorf("stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, services.Wrap(services.ErrValidation, "organize", "stat", dir+" is not a directory", nil)
	}

	if opts.LockPath != "" && !opts.DryRun {
		unlock, err := acquireLock(ctx, opts.LockPath, logger)
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	result := &Result{Dir: dir, DryRun: opts.DryRun, Counts: make(map[string]int)}
	for _, name := range Directories() {
		path := filepath.Join(dir, name)
		exists, err := fileutil.Exists(path)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		if exists {
			continue
		}
		result.Created = append(result.Created, path)
		if opts.DryRun {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", path, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		category, ok := Categorize(name)
		if !ok {
			result.Unmatched++
			continue
		}
		src := filepath.Join(dir, name)
		move, skip, err := plan(src, filepath.Join(dir, category, name), category, policy)
		switch {
		case err != nil:
			result.fail(logger, src, err)
			continue
		case skip != nil:
			result.Skipped = append(result.Skipped, *skip)
			logging.WarnWithContext(logger, "destination exists; file left in place", "organize_collision_skip",
				logging.String("path", src),
				logging.String(logging.FieldErrorHint, "remove the older copy or rerun with --on-collision rename"),
				logging.String(logging.FieldImpact, "file not organized"),
			)
			continue
		}
		if !opts.DryRun {
			if err := fileutil.MoveFile(move.Source, move.Destination); err != nil {
				result.fail(logger, src, err)
				continue
			}
		}
		result.Moved = append(result.Moved, *move)
		result.Counts[category]++
		logger.Debug("file organized",
			logging.String("source", move.Source),
			logging.String("destination", move.Destination),
			logging.Bool("dry_run", opts.DryRun),
		)
	}

	logger.Info("organize complete",
		logging.String("dir", dir),
		logging.Int("moved", len(result.Moved)),
		logging.Int("skipped", len(result.Skipped)),
		logging.Int("failed", len(result.Failed)),
		logging.Int("unmatched", result.Unmatched),
		logging.Bool("dry_run", opts.DryRun),
	)
	return result, nil
}

// plan resolves the destination for src under the collision policy.
func plan(src, dst, category, policy string) (*Move, *Skip, error) {
	move := &Move{Source: src, Destination: dst, Category: category}
	info, err := os.Lstat(dst)
	if errors.Is(err, os.ErrNotExist) {
		return move, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	if info.IsDir() {
		return nil, nil, fmt.Errorf("destination %s is a directory", dst)
	}

	switch policy {
	case config.CollisionSkip:
		return nil, &Skip{Path: src, Reason: "destination exists"}, nil
	case config.CollisionFail:
		return nil, nil, fmt.Errorf("destination %s already exists", dst)
	case config.CollisionRename:
		renamed, err := nextFreeName(dst)
		if err != nil {
			return nil, nil, err
		}
		move.Destination = renamed
		move.Renamed = true
		return move, nil, nil
	default:
		move.Replaced = true
		return move, nil, nil
	}
}

// nextFreeName inserts the lowest free counter before the extension:
// tclean_3.log becomes tclean_3.1.log.
func nextFreeName(path string) (string, error) {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := stem + "." + strconv.Itoa(i) + ext
		exists, err := fileutil.Exists(candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
}

func (r *Result) fail(logger *slog.Logger, path string, err error) {
	r.Failed = append(r.Failed, Failure{Path: path, Error: err.Error(), err: err})
	logging.ErrorWithContext(logger, "organize move failed", "organize_move_failed",
		logging.String("path", path),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check permissions and free space, then rerun organize"),
	)
}

func acquireLock(ctx context.Context, path string, logger *slog.Logger) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire organize lock: %w", err)
	}
	if !ok {
		logger.Info("waiting for another organize run", logging.String("lock", path))
		ok, err = lock.TryLockContext(ctx, lockRetryDelay)
		if err != nil {
			return nil, fmt.Errorf("acquire organize lock: %w", err)
		}
		if !ok {
			return nil, services.Wrap(services.ErrTimeout, "organize", "lock", path, ctx.Err())
		}
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("release organize lock failed", logging.Error(err))
		}
	}, nil
}
