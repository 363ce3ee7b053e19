package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Collision policies accepted by organize.on_collision.
const (
	CollisionOverwrite = "overwrite"
	CollisionSkip      = "skip"
	CollisionRename    = "rename"
	CollisionFail      = "fail"
)

// Paths contains directory configuration.
type Paths struct {
	WorkDir  string `toml:"work_dir"`
	StateDir string `toml:"state_dir"`
}

// Manifest controls how input manifests are generated.
type Manifest struct {
	File        string  `toml:"file"`
	RewriteFrom string  `toml:"rewrite_from"`
	RewriteTo   string  `toml:"rewrite_to"`
	MemoryFudge float64 `toml:"memory_fudge"`
}

// Job contains the per-job resource request and transfer policy.
type Job struct {
	Executable           string `toml:"executable"`
	ContainerImage       string `toml:"container_image"`
	WantOSPool           bool   `toml:"want_os_pool"`
	RequestCPUs          int    `toml:"request_cpus"`
	RequestMemory        string `toml:"request_memory"`
	RequestDisk          string `toml:"request_disk"`
	MaxRetries           int    `toml:"max_retries"`
	ShouldTransferFiles  string `toml:"should_transfer_files"`
	WhenToTransferOutput string `toml:"when_to_transfer_output"`
	OutputPrefix         string `toml:"output_prefix"`
	SubmitFile           string `toml:"submit_file"`
	JobIDFile            string `toml:"job_id_file"`
}

// Tclean holds the imaging parameters applied identically to every job.
type Tclean struct {
	Gridder   string `toml:"gridder"`
	Imsize    int    `toml:"imsize"`
	Cell      string `toml:"cell"`
	Stokes    string `toml:"stokes"`
	Niter     int    `toml:"niter"`
	Usemask   string `toml:"usemask"`
	Threshold string `toml:"threshold"`
}

// Condor names the scheduler command-line tools.
type Condor struct {
	SubmitBinary   string `toml:"submit_binary"`
	HistoryBinary  string `toml:"history_binary"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Organize contains output organizer settings.
type Organize struct {
	OnCollision string `toml:"on_collision"`
}

// Analysis contains job-history report settings.
type Analysis struct {
	ResolutionSeconds int `toml:"resolution_seconds"`
	HistogramBins     int `toml:"histogram_bins"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for htcimaging.
//
// Configuration sections by subsystem:
//   - Paths: working directory for batch files and state directory for the store and logs
//   - Manifest: manifest file name and path rewriting for the data federation
//   - Job: container, resource request, retries, and transfer policy
//   - Tclean: imaging parameters passed to every job
//   - Condor: scheduler binaries and command timeout
//   - Organize: collision policy for the output organizer
//   - Analysis: history report resolution and histogram bins
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Manifest Manifest `toml:"manifest"`
	Job      Job      `toml:"job"`
	Tclean   Tclean   `toml:"tclean"`
	Condor   Condor   `toml:"condor"`
	Organize Organize `toml:"organize"`
	Analysis Analysis `toml:"analysis"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/htcimaging/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("htcimaging.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state directory used for the store, logs, and locks.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Paths.StateDir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", c.Paths.StateDir, err)
	}
	return nil
}

// ManifestPath returns the manifest location inside the work directory
// unless the configured file is already absolute.
func (c *Config) ManifestPath() string {
	return c.inWorkDir(c.Manifest.File)
}

// SubmitPath returns where the rendered submit description is written.
func (c *Config) SubmitPath() string {
	return c.inWorkDir(c.Job.SubmitFile)
}

// JobIDPath returns where the submitted cluster id is recorded.
func (c *Config) JobIDPath() string {
	return c.inWorkDir(c.Job.JobIDFile)
}

// StorePath returns the SQLite database path.
func (c *Config) StorePath() string {
	return filepath.Join(c.Paths.StateDir, "htcimaging.db")
}

// LogPath returns the log file path.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.StateDir, "htcimaging.log")
}

// LockPath returns the organizer lock file path.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "organize.lock")
}

func (c *Config) inWorkDir(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Paths.WorkDir, name)
}

// Encode writes the configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
