package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"htcimaging/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "htcimaging")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if !filepath.IsAbs(cfg.Paths.WorkDir) {
		t.Fatalf("expected absolute work dir, got %q", cfg.Paths.WorkDir)
	}
	if cfg.Tclean.Gridder != "mosaic" || cfg.Tclean.Imsize != 8192 || cfg.Tclean.Niter != 100000 {
		t.Fatalf("unexpected tclean defaults: %+v", cfg.Tclean)
	}
	if cfg.Job.RequestMemory != "50G" || cfg.Job.RequestDisk != "100G" || cfg.Job.MaxRetries != 2 {
		t.Fatalf("unexpected job defaults: %+v", cfg.Job)
	}
	if cfg.Organize.OnCollision != config.CollisionOverwrite {
		t.Fatalf("expected overwrite collision policy, got %q", cfg.Organize.OnCollision)
	}
	if cfg.ManifestPath() != filepath.Join(cfg.Paths.WorkDir, "input_files.txt") {
		t.Fatalf("unexpected manifest path: %q", cfg.ManifestPath())
	}
}

func TestLoadCustomPathOverrides(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(t.TempDir(), "config.toml")
	payload := map[string]any{
		"paths": map[string]any{
			"work_dir":  "~/batch",
			"state_dir": "~/state",
		},
		"job": map[string]any{
			"request_memory": "64G",
			"max_retries":    5,
		},
		"tclean": map[string]any{
			"gridder": "standard",
			"imsize":  128,
		},
		"organize": map[string]any{
			"on_collision": "Rename",
		},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected config at %q to be used, got %q (exists=%v)", configPath, resolved, exists)
	}
	if cfg.Paths.WorkDir != filepath.Join(tempHome, "batch") {
		t.Fatalf("unexpected work dir: %q", cfg.Paths.WorkDir)
	}
	if cfg.Job.RequestMemory != "64G" || cfg.Job.MaxRetries != 5 {
		t.Fatalf("unexpected job overrides: %+v", cfg.Job)
	}
	if cfg.Tclean.Gridder != "standard" || cfg.Tclean.Imsize != 128 {
		t.Fatalf("unexpected tclean overrides: %+v", cfg.Tclean)
	}
	if cfg.Tclean.Cell != "0.004arcsec" {
		t.Fatalf("expected unspecified tclean fields to keep defaults, got %q", cfg.Tclean.Cell)
	}
	if cfg.Organize.OnCollision != config.CollisionRename {
		t.Fatalf("expected collision policy to be normalized, got %q", cfg.Organize.OnCollision)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte("[job]\nrequest_gpus = 4\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestContainerImageEnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("HTCIMAGING_CONTAINER_IMAGE", " osdf:///custom/casa.sif ")

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Job.ContainerImage != "osdf:///custom/casa.sif" {
		t.Fatalf("expected env container image, got %q", cfg.Job.ContainerImage)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"cpus", func(c *config.Config) { c.Job.RequestCPUs = 0 }, "request_cpus"},
		{"retries", func(c *config.Config) { c.Job.MaxRetries = -1 }, "max_retries"},
		{"memory", func(c *config.Config) { c.Job.RequestMemory = "lots" }, "request_memory"},
		{"disk", func(c *config.Config) { c.Job.RequestDisk = "" }, "request_disk"},
		{"transfer", func(c *config.Config) { c.Job.WhenToTransferOutput = "NEVER" }, "when_to_transfer_output"},
		{"imsize", func(c *config.Config) { c.Tclean.Imsize = 0 }, "imsize"},
		{"threshold", func(c *config.Config) { c.Tclean.Threshold = "2 mJy" }, "threshold"},
		{"collision", func(c *config.Config) { c.Organize.OnCollision = "merge" }, "on_collision"},
		{"resolution", func(c *config.Config) { c.Analysis.ResolutionSeconds = 0 }, "resolution_seconds"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"rewrite", func(c *config.Config) { c.Manifest.RewriteTo = "osdf:///x" }, "rewrite_from"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(target); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	cfg, _, exists, err := config.Load(target)
	if err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if cfg.Job.Executable != "tclean.py" {
		t.Fatalf("unexpected executable from sample: %q", cfg.Job.Executable)
	}
}
