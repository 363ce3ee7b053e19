package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

var validTransferOutput = map[string]struct{}{
	"ON_EXIT":          {},
	"ON_EXIT_OR_EVICT": {},
	"ON_SUCCESS":       {},
}

var validShouldTransfer = map[string]struct{}{
	"YES":       {},
	"NO":        {},
	"IF_NEEDED": {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateManifest(); err != nil {
		return err
	}
	if err := c.validateJob(); err != nil {
		return err
	}
	if err := c.validateTclean(); err != nil {
		return err
	}
	if err := c.validateCondor(); err != nil {
		return err
	}
	if err := c.validateOrganize(); err != nil {
		return err
	}
	if err := c.validateAnalysis(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateManifest() error {
	if c.Manifest.MemoryFudge <= 0 {
		return errors.New("manifest.memory_fudge must be positive")
	}
	if c.Manifest.RewriteTo != "" && c.Manifest.RewriteFrom == "" {
		return errors.New("manifest.rewrite_from must be set when manifest.rewrite_to is set")
	}
	return nil
}

func (c *Config) validateJob() error {
	if c.Job.Executable == "" {
		return errors.New("job.executable must be set")
	}
	if c.Job.RequestCPUs < 1 {
		return errors.New("job.request_cpus must be at least 1")
	}
	if c.Job.MaxRetries < 0 {
		return errors.New("job.max_retries must not be negative")
	}
	if _, err := humanize.ParseBytes(c.Job.RequestMemory); err != nil {
		return fmt.Errorf("job.request_memory: invalid size %q", c.Job.RequestMemory)
	}
	if _, err := humanize.ParseBytes(c.Job.RequestDisk); err != nil {
		return fmt.Errorf("job.request_disk: invalid size %q", c.Job.RequestDisk)
	}
	if _, ok := validShouldTransfer[c.Job.ShouldTransferFiles]; !ok {
		return fmt.Errorf("job.should_transfer_files: unsupported value %q", c.Job.ShouldTransferFiles)
	}
	if _, ok := validTransferOutput[c.Job.WhenToTransferOutput]; !ok {
		return fmt.Errorf("job.when_to_transfer_output: unsupported value %q", c.Job.WhenToTransferOutput)
	}
	if strings.ContainsAny(c.Job.OutputPrefix, `/\ `) {
		return fmt.Errorf("job.output_prefix: %q must be a bare file name prefix", c.Job.OutputPrefix)
	}
	return nil
}

func (c *Config) validateTclean() error {
	if c.Tclean.Imsize <= 0 {
		return errors.New("tclean.imsize must be positive")
	}
	if c.Tclean.Niter < 0 {
		return errors.New("tclean.niter must not be negative")
	}
	for key, value := range map[string]string{
		"tclean.gridder":   c.Tclean.Gridder,
		"tclean.cell":      c.Tclean.Cell,
		"tclean.stokes":    c.Tclean.Stokes,
		"tclean.usemask":   c.Tclean.Usemask,
		"tclean.threshold": c.Tclean.Threshold,
	} {
		if value == "" {
			return fmt.Errorf("%s must be set", key)
		}
		if strings.ContainsAny(value, " \t\"'") {
			return fmt.Errorf("%s: %q must not contain whitespace or quotes", key, value)
		}
	}
	return nil
}

func (c *Config) validateCondor() error {
	if c.Condor.TimeoutSeconds <= 0 {
		return errors.New("condor.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateOrganize() error {
	switch c.Organize.OnCollision {
	case CollisionOverwrite, CollisionSkip, CollisionRename, CollisionFail:
		return nil
	default:
		return fmt.Errorf("organize.on_collision: unsupported value %q (want overwrite, skip, rename, or fail)", c.Organize.OnCollision)
	}
}

func (c *Config) validateAnalysis() error {
	if c.Analysis.ResolutionSeconds <= 0 {
		return errors.New("analysis.resolution_seconds must be positive")
	}
	if c.Analysis.HistogramBins <= 0 {
		return errors.New("analysis.histogram_bins must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
