package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeManifest()
	c.normalizeJob()
	c.normalizeTclean()
	c.normalizeCondor()
	c.normalizeOrganize()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(strings.TrimSpace(c.Paths.WorkDir)); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(strings.TrimSpace(c.Paths.StateDir)); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeManifest() {
	c.Manifest.File = strings.TrimSpace(c.Manifest.File)
	if c.Manifest.File == "" {
		c.Manifest.File = defaultManifestFile
	}
	c.Manifest.RewriteFrom = strings.TrimSpace(c.Manifest.RewriteFrom)
	c.Manifest.RewriteTo = strings.TrimSpace(c.Manifest.RewriteTo)
	if c.Manifest.MemoryFudge == 0 {
		c.Manifest.MemoryFudge = defaultMemoryFudge
	}
}

func (c *Config) normalizeJob() {
	c.Job.ContainerImage = strings.TrimSpace(c.Job.ContainerImage)
	if value, ok := os.LookupEnv("HTCIMAGING_CONTAINER_IMAGE"); ok && strings.TrimSpace(value) != "" {
		c.Job.ContainerImage = strings.TrimSpace(value)
	}
	c.Job.Executable = strings.TrimSpace(c.Job.Executable)
	c.Job.RequestMemory = strings.TrimSpace(c.Job.RequestMemory)
	c.Job.RequestDisk = strings.TrimSpace(c.Job.RequestDisk)
	c.Job.ShouldTransferFiles = strings.ToUpper(strings.TrimSpace(c.Job.ShouldTransferFiles))
	if c.Job.ShouldTransferFiles == "" {
		c.Job.ShouldTransferFiles = defaultShouldTransferFiles
	}
	c.Job.WhenToTransferOutput = strings.ToUpper(strings.TrimSpace(c.Job.WhenToTransferOutput))
	if c.Job.WhenToTransferOutput == "" {
		c.Job.WhenToTransferOutput = defaultWhenToTransferOutput
	}
	c.Job.OutputPrefix = strings.TrimSpace(c.Job.OutputPrefix)
	if c.Job.OutputPrefix == "" {
		c.Job.OutputPrefix = defaultOutputPrefix
	}
	c.Job.SubmitFile = strings.TrimSpace(c.Job.SubmitFile)
	if c.Job.SubmitFile == "" {
		c.Job.SubmitFile = defaultSubmitFile
	}
	c.Job.JobIDFile = strings.TrimSpace(c.Job.JobIDFile)
	if c.Job.JobIDFile == "" {
		c.Job.JobIDFile = defaultJobIDFile
	}
}

func (c *Config) normalizeTclean() {
	c.Tclean.Gridder = strings.TrimSpace(c.Tclean.Gridder)
	c.Tclean.Cell = strings.TrimSpace(c.Tclean.Cell)
	c.Tclean.Stokes = strings.TrimSpace(c.Tclean.Stokes)
	c.Tclean.Usemask = strings.TrimSpace(c.Tclean.Usemask)
	c.Tclean.Threshold = strings.TrimSpace(c.Tclean.Threshold)
}

func (c *Config) normalizeCondor() {
	c.Condor.SubmitBinary = strings.TrimSpace(c.Condor.SubmitBinary)
	if c.Condor.SubmitBinary == "" {
		c.Condor.SubmitBinary = defaultSubmitBinary
	}
	c.Condor.HistoryBinary = strings.TrimSpace(c.Condor.HistoryBinary)
	if c.Condor.HistoryBinary == "" {
		c.Condor.HistoryBinary = defaultHistoryBinary
	}
}

func (c *Config) normalizeOrganize() {
	c.Organize.OnCollision = strings.ToLower(strings.TrimSpace(c.Organize.OnCollision))
	if c.Organize.OnCollision == "" {
		c.Organize.OnCollision = defaultCollisionPolicy
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
