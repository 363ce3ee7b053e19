package config

const (
	defaultWorkDir               = "."
	defaultStateDir              = "~/.local/share/htcimaging"
	defaultManifestFile          = "input_files.txt"
	defaultSubmitFile            = "tclean.sub"
	defaultJobIDFile             = "job_id.txt"
	defaultMemoryFudge           = 2.5
	defaultExecutable            = "tclean.py"
	defaultContainerImage        = "osdf:///path-facility/data/srikrishna.sekhar/containers/casa-6.6.0-modular.sif"
	defaultRequestCPUs           = 1
	defaultRequestMemory         = "50G"
	defaultRequestDisk           = "100G"
	defaultMaxRetries            = 2
	defaultShouldTransferFiles   = "YES"
	defaultWhenToTransferOutput  = "ON_EXIT_OR_EVICT"
	defaultOutputPrefix          = "tclean"
	defaultGridder               = "mosaic"
	defaultImsize                = 8192
	defaultCell                  = "0.004arcsec"
	defaultStokes                = "I"
	defaultNiter                 = 100000
	defaultUsemask               = "auto-multithresh"
	defaultThreshold             = "2mJy"
	defaultSubmitBinary          = "condor_submit"
	defaultHistoryBinary         = "condor_history"
	defaultCommandTimeoutSeconds = 120
	defaultCollisionPolicy       = CollisionOverwrite
	defaultResolutionSeconds     = 30
	defaultHistogramBins         = 20
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:  defaultWorkDir,
			StateDir: defaultStateDir,
		},
		Manifest: Manifest{
			File:        defaultManifestFile,
			MemoryFudge: defaultMemoryFudge,
		},
		Job: Job{
			Executable:           defaultExecutable,
			ContainerImage:       defaultContainerImage,
			WantOSPool:           true,
			RequestCPUs:          defaultRequestCPUs,
			RequestMemory:        defaultRequestMemory,
			RequestDisk:          defaultRequestDisk,
			MaxRetries:           defaultMaxRetries,
			ShouldTransferFiles:  defaultShouldTransferFiles,
			WhenToTransferOutput: defaultWhenToTransferOutput,
			OutputPrefix:         defaultOutputPrefix,
			SubmitFile:           defaultSubmitFile,
			JobIDFile:            defaultJobIDFile,
		},
		Tclean: Tclean{
			Gridder:   defaultGridder,
			Imsize:    defaultImsize,
			Cell:      defaultCell,
			Stokes:    defaultStokes,
			Niter:     defaultNiter,
			Usemask:   defaultUsemask,
			Threshold: defaultThreshold,
		},
		Condor: Condor{
			SubmitBinary:   defaultSubmitBinary,
			HistoryBinary:  defaultHistoryBinary,
			TimeoutSeconds: defaultCommandTimeoutSeconds,
		},
		Organize: Organize{
			OnCollision: defaultCollisionPolicy,
		},
		Analysis: Analysis{
			ResolutionSeconds: defaultResolutionSeconds,
			HistogramBins:     defaultHistogramBins,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
