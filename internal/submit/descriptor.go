package submit

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"htcimaging/internal/config"
	"htcimaging/internal/services"
)

// Submit-description macros expanded by the scheduler per job.
const (
	InputMacro   = "$(input_data)"
	ProcessMacro = "$(Process)"
	itemVariable = "input_data"
)

// Params are the imaging options applied identically to every job.
type Params struct {
	Gridder   string
	Imsize    int
	Cell      string
	Stokes    string
	Niter     int
	Usemask   string
	Threshold string
}

// Descriptor is a validated batch declaration.
type Descriptor struct {
	Executable           string
	ContainerImage       string
	WantOSPool           bool
	RequestCPUs          int
	RequestMemory        string
	RequestDisk          string
	MaxRetries           int
	ShouldTransferFiles  string
	WhenToTransferOutput string
	OutputPrefix         string
	Params               Params
}

// Command is one key/value line of a submit description.
type Command struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// NewDescriptor builds a descriptor from the job and tclean sections of cfg.
func NewDescriptor(cfg *config.Config) (*Descriptor, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "submit", "descriptor", "config is nil", nil)
	}
	d := &Descriptor{
		Executable:           strings.TrimSpace(cfg.Job.Executable),
		ContainerImage:       strings.TrimSpace(cfg.Job.ContainerImage),
		WantOSPool:           cfg.Job.WantOSPool,
		RequestCPUs:          cfg.Job.RequestCPUs,
		RequestMemory:        strings.TrimSpace(cfg.Job.RequestMemory),
		RequestDisk:          strings.TrimSpace(cfg.Job.RequestDisk),
		MaxRetries:           cfg.Job.MaxRetries,
		ShouldTransferFiles:  strings.ToUpper(strings.TrimSpace(cfg.Job.ShouldTransferFiles)),
		WhenToTransferOutput: strings.ToUpper(strings.TrimSpace(cfg.Job.WhenToTransferOutput)),
		OutputPrefix:         strings.TrimSpace(cfg.Job.OutputPrefix),
		Params: Params{
			Gridder:   cfg.Tclean.Gridder,
			Imsize:    cfg.Tclean.Imsize,
			Cell:      cfg.Tclean.Cell,
			Stokes:    cfg.Tclean.Stokes,
			Niter:     cfg.Tclean.Niter,
			Usemask:   cfg.Tclean.Usemask,
			Threshold: cfg.Tclean.Threshold,
		},
	}
	if d.OutputPrefix == "" {
		d.OutputPrefix = "tclean"
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Validate checks the resource request and transfer policy.
func (d *Descriptor) Validate() error {
	invalid := func(msg string) error {
		return services.Wrap(services.ErrValidation, "submit", "descriptor", msg, nil)
	}
	if d.Executable == "" {
		return invalid("executable must be set")
	}
	if d.RequestCPUs < 1 {
		return invalid(fmt.Sprintf("request_cpus must be at least 1, got %d", d.RequestCPUs))
	}
	if d.MaxRetries < 0 {
		return invalid(fmt.Sprintf("max_retries must not be negative, got %d", d.MaxRetries))
	}
	if _, err := humanize.ParseBytes(d.RequestMemory); err != nil {
		return invalid(fmt.Sprintf("request_memory %q is not a byte size", d.RequestMemory))
	}
	if _, err := humanize.ParseBytes(d.RequestDisk); err != nil {
		return invalid(fmt.Sprintf("request_disk %q is not a byte size", d.RequestDisk))
	}
	switch d.WhenToTransferOutput {
	case "ON_EXIT", "ON_EXIT_OR_EVICT", "ON_SUCCESS":
	default:
		return invalid(fmt.Sprintf("when_to_transfer_output %q must be ON_EXIT, ON_EXIT_OR_EVICT, or ON_SUCCESS", d.WhenToTransferOutput))
	}
	if d.Params.Imsize <= 0 {
		return invalid("imsize must be positive")
	}
	return nil
}

// Arguments returns the argument template shared by every job.
func (d *Descriptor) Arguments() string {
	return d.argumentsFor(InputMacro, ProcessMacro)
}

func (d *Descriptor) argumentsFor(input, process string) string {
	p := d.Params
	fields := []string{
		input,
		"--jobid", process,
		"--gridder", p.Gridder,
		"--imsize", strconv.Itoa(p.Imsize),
		"--cell", p.Cell,
		"--stokes", p.Stokes,
		"--niter", strconv.Itoa(p.Niter),
		"--usemask", p.Usemask,
		"--threshold", p.Threshold,
	}
	return strings.Join(fields, " ")
}

// RequestMemoryBytes returns the parsed memory request.
func (d *Descriptor) RequestMemoryBytes() uint64 {
	n, _ := humanize.ParseBytes(d.RequestMemory)
	return n
}

// RequestDiskBytes returns the parsed disk request.
func (d *Descriptor) RequestDiskBytes() uint64 {
	n, _ := humanize.ParseBytes(d.RequestDisk)
	return n
}

// Commands returns the submit-description lines in render order, without
// the queue statement.
func (d *Descriptor) Commands() []Command {
	cmds := make([]Command, 0, 16)
	add := func(key, value string) {
		cmds = append(cmds, Command{Key: key, Value: value})
	}
	if d.ContainerImage != "" {
		add("+SingularityImage", strconv.Quote(d.ContainerImage))
	}
	if d.WantOSPool {
		add("+WantOSPool", "true")
	}
	add("executable", d.Executable)
	add("arguments", d.Arguments())
	add("transfer_input_files", InputMacro)
	add("should_transfer_files", d.ShouldTransferFiles)
	add("when_to_transfer_output", d.WhenToTransferOutput)
	add("request_cpus", strconv.Itoa(d.RequestCPUs))
	add("request_memory", d.RequestMemory)
	add("request_disk", d.RequestDisk)
	add("max_retries", strconv.Itoa(d.MaxRetries))
	add("log", d.OutputPrefix+"_"+ProcessMacro+".log")
	add("output", d.OutputPrefix+"_"+ProcessMacro+".out")
	add("error", d.OutputPrefix+"_"+ProcessMacro+".err")
	return cmds
}

// Render writes the submit description, ending with a queue statement that
// reads one job per line from manifestPath.
func (d *Descriptor) Render(w io.Writer, manifestPath string) error {
	if strings.TrimSpace(manifestPath) == "" {
		return services.Wrap(services.ErrValidation, "submit", "render", "manifest path is empty", nil)
	}
	var b strings.Builder
	b.WriteString("# Generated by htcimaging. One job per manifest line.\n")
	cmds := d.Commands()
	width := 0
	for _, c := range cmds {
		width = max(width, len(c.Key))
	}
	for _, c := range cmds {
		fmt.Fprintf(&b, "%-*s = %s\n", width, c.Key, c.Value)
	}
	fmt.Fprintf(&b, "\nqueue %s from %s\n", itemVariable, manifestPath)
	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("write submit description: %w", err)
	}
	return nil
}
