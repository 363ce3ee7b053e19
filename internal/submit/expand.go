package submit

import (
	"strconv"
	"strings"
)

// Invocation is the concrete command one job will run.
type Invocation struct {
	Process int    `json:"process"`
	Input   string `json:"input"`
	Args    string `json:"args"`
}

// Expand resolves the argument template against each manifest entry.
// Process ids are assigned from zero in manifest order, matching $(Process).
func (d *Descriptor) Expand(entries []string) []Invocation {
	invocations := make([]Invocation, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		process := len(invocations)
		invocations = append(invocations, Invocation{
			Process: process,
			Input:   entry,
			Args:    d.argumentsFor(entry, strconv.Itoa(process)),
		})
	}
	return invocations
}

// Outputs lists the scheduler-side log, stdout and stderr file names for a process.
func (d *Descriptor) Outputs(process int) []string {
	base := d.OutputPrefix + "_" + strconv.Itoa(process)
	return []string{base + ".log", base + ".out", base + ".err"}
}
