package history

import (
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"
)

// Phase names in pipeline order.
const (
	PhaseInput     = "input"
	PhaseExecution = "execution"
	PhaseOutput    = "output"
)

// PhaseOrder lists the phase names in pipeline order.
var PhaseOrder = []string{PhaseInput, PhaseExecution, PhaseOutput}

// Span is one phase interval of one job.
type Span struct {
	Phase    string    `json:"phase"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Duration float64   `json:"duration"`
}

// JobPhases is the per-job phase breakdown used for Gantt-style reports.
type JobPhases struct {
	ClusterID int64     `json:"cluster_id"`
	ProcID    int64     `json:"proc_id"`
	JobStart  time.Time `json:"job_start,omitzero"`
	Spans     []Span    `json:"spans"`
}

// Phases returns per-job input, execution and output spans ordered by job
// start. Execution runs from the end of input transfer for the job duration,
// or until output transfer starts when the job duration is missing. Spans
// with non-positive duration are left out.
func Phases(records []Record) []JobPhases {
	out := make([]JobPhases, 0, len(records))
	for _, rec := range records {
		jp := JobPhases{ClusterID: rec.ClusterID, ProcID: rec.ProcID, JobStart: rec.JobStart}
		if d, ok := rec.InputTransfer(); ok && d > 0 {
			jp.Spans = append(jp.Spans, Span{Phase: PhaseInput, Start: rec.InputStart, End: rec.InputEnd, Duration: d})
		}
		if !rec.InputEnd.IsZero() {
			if d, ok := rec.Execution(); ok && d > 0 {
				end := rec.InputEnd.Add(time.Duration(d * float64(time.Second)))
				jp.Spans = append(jp.Spans, Span{Phase: PhaseExecution, Start: rec.InputEnd, End: end, Duration: d})
			}
		}
		if d, ok := rec.OutputTransfer(); ok && d > 0 {
			jp.Spans = append(jp.Spans, Span{Phase: PhaseOutput, Start: rec.OutputStart, End: rec.OutputEnd, Duration: d})
		}
		out = append(out, jp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].JobStart, out[j].JobStart
		switch {
		case a.IsZero() != b.IsZero():
			return !a.IsZero()
		case !a.Equal(b):
			return a.Before(b)
		default:
			return out[i].ProcID < out[j].ProcID
		}
	})
	return out
}

// PhaseStats summarizes span durations for each phase.
func PhaseStats(jobs []JobPhases) map[string]Stats {
	samples := map[string][]float64{}
	for _, job := range jobs {
		for _, span := range job.Spans {
			samples[span.Phase] = append(samples[span.Phase], span.Duration)
		}
	}
	stats := make(map[string]Stats, len(samples))
	for phase, values := range samples {
		stats[phase] = Describe(values)
	}
	return stats
}

var digitRun = regexp.MustCompile(`\d+`)

// ClusterFromFilename extracts the first run of digits from a history file
// name such as condor_history_944143.json. It is only a fallback for ads
// that carry no ClusterId.
func ClusterFromFilename(name string) (int64, bool) {
	base := filepath.Base(name)
	match := digitRun.FindString(base[:len(base)-len(filepath.Ext(base))])
	if match == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(match, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
