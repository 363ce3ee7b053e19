package history

import (
	"fmt"
	"sort"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var statusNames = map[int]string{
	1: "idle",
	2: "running",
	3: "removed",
	4: "completed",
	5: "held",
	6: "transferring output",
	7: "suspended",
}

var titleCaser = cases.Title(language.English)

// StatusName returns the display name for a scheduler JobStatus code.
func StatusName(code int) string {
	name, ok := statusNames[code]
	if !ok {
		return fmt.Sprintf("Unknown (%d)", code)
	}
	return titleCaser.String(name)
}

// StatusCount is the number of incomplete jobs in one scheduler state.
type StatusCount struct {
	Status int    `json:"status"`
	Name   string `json:"name"`
	Count  int    `json:"count"`
}

// Summary aggregates a batch of job records.
type Summary struct {
	Total             int              `json:"total"`
	Failed            int              `json:"failed"`
	SuccessRate       float64          `json:"success_rate"`
	WithCompletion    int              `json:"with_completion"`
	WithoutCompletion int              `json:"without_completion"`
	Incomplete        []StatusCount    `json:"incomplete,omitempty"`
	Durations         map[string]Stats `json:"durations"`
}

// Duration keys used in Summary.Durations, in report order.
const (
	DurationInputTransfer  = "input_transfer_duration"
	DurationJob            = "job_duration"
	DurationOutputTransfer = "output_transfer_duration"
	DurationTotal          = "total_duration"
)

// DurationKeys lists the duration columns in report order.
var DurationKeys = []string{DurationInputTransfer, DurationJob, DurationOutputTransfer, DurationTotal}

// Summarize computes batch totals, failure counts and duration statistics.
func Summarize(records []Record) Summary {
	summary := Summary{Total: len(records), Durations: make(map[string]Stats, len(DurationKeys))}
	if len(records) == 0 {
		return summary
	}

	incomplete := map[int]int{}
	samples := map[string][]float64{}
	for _, rec := range records {
		if rec.Failed() {
			summary.Failed++
		}
		if rec.HasCompletion() {
			summary.WithCompletion++
		} else {
			summary.WithoutCompletion++
			incomplete[rec.JobStatus]++
		}
		appendSample(samples, DurationInputTransfer, rec.InputTransfer)
		appendSample(samples, DurationJob, rec.JobDuration)
		appendSample(samples, DurationOutputTransfer, rec.OutputTransfer)
		appendSample(samples, DurationTotal, rec.Total)
	}
	summary.SuccessRate = float64(summary.Total-summary.Failed) / float64(summary.Total) * 100

	statuses := make([]int, 0, len(incomplete))
	for status := range incomplete {
		statuses = append(statuses, status)
	}
	sort.Ints(statuses)
	for _, status := range statuses {
		summary.Incomplete = append(summary.Incomplete, StatusCount{
			Status: status,
			Name:   StatusName(status),
			Count:  incomplete[status],
		})
	}

	for _, key := range DurationKeys {
		if values := samples[key]; len(values) > 0 {
			summary.Durations[key] = Describe(values)
		}
	}
	return summary
}

func appendSample(samples map[string][]float64, key string, fn func() (float64, bool)) {
	if v, ok := fn(); ok {
		samples[key] = append(samples[key], v)
	}
}
