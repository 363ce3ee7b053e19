package history

import (
	"sort"
	"time"
)

// CompletionPoint is one step of the cumulative completion curve.
type CompletionPoint struct {
	Time       time.Time `json:"time"`
	Elapsed    float64   `json:"elapsed_hours"`
	Cumulative int       `json:"cumulative"`
}

// CompletionReport describes when jobs finished.
type CompletionReport struct {
	Total         int               `json:"total"`
	Completed     int               `json:"completed"`
	First         time.Time         `json:"first,omitzero"`
	Last          time.Time         `json:"last,omitzero"`
	Span          time.Duration     `json:"span"`
	JobsPerMinute float64           `json:"jobs_per_minute"`
	Points        []CompletionPoint `json:"points"`
}

// Completion sorts completion times and builds the cumulative curve.
// JobsPerMinute is zero when all completions share one instant.
func Completion(records []Record) CompletionReport {
	report := CompletionReport{Total: len(records)}

	times := make([]time.Time, 0, len(records))
	for _, rec := range records {
		if rec.HasCompletion() {
			times = append(times, rec.CompletionTime)
		}
	}
	report.Completed = len(times)
	if len(times) == 0 {
		return report
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	report.First = times[0]
	report.Last = times[len(times)-1]
	report.Span = report.Last.Sub(report.First)
	if minutes := report.Span.Minutes(); minutes > 0 {
		report.JobsPerMinute = float64(len(times)) / minutes
	}
	report.Points = make([]CompletionPoint, 0, len(times))
	for i, ts := range times {
		report.Points = append(report.Points, CompletionPoint{
			Time:       ts,
			Elapsed:    ts.Sub(report.First).Hours(),
			Cumulative: i + 1,
		})
	}
	return report
}
