package history

import (
	"math"
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"
)

// ConcurrencyBin is the number of jobs running at a bin centre.
type ConcurrencyBin struct {
	Centre  time.Time `json:"centre"`
	Elapsed float64   `json:"elapsed_hours"`
	Running int       `json:"running"`
}

// ConcurrencyReport bins the batch timeline at a fixed resolution.
type ConcurrencyReport struct {
	Resolution time.Duration    `json:"resolution"`
	Jobs       int              `json:"jobs"`
	Start      time.Time        `json:"start"`
	End        time.Time        `json:"end"`
	Bins       []ConcurrencyBin `json:"bins"`
	Max        int              `json:"max"`
	Mean       float64          `json:"mean"`
	Median     float64          `json:"median"`
}

// Concurrency counts running jobs over time. Only jobs with both a start and
// a completion time take part; a job is running in a bin when
// start <= centre < completion.
func Concurrency(records []Record, resolution time.Duration) ConcurrencyReport {
	report := ConcurrencyReport{Resolution: resolution}
	if resolution <= 0 {
		return report
	}

	valid := make([]Record, 0, len(records))
	for _, rec := range records {
		if !rec.JobStart.IsZero() && rec.HasCompletion() {
			valid = append(valid, rec)
		}
	}
	report.Jobs = len(valid)
	if len(valid) == 0 {
		return report
	}

	start, end := valid[0].JobStart, valid[0].CompletionTime
	for _, rec := range valid[1:] {
		if rec.JobStart.Before(start) {
			start = rec.JobStart
		}
		if rec.CompletionTime.After(end) {
			end = rec.CompletionTime
		}
	}
	report.Start, report.End = start, end

	nbins := int(math.Ceil(end.Sub(start).Seconds() / resolution.Seconds()))
	counts := make([]float64, 0, nbins)
	for i := range nbins {
		centre := start.Add(time.Duration(i)*resolution + resolution/2)
		running := 0
		for _, rec := range valid {
			if !rec.JobStart.After(centre) && rec.CompletionTime.After(centre) {
				running++
			}
		}
		report.Bins = append(report.Bins, ConcurrencyBin{
			Centre:  centre,
			Elapsed: centre.Sub(start).Hours(),
			Running: running,
		})
		counts = append(counts, float64(running))
		if running > report.Max {
			report.Max = running
		}
	}
	if len(counts) > 0 {
		report.Mean = stat.Mean(counts, nil)
		slices.Sort(counts)
		report.Median = medianSorted(counts)
	}
	return report
}
