package history

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// outlierFactor triggers trimming when the mean exceeds this multiple of the median.
const outlierFactor = 5

// Bucket is one histogram bin covering [Lower, Upper).
// The last bucket also includes Upper.
type Bucket struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
}

// Histogram describes the distribution of one duration.
type Histogram struct {
	Stats        Stats    `json:"stats"`
	Trimmed      bool     `json:"trimmed"`
	Cutoff       float64  `json:"cutoff,omitempty"`
	Excluded     int      `json:"excluded,omitempty"`
	PlottedStats Stats    `json:"plotted_stats"`
	Buckets      []Bucket `json:"buckets"`
}

// BuildHistogram bins the positive values. When the mean is more than five
// times the median the range is cut at the 99th percentile and the number
// of excluded values is reported.
func BuildHistogram(values []float64, bins int) Histogram {
	if bins <= 0 {
		bins = 1
	}
	positive := make([]float64, 0, len(values))
	for _, v := range values {
		if v > 0 {
			positive = append(positive, v)
		}
	}
	if len(positive) == 0 {
		return Histogram{}
	}
	slices.Sort(positive)

	hist := Histogram{Stats: Describe(positive)}
	plotted := positive
	if hist.Stats.Mean > outlierFactor*hist.Stats.Median {
		cutoff := min(positive[len(positive)-1], percentileSorted(positive, 99))
		kept := positive[:0:0]
		for _, v := range positive {
			if v <= cutoff {
				kept = append(kept, v)
			}
		}
		hist.Trimmed = true
		hist.Cutoff = cutoff
		hist.Excluded = len(positive) - len(kept)
		plotted = kept
	}
	hist.PlottedStats = Describe(plotted)
	hist.Buckets = bucketize(plotted, bins)
	return hist
}

func bucketize(sorted []float64, bins int) []Bucket {
	if len(sorted) == 0 {
		return nil
	}
	lo, hi := sorted[0], sorted[len(sorted)-1]
	if hi == lo {
		return []Bucket{{Lower: lo, Upper: hi, Count: len(sorted)}}
	}
	dividers := floats.Span(make([]float64, bins+1), lo, hi)
	// stat.Histogram needs the maximum strictly below the last divider.
	dividers[bins] = math.Nextafter(hi, math.Inf(1))
	counts := stat.Histogram(nil, dividers, sorted, nil)

	buckets := make([]Bucket, bins)
	for i := range buckets {
		buckets[i] = Bucket{Lower: dividers[i], Upper: dividers[i+1], Count: int(counts[i])}
	}
	buckets[bins-1].Upper = hi
	return buckets
}

// PhaseHistograms builds histograms for input transfer, execution and output
// transfer durations, keyed by phase name.
func PhaseHistograms(records []Record, bins int) map[string]Histogram {
	var input, exec, output []float64
	for _, rec := range records {
		if v, ok := rec.InputTransfer(); ok {
			input = append(input, v)
		}
		if v, ok := rec.Execution(); ok {
			exec = append(exec, v)
		}
		if v, ok := rec.OutputTransfer(); ok {
			output = append(output, v)
		}
	}
	return map[string]Histogram{
		PhaseInput:     BuildHistogram(input, bins),
		PhaseExecution: BuildHistogram(exec, bins),
		PhaseOutput:    BuildHistogram(output, bins),
	}
}
