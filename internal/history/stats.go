package history

import (
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats describes a sample of durations in seconds.
type Stats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"std_dev"`
}

// Describe computes summary statistics. StdDev is the sample standard
// deviation and is zero for fewer than two values.
func Describe(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	s := Stats{
		Count:  len(sorted),
		Mean:   stat.Mean(sorted, nil),
		Median: medianSorted(sorted),
		Min:    floats.Min(sorted),
		Max:    floats.Max(sorted),
	}
	if len(sorted) > 1 {
		s.StdDev = stat.StdDev(sorted, nil)
	}
	return s
}

// medianSorted averages the two middle values of an even sample.
// stat.Empirical alone would return the lower one.
func medianSorted(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	lower := stat.Quantile(0.5, stat.Empirical, sorted, nil)
	if n%2 == 1 {
		return lower
	}
	return (lower + sorted[n/2]) / 2
}

// percentileSorted interpolates linearly between sample points.
func percentileSorted(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	return stat.Quantile(p/100, stat.LinInterp, sorted, nil)
}
