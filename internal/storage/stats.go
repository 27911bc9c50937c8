package storage

import (
	"math"
	"sort"
)

// percentiles of a latency sample set, in milliseconds.
type latencySummary struct {
	avg, p50, p90, p95, p99 float64
}

func summarize(samples []float64) latencySummary {
	if len(samples) == 0 {
		return latencySummary{}
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	return latencySummary{
		avg: sum / float64(len(sorted)),
		p50: percentile(sorted, 0.50),
		p90: percentile(sorted, 0.90),
		p95: percentile(sorted, 0.95),
		p99: percentile(sorted, 0.99),
	}
}

// percentile interpolates linearly between the closest ranks of sorted.
func percentile(sorted []float64, q float64) float64 {
	switch len(sorted) {
	case 0:
		return math.NaN()
	case 1:
		return sorted[0]
	}
	rank := q * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
