package stats

import (
	"fmt"
	"math"
	"sort"
)

// Percentile returns the p-th percentile of samples using linear interpolation
// between the two closest ranks, with rank = p/100 * (n-1).
// It returns nil for an empty sample. The input slice is never modified.
// p is clamped into [0, 100] and NaN samples are ignored.
func Percentile(samples []float64, p float64) *float64 {
	sorted := make([]float64, 0, len(samples))
	for _, v := range samples {
		if !math.IsNaN(v) {
			sorted = append(sorted, v)
		}
	}
	if len(sorted) == 0 {
		return nil
	}
	sort.Float64s(sorted)

	switch {
	case math.IsNaN(p) || p < 0:
		p = 0
	case p > 100:
		p = 100
	}

	rank := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		v := sorted[lower]
		return &v
	}

	weight := rank - float64(lower)
	v := sorted[lower] + (sorted[upper]-sorted[lower])*weight
	return &v
}

// band computes the P10/P90 pair for a set of samples.
func band(samples []float64) TemperatureBand {
	return TemperatureBand{
		P10: Percentile(samples, 10),
		P90: Percentile(samples, 90),
	}
}

// FormatPercentage renders a probability in [0,1] as a percentage string,
// or "N/A" when the probability is unknown.
func FormatPercentage(p *float64, decimals int) string {
	if p == nil {
		return "N/A"
	}
	if decimals < 0 {
		decimals = 0
	}
	return fmt.Sprintf("%.*f%%", decimals, *p*100)
}
