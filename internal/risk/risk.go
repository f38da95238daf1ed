// Package risk turns raw anomaly scores into rank-based risk values in
// [0,1] and bands them into severities.
package risk

import (
	"math"
	"sort"

	"github.com/selimozcann/seasec/internal/model"
)

// Severity thresholds, inclusive lower bounds.
const (
	HighThreshold   = 0.7
	MediumThreshold = 0.4
)

// Normalize maps raw scores (higher = more normal) to risk values. The
// lowest raw score gets risk 1 and the highest gets 0, evenly spaced by
// rank. Ties keep input order, so an earlier item ranks as more anomalous.
// NaN scores rank before everything else. A single score yields 1.
func Normalize(raw []float64) []float64 {
	n := len(raw)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	if n == 1 {
		out[0] = 1
		return out
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		x, y := raw[order[a]], raw[order[b]]
		if math.IsNaN(x) || math.IsNaN(y) {
			return math.IsNaN(x) && !math.IsNaN(y)
		}
		return x < y
	})

	last := float64(n - 1)
	for rank, idx := range order {
		out[idx] = (last - float64(rank)) / last
	}
	return out
}

// Classify returns the severity band for a risk value.
func Classify(r float64) model.Severity {
	switch {
	case r >= HighThreshold:
		return model.SeverityHigh
	case r >= MediumThreshold:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

// IsAnomaly reports whether r falls in the High band.
func IsAnomaly(r float64) bool {
	return Classify(r) == model.SeverityHigh
}

// CountAnomalies counts values in the High band.
func CountAnomalies(risks []float64) int {
	n := 0
	for _, r := range risks {
		if IsAnomaly(r) {
			n++
		}
	}
	return n
}
