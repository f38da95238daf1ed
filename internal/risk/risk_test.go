package risk_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selimozcann/seasec/internal/model"
	"github.com/selimozcann/seasec/internal/risk"
)

func TestNormalizeRangeAndLength(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for n := 1; n <= 40; n++ {
		raw := make([]float64, n)
		for i := range raw {
			raw[i] = rng.NormFloat64()
		}
		out := risk.Normalize(raw)
		require.Len(t, out, n)
		for _, r := range out {
			assert.GreaterOrEqual(t, r, 0.0)
			assert.LessOrEqual(t, r, 1.0)
		}
	}
}

func TestNormalizeSingleElement(t *testing.T) {
	assert.Equal(t, []float64{1.0}, risk.Normalize([]float64{-0.2}))
	assert.Empty(t, risk.Normalize(nil))
}

func TestNormalizeRanks(t *testing.T) {
	out := risk.Normalize([]float64{0.10, -0.30, 0.05, 0.20, -0.25})
	assert.Equal(t, []float64{0.25, 1, 0.5, 0, 0.75}, out)
}

func TestNormalizeMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	raw := make([]float64, 60)
	for i := range raw {
		raw[i] = float64(rng.Intn(10)) / 10
	}
	out := risk.Normalize(raw)
	for i := range raw {
		for j := range raw {
			if raw[i] < raw[j] {
				assert.GreaterOrEqual(t, out[i], out[j], "raw[%d]=%v raw[%d]=%v", i, raw[i], j, raw[j])
			}
		}
	}
}

func TestNormalizeDeterministicWithTies(t *testing.T) {
	raw := []float64{0.1, 0.1, -0.2, 0.1, -0.2}
	first := risk.Normalize(raw)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, risk.Normalize(raw))
	}
	// equal scores: earlier input ranks as more anomalous
	assert.Equal(t, []float64{0.5, 0.25, 1, 0, 0.75}, first)
}

func TestNormalizeNaNRanksFirst(t *testing.T) {
	out := risk.Normalize([]float64{0.3, math.NaN(), -0.1})
	assert.Equal(t, []float64{0, 1, 0.5}, out)
}

func TestClassifyBoundaries(t *testing.T) {
	t.Parallel()
	tests := []struct {
		risk float64
		want model.Severity
	}{
		{1.0, model.SeverityHigh},
		{0.7, model.SeverityHigh},
		{0.69999, model.SeverityMedium},
		{0.4, model.SeverityMedium},
		{0.39999, model.SeverityLow},
		{0, model.SeverityLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, risk.Classify(tt.risk), "risk=%v", tt.risk)
	}
}

func TestCountAnomalies(t *testing.T) {
	assert.Equal(t, 2, risk.CountAnomalies([]float64{1, 0.75, 0.69, 0.2}))
	assert.True(t, risk.IsAnomaly(0.7))
	assert.False(t, risk.IsAnomaly(0.6999))
}
