package bench

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func TestSummarize(t *testing.T) {
	samples := make([]time.Duration, 100)
	for i := range samples {
		samples[i] = ms(i + 1)
	}

	sum, err := Summarize(samples)
	require.NoError(t, err)
	assert.Equal(t, 100, sum.Count)
	assert.Equal(t, ms(50), sum.P50)
	assert.Equal(t, ms(95), sum.P95)
	assert.Equal(t, ms(99), sum.P99)
	assert.Equal(t, ms(100), sum.Max)
	assert.InDelta(t, float64(ms(50)+ms(1)/2), float64(sum.Mean), float64(time.Microsecond))
}

func TestSummarize_SingleSample(t *testing.T) {
	sum, err := Summarize([]time.Duration{ms(7)})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Count)
	assert.Equal(t, ms(7), sum.P50)
	assert.Equal(t, ms(7), sum.P99)
}

func TestSummarize_Empty(t *testing.T) {
	_, err := Summarize(nil)
	assert.ErrorIs(t, err, ErrNoSamples)
}

func TestSummarize_PercentilesOrdered(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for trial := 0; trial < 500; trial++ {
		n := 2 + rng.IntN(60)
		samples := make([]time.Duration, n)
		for i := range samples {
			samples[i] = time.Duration(rng.Int64N(int64(2 * time.Second)))
		}
		sum, err := Summarize(samples)
		require.NoError(t, err)
		assert.Equal(t, n, sum.Count)
		assert.LessOrEqual(t, sum.P50, sum.P95)
		assert.LessOrEqual(t, sum.P95, sum.P99)
		assert.LessOrEqual(t, sum.P99, sum.Max)
	}
}

func TestSummary_String(t *testing.T) {
	s := Summary{Count: 20, P50: 120 * time.Millisecond, P95: 300 * time.Millisecond, P99: time.Second}
	assert.Equal(t, "Requests: 20\np50: 0.120s\np95: 0.300s\np99: 1.000s", s.String())
}
