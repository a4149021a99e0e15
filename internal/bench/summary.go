// Package bench measures index query latency.
//
// Two modes share the same query set and summary. Baseline mode drives a
// local plaintext index from a bounded worker pool; encrypted mode drives
// the remote index strictly sequentially. Query vectors are computed before
// timing starts, so samples cover only the index round trip.
package bench

import (
	"errors"
	"fmt"
	"time"

	"github.com/montanaflynn/stats"
)

// ErrNoSamples is returned when there is nothing to summarize.
var ErrNoSamples = errors.New("bench: no latency samples")

// Summary describes a latency distribution.
type Summary struct {
	Count int
	Mean  time.Duration
	Max   time.Duration
	P50   time.Duration
	P95   time.Duration
	P99   time.Duration
}

// Summarize computes percentiles over samples.
func Summarize(samples []time.Duration) (Summary, error) {
	if len(samples) == 0 {
		return Summary{}, ErrNoSamples
	}
	data := make(stats.Float64Data, len(samples))
	for i, s := range samples {
		data[i] = float64(s)
	}

	var (
		sum Summary
		err error
	)
	sum.Count = len(samples)
	if sum.P50, err = percentile(data, 50); err != nil {
		return Summary{}, err
	}
	if sum.P95, err = percentile(data, 95); err != nil {
		return Summary{}, err
	}
	if sum.P99, err = percentile(data, 99); err != nil {
		return Summary{}, err
	}
	mean, err := data.Mean()
	if err != nil {
		return Summary{}, fmt.Errorf("mean: %w", err)
	}
	maxv, err := data.Max()
	if err != nil {
		return Summary{}, fmt.Errorf("max: %w", err)
	}
	sum.Mean = time.Duration(mean)
	sum.Max = time.Duration(maxv)
	return sum, nil
}

func percentile(data stats.Float64Data, p float64) (time.Duration, error) {
	v, err := data.Percentile(p)
	if err != nil {
		return 0, fmt.Errorf("p%g: %w", p, err)
	}
	return time.Duration(v), nil
}

// String formats the summary the way the CLI prints it.
func (s Summary) String() string {
	return fmt.Sprintf("Requests: %d\np50: %.3fs\np95: %.3fs\np99: %.3fs",
		s.Count, s.P50.Seconds(), s.P95.Seconds(), s.P99.Seconds())
}
