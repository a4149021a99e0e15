package bench

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fyrsmithlabs/ragguard/internal/access"
	"github.com/fyrsmithlabs/ragguard/internal/index"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Report is the outcome of one benchmark run.
type Report struct {
	Mode    string
	Samples []time.Duration
	Summary Summary
	Elapsed time.Duration
}

// BaselineConfig configures the concurrent baseline run.
type BaselineConfig struct {
	Workers     int // default 4
	Repetitions int // per vector, default 10
	TopK        int // default 4
	Logger      *zap.Logger
}

// EncryptedConfig configures the sequential encrypted run.
type EncryptedConfig struct {
	RequestsPerQuery int // per vector, default 5
	TopK             int // default 4
	// Filter is sent with every query. It only affects server work; the
	// benchmark does not read results. Default: every label HR may read.
	Filter index.Filter
	// RatePerSecond paces requests when positive.
	RatePerSecond float64
	Logger        *zap.Logger
}

// RunBaseline issues Repetitions queries per vector from a pool of Workers
// goroutines. The client is shared read-only across workers. The first
// failed query stops the run.
func RunBaseline(ctx context.Context, client index.Client, vectors [][]float32, cfg BaselineConfig) (*Report, error) {
	if len(vectors) == 0 {
		return nil, errors.New("bench: no query vectors")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Repetitions <= 0 {
		cfg.Repetitions = 10
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	total := len(vectors) * cfg.Repetitions
	jobs := make(chan []float32)

	var (
		mu      sync.Mutex
		samples = make([]time.Duration, 0, total)
		wg      sync.WaitGroup
	)

	start := time.Now()
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for v := range jobs {
				d, err := timedQuery(ctx, client, v, cfg.TopK)
				if err != nil {
					cancel(err)
					continue
				}
				mu.Lock()
				samples = append(samples, d)
				mu.Unlock()
			}
		}()
	}

feed:
	for _, v := range vectors {
		for r := 0; r < cfg.Repetitions; r++ {
			select {
			case jobs <- v:
			case <-ctx.Done():
				break feed
			}
		}
	}
	close(jobs)
	wg.Wait()

	if err := context.Cause(ctx); err != nil {
		return nil, fmt.Errorf("baseline run: %w", err)
	}

	report, err := newReport("baseline", samples, time.Since(start))
	if err != nil {
		return nil, err
	}
	cfg.Logger.Info("baseline benchmark complete",
		zap.Int("workers", cfg.Workers),
		zap.Int("requests", report.Summary.Count),
		zap.Duration("p50", report.Summary.P50),
		zap.Duration("p99", report.Summary.P99))
	return report, nil
}

// RunEncrypted issues RequestsPerQuery queries per vector, one at a time.
// Any failure stops the run. The client's error is wrapped, so
// index.IsTimeout and index.IsStorageError still apply.
func RunEncrypted(ctx context.Context, client index.Client, vectors [][]float32, cfg EncryptedConfig) (*Report, error) {
	if len(vectors) == 0 {
		return nil, errors.New("bench: no query vectors")
	}
	if cfg.RequestsPerQuery <= 0 {
		cfg.RequestsPerQuery = 5
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 4
	}
	if cfg.Filter == nil {
		all, err := access.DefaultPolicy().Allowed(access.RoleHR)
		if err != nil {
			return nil, err
		}
		cfg.Filter = index.InFilter(index.MetaAccessLevel, all.Strings())
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}

	samples := make([]time.Duration, 0, len(vectors)*cfg.RequestsPerQuery)
	start := time.Now()
	for i, v := range vectors {
		for r := 0; r < cfg.RequestsPerQuery; r++ {
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return nil, fmt.Errorf("encrypted run: %w", err)
				}
			}
			d, err := timedQuery(ctx, client, v, cfg.TopK, index.WithFilter(cfg.Filter))
			if err != nil {
				cfg.Logger.Warn("encrypted benchmark query failed",
					zap.Int("query", i),
					zap.Int("request", r),
					zap.Error(err))
				return nil, fmt.Errorf("encrypted run: query %d request %d: %w", i, r, err)
			}
			samples = append(samples, d)
		}
	}

	report, err := newReport("encrypted", samples, time.Since(start))
	if err != nil {
		return nil, err
	}
	cfg.Logger.Info("encrypted benchmark complete",
		zap.Int("requests", report.Summary.Count),
		zap.Duration("p50", report.Summary.P50),
		zap.Duration("p99", report.Summary.P99))
	return report, nil
}

func timedQuery(ctx context.Context, client index.Client, v []float32, topK int, opts ...index.QueryOption) (time.Duration, error) {
	start := time.Now()
	if _, err := client.Query(ctx, v, topK, opts...); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

func newReport(mode string, samples []time.Duration, elapsed time.Duration) (*Report, error) {
	sum, err := Summarize(samples)
	if err != nil {
		return nil, err
	}
	return &Report{Mode: mode, Samples: samples, Summary: sum, Elapsed: elapsed}, nil
}
