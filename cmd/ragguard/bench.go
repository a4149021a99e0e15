package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/ragguard/internal/access"
	"github.com/fyrsmithlabs/ragguard/internal/bench"
)

func newBenchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure query latency",
		Long: `Measure vector query latency against an in-memory plaintext baseline or
the configured encrypted index. Both runs stop at the first failed query.`,
	}
	cmd.AddCommand(newBenchBaselineCmd(), newBenchEncryptedCmd())
	return cmd
}

func newBenchBaselineCmd() *cobra.Command {
	var seed string

	cmd := &cobra.Command{
		Use:   "baseline",
		Short: "Benchmark an in-memory plaintext collection",
		Long: `Query an in-memory collection concurrently from a worker pool.

Examples:
  # Seed the collection from a document, then benchmark
  ragguard bench baseline --seed handbook.txt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, appOptions{})
			if err != nil {
				return err
			}
			defer func() { _ = a.close(ctx) }()

			emb, err := a.embedder()
			if err != nil {
				return err
			}
			baseline, err := bench.NewBaselineIndex()
			if err != nil {
				return err
			}

			if seed != "" {
				text, err := readInput(cmd.InOrStdin(), seed)
				if err != nil {
					return err
				}
				p, err := a.pipeline(baseline, emb)
				if err != nil {
					return err
				}
				if _, err := p.IngestDocument(ctx, text, string(access.LabelPublic), defaultSource(seed)); err != nil {
					return fmt.Errorf("seeding baseline: %w", err)
				}
			}

			vectors, err := bench.PrecomputeVectors(ctx, emb, bench.DefaultQueries())
			if err != nil {
				return err
			}
			report, err := bench.RunBaseline(ctx, baseline, vectors, bench.BaselineConfig{
				Workers:     a.cfg.Bench.Workers,
				Repetitions: a.cfg.Bench.Repetitions,
				TopK:        a.cfg.Bench.TopK,
				Logger:      a.logger.Underlying().Named("bench"),
			})
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().StringVar(&seed, "seed", "", "plain-text file to load into the collection first")
	return cmd
}

func newBenchEncryptedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypted",
		Short: "Benchmark the configured encrypted index",
		Long: `Query the configured index sequentially, optionally paced by
bench.rate_per_second.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, appOptions{needIndex: true})
			if err != nil {
				return err
			}
			defer func() { _ = a.close(ctx) }()

			emb, err := a.embedder()
			if err != nil {
				return err
			}
			idx, err := a.indexClient(ctx, emb.Dimension())
			if err != nil {
				return err
			}
			vectors, err := bench.PrecomputeVectors(ctx, emb, bench.DefaultQueries())
			if err != nil {
				return err
			}
			report, err := bench.RunEncrypted(ctx, idx, vectors, bench.EncryptedConfig{
				RequestsPerQuery: a.cfg.Bench.RequestsPerQuery,
				TopK:             a.cfg.Bench.TopK,
				RatePerSecond:    a.cfg.Bench.RatePerSecond,
				Logger:           a.logger.Underlying().Named("bench"),
			})
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
}

func printReport(w io.Writer, r *bench.Report) {
	fmt.Fprintf(w, "Mode: %s\n%s\nElapsed: %s\n", r.Mode, r.Summary, r.Elapsed.Round(time.Millisecond))
}
