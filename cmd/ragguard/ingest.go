package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newIngestCmd() *cobra.Command {
	var sensitivity, source string

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Chunk, embed and store a plain-text document",
		Long: `Split a plain-text document into word windows, embed each window and
upsert it into the index tagged with the given sensitivity label.

Examples:
  # Ingest a file readable by employees and above
  ragguard ingest leave-policy.txt --sensitivity employee

  # Read from stdin
  cat bands.txt | ragguard ingest - --sensitivity confidential --source comp-bands`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			if source == "" {
				source = defaultSource(args[0])
			}

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
			p, err := a.pipeline(idx, emb)
			if err != nil {
				return err
			}

			ids, err := p.IngestDocument(ctx, text, sensitivity, source)
			if err != nil {
				if len(ids) > 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "%d fragment(s) stored before the failure\n", len(ids))
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d fragment(s) from %s as %s\n", len(ids), source, sensitivity)
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sensitivity, "sensitivity", "", "sensitivity label: public, employee, manager or confidential")
	cmd.Flags().StringVar(&source, "source", "", "provenance recorded with each fragment (default: file name)")
	_ = cmd.MarkFlagRequired("sensitivity")
	return cmd
}

// readInput reads path, or stdin when path is "-".
func readInput(stdin io.Reader, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		data, err = os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read file %s: %w", path, err)
		}
	}
	if len(data) == 0 {
		return "", fmt.Errorf("no content to ingest")
	}
	return string(data), nil
}

func defaultSource(path string) string {
	if path == "-" {
		return "stdin"
	}
	return filepath.Base(path)
}
