package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragguard/internal/bench"
	"github.com/fyrsmithlabs/ragguard/internal/index"
	"github.com/fyrsmithlabs/ragguard/internal/retrieval"
)

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "ingest", "ask", "roles", "bench", "version"} {
		assert.Contains(t, names, want)
	}

	benchCmd, _, err := root.Find([]string{"bench", "baseline"})
	require.NoError(t, err)
	assert.NotNil(t, benchCmd.Flags().Lookup("seed"))
}

func TestRequiredFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		flag string
	}{
		{"ask without role", []string{"ask", "how many days?"}, "role"},
		{"ingest without sensitivity", []string{"ingest", "doc.txt"}, "sensitivity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := newRootCmd()
			root.SetArgs(tt.args)
			root.SetOut(&bytes.Buffer{})
			root.SetErr(&bytes.Buffer{})

			err := root.Execute()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.flag)
		})
	}
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "ragguard dev"))
	assert.Contains(t, out.String(), "commit:")
}

func TestReadInput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "leave.txt")
	require.NoError(t, os.WriteFile(path, []byte("Leave is 20 days."), 0o600))

	got, err := readInput(nil, path)
	require.NoError(t, err)
	assert.Equal(t, "Leave is 20 days.", got)

	got, err = readInput(strings.NewReader("from stdin"), "-")
	require.NoError(t, err)
	assert.Equal(t, "from stdin", got)

	_, err = readInput(strings.NewReader(""), "-")
	assert.Error(t, err)

	_, err = readInput(nil, filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}

func TestDefaultSource(t *testing.T) {
	assert.Equal(t, "stdin", defaultSource("-"))
	assert.Equal(t, "handbook.txt", defaultSource("/srv/docs/handbook.txt"))
}

func TestPrintResult(t *testing.T) {
	tests := []struct {
		name    string
		res     retrieval.Result
		wantOut string
		wantErr string
	}{
		{
			name:    "answer with sources",
			res:     retrieval.Result{Kind: retrieval.KindAnswer, Text: "Twenty days.", Sources: []string{"leave.txt"}},
			wantOut: "Twenty days.\n\nSources: leave.txt\n",
		},
		{
			name:    "refusal",
			res:     retrieval.Refusal(),
			wantOut: retrieval.RefusalSentinel + "\n",
		},
		{
			name:    "storage failure",
			res:     retrieval.Result{Kind: retrieval.KindStorageFailure, Err: &index.StorageError{Op: "query", StatusCode: 503}},
			wantErr: "storage_failure: index query: status 503",
		},
		{
			name:    "timeout without cause",
			res:     retrieval.Result{Kind: retrieval.KindTimeout},
			wantErr: "timeout",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := &cobra.Command{}
			var out bytes.Buffer
			cmd.SetOut(&out)

			err := printResult(cmd, tt.res)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantErr, err.Error())
				assert.Empty(t, out.String())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOut, out.String())
		})
	}
}

func TestPrintResult_PreservesCause(t *testing.T) {
	cause := &index.TimeoutError{Op: "query", Timeout: time.Second}
	err := printResult(&cobra.Command{}, retrieval.Result{Kind: retrieval.KindTimeout, Err: cause})
	var te *index.TimeoutError
	assert.True(t, errors.As(err, &te))
}

func TestPrintReport(t *testing.T) {
	sum, err := bench.Summarize([]time.Duration{time.Second, 2 * time.Second})
	require.NoError(t, err)

	var out bytes.Buffer
	printReport(&out, &bench.Report{Mode: "baseline", Summary: sum, Elapsed: 1500 * time.Millisecond})
	assert.Contains(t, out.String(), "Mode: baseline")
	assert.Contains(t, out.String(), "Requests: 2")
	assert.Contains(t, out.String(), "Elapsed: 1.5s")
}
