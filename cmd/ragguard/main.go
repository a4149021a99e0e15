// Ragguard answers questions from an encrypted document index while
// withholding fragments the caller's role may not read.
//
// Usage:
//
//	# Start the HTTP API
//	ragguard serve
//
//	# Ingest a plain-text policy document
//	ragguard ingest leave-policy.txt --sensitivity employee --source leave-policy.txt
//
//	# Ask as a role
//	ragguard ask "How many vacation days do I get?" --role Employee
//
// Configuration is read from ~/.config/ragguard/config.yaml (or --config),
// a .env file in the working directory, and environment variables.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var (
	configPath string
	dotenvPath string
	verbose    bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ragguard",
		Short: "Role-gated question answering over an encrypted index",
		Long: `ragguard retrieves policy fragments from an encrypted vector index,
discards every fragment the caller's role may not read, and answers from
what remains.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (default ~/.config/ragguard/config.yaml)")
	root.PersistentFlags().StringVar(&dotenvPath, "env-file", ".env", "dotenv file loaded before environment variables")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at the configured level for one-shot commands")

	root.AddCommand(
		newServeCmd(),
		newIngestCmd(),
		newAskCmd(),
		newRolesCmd(),
		newBenchCmd(),
		newVersionCmd(),
	)
	return root
}
