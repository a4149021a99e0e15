package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/ragguard/internal/retrieval"
)

func newAskCmd() *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question as a role",
		Long: `Answer a question using only fragments the role may read.

Examples:
  ragguard ask "What is the parental leave policy?" --role Employee
  ragguard ask "What are the salary bands?" --role HR`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, appOptions{needIndex: true, needLLM: true})
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
			e, err := a.enforcer(idx, emb)
			if err != nil {
				return err
			}

			res, err := e.Ask(ctx, strings.Join(args, " "), role)
			if err != nil {
				return err
			}
			return printResult(cmd, res)
		},
	}

	cmd.Flags().StringVarP(&role, "role", "r", "", "caller role: Intern, Employee, Manager or HR")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func printResult(cmd *cobra.Command, res retrieval.Result) error {
	switch res.Kind {
	case retrieval.KindAnswer, retrieval.KindRefusal:
		fmt.Fprintln(cmd.OutOrStdout(), res.Text)
		if len(res.Sources) > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "\nSources: %s\n", strings.Join(res.Sources, ", "))
		}
		return nil
	default:
		if res.Err != nil {
			return fmt.Errorf("%s: %w", res.Kind, res.Err)
		}
		return fmt.Errorf("%s", res.Kind)
	}
}
