package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newRolesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "roles",
		Short: "Print the labels each role may read",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), appOptions{})
			if err != nil {
				return err
			}
			defer func() { _ = a.close(cmd.Context()) }()

			for _, role := range a.policy.Roles() {
				set, err := a.policy.Allowed(role)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s\n", role, strings.Join(set.Strings(), ", "))
			}
			return nil
		},
	}
}
