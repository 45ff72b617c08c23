package main

import (
	"fmt"

	"github.com/phrazzld/aves-annotator/internal/auth"
	"github.com/spf13/cobra"
)

func newTokenCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage reviewer tokens",
	}

	var reviewer string
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue a bearer token for a reviewer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !opts.cfg.Auth.AuthEnabled() {
				return fmt.Errorf("auth.jwt_secret is not configured; tokens would not be checked")
			}
			tokens, err := auth.NewTokenService(opts.cfg.Auth)
			if err != nil {
				return err
			}
			token, err := tokens.GenerateToken(cmd.Context(), reviewer)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	issue.Flags().StringVar(&reviewer, "reviewer", "", "Reviewer ID recorded with submitted feedback")
	_ = issue.MarkFlagRequired("reviewer")

	cmd.AddCommand(issue)
	return cmd
}
