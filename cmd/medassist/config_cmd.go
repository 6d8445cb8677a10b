// ABOUTME: config subcommands: path, show, and explain
// ABOUTME: Print where settings came from and what they resolved to

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mauromedda/medassist/internal/config"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect medassist configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "path",
			Short: "Print the resolved config file path",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				path := a.configPath
				if path == "" {
					path = "(none, using defaults)"
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective settings as YAML",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				data, err := config.YAML(a.settings)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			},
		},
		&cobra.Command{
			Use:   "explain",
			Short: "Describe the effective settings and validation result",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				out := cmd.OutOrStdout()
				fmt.Fprint(out, config.Explain(a.settings, a.configPath))
				if err := a.settings.Validate(); err != nil {
					fmt.Fprintf(out, "\ninvalid:\n%v\n", err)
				}
				return nil
			},
		},
	)
	return cmd
}
