// Package cli holds the mediation-router command tree
package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"mediation-router/internal/app"
	"mediation-router/internal/deployer"
)

// Execute runs the root command
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	serve := newServeCmd()
	root := &cobra.Command{
		Use:          "mediation-router",
		Short:        "API gateway routing core: deploys API definitions and dispatches requests to them",
		SilenceUsage: true,
		RunE:         serve.RunE,
	}
	root.AddCommand(serve, newValidateCmd(), newVersionCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway and admin servers",
		Long:  "Start the gateway and admin servers. Configuration is read from the environment and an optional .env file.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Run()
		},
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <dir>",
		Short: "Validate the API definition files in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, args[0])
		},
	}
}

func runValidate(cmd *cobra.Command, dir string) error {
	failed, checked, err := deployer.ValidateDir(dir)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	files := make([]string, 0, len(failed))
	for file := range failed {
		files = append(files, file)
	}
	sort.Strings(files)
	for _, file := range files {
		if _, err := fmt.Fprintf(out, "FAIL %s: %v\n", file, failed[file]); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintf(out, "%d definition file(s) checked, %d invalid\n", checked, len(failed)); err != nil {
		return err
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d invalid definition file(s) in %s", len(failed), dir)
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), app.Version)
			return err
		},
	}
}
