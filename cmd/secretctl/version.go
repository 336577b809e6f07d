// File: cmd/secretctl/version.go
// Brief: CLI command wiring and implementation for 'version'.

package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/example/secretctl/internal/buildinfo"
)

func newVersionCommand() *cobra.Command {
	var short bool
	cmd := &cobra.Command{
		Use:           "version",
		Short:         "Print the secretctl version information",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if short {
				fmt.Fprintln(cmd.OutOrStdout(), buildinfo.Version)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Version: %s\n", buildinfo.Version)
			if buildinfo.GitCommit != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "GitCommit: %s\n", buildinfo.GitCommit)
			}
			if buildinfo.BuildDate != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "BuildDate: %s\n", buildinfo.BuildDate)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "GoVersion: %s\n", runtime.Version())
			fmt.Fprintf(cmd.OutOrStdout(), "Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
			return nil
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "Print just the version number")
	return cmd
}
