package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"conduit/internal/buildinfo"
)

// newVersionCmd prints the build version.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the conduit version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "conduit %s\n", buildinfo.String())
			return nil
		},
	}
}
