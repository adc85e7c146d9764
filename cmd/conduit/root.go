package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"conduit/internal/buildinfo"
)

// newRootCmd creates the root conduit command with all subcommands
// attached.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "conduit",
		Short:         "Conduit local agent board daemon",
		Long:          "conduit runs coding agents against tasks on a local board.\nIt streams normalized conversation logs and database change events over SSE.",
		Version:       fmt.Sprintf("conduit %s", buildinfo.String()),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("{{.Version}}\n")

	cmd.AddCommand(
		newServeCmd(),
		newRunCmd(),
		newVersionCmd(),
	)

	return cmd
}
