package commands

import (
	"github.com/spf13/cobra"

	"github.com/willibrandon/gorestore/cmd/gorestore/output"
	"github.com/willibrandon/gorestore/cmd/gorestore/version"
)

// NewVersionCommand creates the version command
func NewVersionCommand(console *output.Console) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Display version information",
		Long:  `Display detailed version information including commit, build date, and Go version.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			console.Println(version.FullInfo())
			return nil
		},
	}

	return cmd
}
