package cli

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := map[string]string{"version": Version, "go": runtime.Version()}
			return rootOpts.output(cmd).Success(info, func(w io.Writer) {
				fmt.Fprintf(w, "fieldsync %s (%s)\n", Version, runtime.Version())
			})
		},
	}
}
