package cmd

import (
	"fmt"
	"io"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Version reports the module's build version: the VCS revision embedded by
// the toolchain if this binary was built from a git checkout, otherwise the
// main module's version from the build info ("(devel)" for a plain
// `go build`), or "(unknown)" if the binary carries no build info.
func Version() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "(unknown)"
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" {
			return setting.Value
		}
	}
	return info.Main.Version
}

func newVersionCommand(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the hchbench build version",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(out, Version())
			return err
		},
	}
}
