// Package cmd builds the hchbench cobra command tree, split into
// NewDefaultHCHCommand / NewHCHCommand(in, out, err) so the tree can be
// exercised with substituted I/O streams in tests.
package cmd

import (
	"fmt"
	"io"
	"os"

	heredoc "github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiosk404/hchbench/internal/hchbench/config"
	"github.com/kiosk404/hchbench/internal/hchbench/errno"
	"github.com/kiosk404/hchbench/internal/hchbench/logging"
)

// Exit codes of the §6 CLI contract: 0 on a root Reply, 1 on a startup or
// parse failure, 2 on a fatal scheduler error (DoubleFulfil/AliasCycle).
const (
	ExitOK         = 0
	ExitUsageError = 1
	ExitFatal      = 2
)

// NewDefaultHCHCommand creates the `hchbench` command wired to the process's
// real stdio.
func NewDefaultHCHCommand() *cobra.Command {
	return NewHCHCommand(os.Stdin, os.Stdout, os.Stderr)
}

// NewHCHCommand builds the root command against the given I/O streams.
func NewHCHCommand(in io.Reader, out, errW io.Writer) *cobra.Command {
	opts := config.NewOptions()

	cmds := &cobra.Command{
		Use:   "hchbench",
		Short: "hchbench runs a Humans Consulting HCH session",
		Long: heredoc.Doc(Banner() + `
			hchbench asks a root question through a human (or automation-cached)
			driver that can recursively delegate sub-questions to further copies
			of itself, following the HCH decomposition protocol.`),
		Example: heredoc.Doc(`
			# Ask a question interactively, starting fresh
			hchbench --question "what is 2+2?"

			# Resume a prior run, restoring its datastore and automation cache
			hchbench --db ./session.db

			# Replay a recorded transcript non-interactively
			hchbench --question "what is 2+2?" --replay-log ./transcript.jsonl
		`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(c *cobra.Command, args []string) error {
			return runHCH(in, out, errW, opts)
		},
	}

	flags := cmds.PersistentFlags()
	opts.AddFlags(flags)
	_ = viper.BindPFlags(flags)
	cobra.OnInitialize(func() {
		viper.AutomaticEnv()
	})

	cmds.AddCommand(newVersionCommand(out))
	return cmds
}

// Execute runs cmds and translates its outcome into the §6 exit-code
// contract, exiting the process directly.
func Execute(cmds *cobra.Command) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if err, ok := r.(error); ok && err == errno.ErrAliasCycle {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(ExitFatal)
		}
		panic(r)
	}()
	err := cmds.Execute()
	if err == nil {
		os.Exit(ExitOK)
	}
	switch err {
	case errno.ErrDoubleFulfil, errno.ErrAliasCycle:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(ExitFatal)
	default:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(ExitUsageError)
	}
}

func init() {
	logging.SetLevel("info")
}
