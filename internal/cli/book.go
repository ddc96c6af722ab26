package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// isTerminal is replaced in tests.
var isTerminal = term.IsTerminal

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show book statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			stats, err := s.GetStats()
			if err != nil {
				return err
			}
			return newFormatter(rootOpts, cmd.OutOrStdout()).Stats(stats)
		},
	}
}

// NewClearCommand creates the clear command.
func NewClearCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every position from the book",
		Long: `Remove every position from the book. Without --yes the command asks for
confirmation, and refuses to run when stdin is not a terminal.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				ok, err := confirm(cmd, "Remove every position from the opening book?")
				if err != nil {
					return err
				}
				if !ok {
					return newFormatter(rootOpts, cmd.OutOrStdout()).Print(map[string]bool{"cleared": false}, "aborted")
				}
			}

			s, err := rootOpts.openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.ClearAll(); err != nil {
				return err
			}
			return newFormatter(rootOpts, cmd.OutOrStdout()).Print(map[string]bool{"cleared": true}, "cleared")
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")

	return cmd
}

// confirm asks a y/N question on the command's stdin, which must be a
// terminal.
func confirm(cmd *cobra.Command, question string) (bool, error) {
	in, ok := cmd.InOrStdin().(*os.File)
	if !ok || !isTerminal(int(in.Fd())) {
		return false, errors.New("refusing to clear without --yes: stdin is not a terminal")
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "%s [y/N] ", question)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		return false, nil
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}
