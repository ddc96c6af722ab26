package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

// NewShellCommand creates the interactive shell command.
func NewShellCommand(rootOpts *RootOptions) *cobra.Command {
	var historyFile string

	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactive prompt for book commands",
		Long: `Start an interactive prompt. Each line is run as a jieqibook command with
the current global flags, for example:

  query "rnbakabnr/9/1c5c1/p1p1p1p1p/9/9/P1P1P1P1P/1C5C1/9/RNBAKABNR w - - 0 1"

Quote arguments that contain spaces. Type exit or quit to leave.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "jieqibook> ",
				HistoryFile:     historyFile,
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
				Stdout:          cmd.OutOrStdout(),
				Stderr:          cmd.ErrOrStderr(),
			})
			if err != nil {
				return err
			}
			defer rl.Close()

			return runShell(rootOpts, rl, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&historyFile, "history", ".jieqibook_history", "history file (empty disables history)")

	return cmd
}

// lineReader is the part of readline the shell loop needs.
type lineReader interface {
	Readline() (string, error)
}

func runShell(opts *RootOptions, rl lineReader, stdout, stderr io.Writer) error {
	for {
		line, err := rl.Readline()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		args, err := splitArgs(line)
		if err != nil {
			fmt.Fprintln(stderr, "error:", err)
			continue
		}
		if args[0] == "shell" {
			fmt.Fprintln(stderr, "error: already in a shell")
			continue
		}

		root := NewRootCommand()
		root.SetArgs(append(opts.globalArgs(), args...))
		root.SetOut(stdout)
		root.SetErr(stderr)
		if err := root.Execute(); err != nil {
			fmt.Fprintln(stderr, "error:", err)
		}
	}
}

// splitArgs splits a shell line into arguments. Single and double quotes
// group words; inside double quotes a backslash escapes the next character.
func splitArgs(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inArg   bool
		quote   rune
		escaped bool
	)
	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case quote != 0:
			switch {
			case r == quote:
				quote = 0
			case r == '\\' && quote == '"':
				escaped = true
			default:
				cur.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inArg = true
		case r == '\\':
			escaped = true
			inArg = true
		case r == ' ' || r == '\t':
			if inArg {
				args = append(args, cur.String())
				cur.Reset()
				inArg = false
			}
		default:
			cur.WriteRune(r)
			inArg = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote", quote)
	}
	if escaped {
		return nil, errors.New("trailing backslash")
	}
	if inArg {
		args = append(args, cur.String())
	}
	if len(args) == 0 {
		return nil, errors.New("empty command")
	}
	return args, nil
}
