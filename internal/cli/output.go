package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/jieqibox/openingbook/internal/book"
	"github.com/jieqibox/openingbook/internal/store"
)

// Exit codes for CLI commands.
const (
	ExitSuccess    = 0
	ExitFailure    = 1 // I/O and anything unclassified
	ExitValidation = 2
	ExitCorrupt    = 3
	ExitLocked     = 4
)

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, store.ErrValidation):
		return ExitValidation
	case errors.Is(err, store.ErrCorrupt):
		return ExitCorrupt
	case errors.Is(err, store.ErrLocked):
		return ExitLocked
	default:
		return ExitFailure
	}
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

func newFormatter(opts *RootOptions, w io.Writer) *OutputFormatter {
	return &OutputFormatter{Format: opts.Format, Writer: w}
}

// JSON reports whether output is machine-readable.
func (f *OutputFormatter) JSON() bool {
	return f.Format == "json"
}

// Print writes v as indented JSON in json mode, or text otherwise.
func (f *OutputFormatter) Print(v any, text string) error {
	if f.JSON() {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(f.Writer, text)
	return err
}

// Moves prints a query result.
func (f *OutputFormatter) Moves(moves []book.Move) error {
	if f.JSON() {
		return f.Print(moves, "")
	}
	if len(moves) == 0 {
		_, err := fmt.Fprintln(f.Writer, "no moves")
		return err
	}
	tw := tabwriter.NewWriter(f.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MOVE\tPRIORITY\tWINS\tDRAWS\tLOSSES\tALLOWED\tCOMMENT")
	for _, m := range moves {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%t\t%s\n",
			m.UCIMove, m.Priority, m.Wins, m.Draws, m.Losses, m.Allowed, m.Comment)
	}
	return tw.Flush()
}

// Stats prints aggregate statistics.
func (f *OutputFormatter) Stats(s book.Stats) error {
	if f.JSON() {
		return f.Print(s, "")
	}
	tw := tabwriter.NewWriter(f.Writer, 0, 0, 1, ' ', 0)
	fmt.Fprintf(tw, "positions:\t%d\n", s.TotalPositions)
	fmt.Fprintf(tw, "moves:\t%d\n", s.TotalMoves)
	fmt.Fprintf(tw, "allowed:\t%d\n", s.AllowedMoves)
	fmt.Fprintf(tw, "wins:\t%d\n", s.TotalWins)
	fmt.Fprintf(tw, "draws:\t%d\n", s.TotalDraws)
	fmt.Fprintf(tw, "losses:\t%d\n", s.TotalLosses)
	return tw.Flush()
}
