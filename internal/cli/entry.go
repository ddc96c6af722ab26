package cli

import (
	"github.com/spf13/cobra"

	"github.com/jieqibox/openingbook/internal/book"
)

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	var req book.AddEntryRequest

	cmd := &cobra.Command{
		Use:   "add <fen> <move>",
		Short: "Add or overwrite a move for a position",
		Long: `Add a move to a position, or overwrite every field of the move if it is
already present. Counters are stored as given, not accumulated.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.FEN, req.UCIMove = args[0], args[1]
			return runAdd(rootOpts, req, cmd)
		},
	}

	cmd.Flags().Int32VarP(&req.Priority, "priority", "p", 0, "move priority (higher is preferred)")
	cmd.Flags().Uint32Var(&req.Wins, "wins", 0, "win count")
	cmd.Flags().Uint32Var(&req.Draws, "draws", 0, "draw count")
	cmd.Flags().Uint32Var(&req.Losses, "losses", 0, "loss count")
	cmd.Flags().BoolVar(&req.Allowed, "allowed", true, "whether the move may be played")
	cmd.Flags().StringVarP(&req.Comment, "comment", "c", "", "free-text comment")

	return cmd
}

func runAdd(opts *RootOptions, req book.AddEntryRequest, cmd *cobra.Command) error {
	s, err := opts.openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	created, err := s.AddEntry(req)
	if err != nil {
		return err
	}
	text := "updated " + req.UCIMove
	if created {
		text = "added " + req.UCIMove
	}
	return newFormatter(opts, cmd.OutOrStdout()).Print(map[string]bool{"created": created}, text)
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <fen> <move>",
		Short: "Delete a move from a position",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			deleted, err := s.DeleteEntry(args[0], args[1])
			if err != nil {
				return err
			}
			text := "deleted " + args[1]
			if !deleted {
				text = "not found: " + args[1]
			}
			return newFormatter(rootOpts, cmd.OutOrStdout()).Print(map[string]bool{"deleted": deleted}, text)
		},
	}
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "query <fen>",
		Short: "List the moves for a position in priority order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			moves, err := s.QueryMoves(args[0])
			if err != nil {
				return err
			}
			return newFormatter(rootOpts, cmd.OutOrStdout()).Moves(moves)
		},
	}
}
