package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Export the book as JSON",
		Long: `Export every position and its moves as a JSON array. Positions are sorted
by key and moves by priority. Writes to stdout when file is omitted or "-".`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if len(args) == 0 || args[0] == "-" {
				return s.ExportJSON(cmd.OutOrStdout())
			}

			return s.ExportJSONFile(args[0])
		},
	}
}

// importResult is the JSON shape of the import command's output.
type importResult struct {
	Imported int      `json:"imported"`
	Errors   []string `json:"errors"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import moves from a JSON export",
		Long: `Import a JSON array of entries in the export format. Moves that fail to
decode or validate are reported and skipped; the rest are imported. Reads
stdin when file is "-".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			s, err := rootOpts.openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			imported, failures, err := s.ImportJSON(in)
			if err != nil {
				return err
			}
			if failures == nil {
				failures = []string{}
			}

			f := newFormatter(rootOpts, cmd.OutOrStdout())
			if f.JSON() {
				return f.Print(importResult{Imported: imported, Errors: failures}, "")
			}
			for _, msg := range failures {
				fmt.Fprintln(cmd.ErrOrStderr(), msg)
			}
			return f.Print(nil, fmt.Sprintf("imported %d moves, %d errors", imported, len(failures)))
		},
	}
}

// NewBackupCommand creates the backup command.
func NewBackupCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "backup <dst>",
		Short: "Copy the database file to dst",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.ExportDB(args[0]); err != nil {
				return err
			}
			return newFormatter(rootOpts, cmd.OutOrStdout()).Print(map[string]string{"backup": args[0]}, "backed up to "+args[0])
		},
	}
}

// NewRestoreCommand creates the restore command.
func NewRestoreCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <src>",
		Short: "Replace the database file with a copy of src",
		Long: `Replace the database file with a byte-for-byte copy of src. The copy is
not checked; a damaged source is reported by the next command that reads
the book.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.ImportDB(args[0]); err != nil {
				return err
			}
			return newFormatter(rootOpts, cmd.OutOrStdout()).Print(map[string]string{"restored": args[0]}, "restored from "+args[0])
		},
	}
}
