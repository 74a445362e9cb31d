package cli

import (
	"context"
	"fmt"

	"imapcore/internal/imap"

	"github.com/spf13/cobra"
)

func newFlagCmd(opts *rootOptions) *cobra.Command {
	var remove bool

	cmd := &cobra.Command{
		Use:   `flag <uid-set> <flag>...`,
		Short: `Add or remove flags such as \Seen, \Flagged or a keyword`,
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			op := imap.AddFlags
			if remove {
				op = imap.RemoveFlags
			}

			return opts.withSession(cmd, func(ctx context.Context, s *imap.Session) error {
				if err := s.SetFlags(ctx, opts.folder, args[0], op, args[1:]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Flags updated (%s).\n", op)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&remove, "remove", false, "Remove the flags instead of adding them")

	return cmd
}
