package cli

import (
	"context"
	"fmt"

	"imapcore/internal/imap"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [folder]",
		Short: "Show folder status without selecting it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := opts.folder
			if len(args) == 1 {
				name = args[0]
			}

			return opts.withSession(cmd, func(ctx context.Context, s *imap.Session) error {
				status, err := s.FolderStatus(ctx, name)
				if err != nil {
					return err
				}
				if opts.json {
					return writeJSON(cmd.OutOrStdout(), status)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s messages, %s unseen\n",
					status.Folder, humanize.Comma(int64(status.Exists)), humanize.Comma(int64(status.Unseen)))
				fmt.Fprintf(cmd.OutOrStdout(), "UIDVALIDITY %d, UIDNEXT %d", status.UIDValidity, status.UIDNext)
				if status.HighestModSeq != 0 {
					fmt.Fprintf(cmd.OutOrStdout(), ", HIGHESTMODSEQ %d", status.HighestModSeq)
				}
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			})
		},
	}
	return cmd
}
