package cli

import (
	"context"
	"fmt"

	"imapcore/internal/imap"

	"github.com/spf13/cobra"
)

func newUIDsCmd(opts *rootOptions) *cobra.Command {
	var since uint32

	cmd := &cobra.Command{
		Use:   "uids",
		Short: "List the UIDs in a folder, optionally only those above --since",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(ctx context.Context, s *imap.Session) error {
				var uids []uint32
				var err error
				if cmd.Flags().Changed("since") {
					uids, err = s.NewUIDs(ctx, opts.folder, since)
				} else {
					uids, err = s.AllUIDs(ctx, opts.folder)
				}
				if err != nil {
					return err
				}

				if opts.json {
					return writeJSON(cmd.OutOrStdout(), uids)
				}
				for _, uid := range uids {
					fmt.Fprintln(cmd.OutOrStdout(), uid)
				}
				return nil
			})
		},
	}

	cmd.Flags().Uint32Var(&since, "since", 0, "Only list UIDs above this one")

	return cmd
}
