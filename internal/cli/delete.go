package cli

import (
	"context"
	"fmt"

	"imapcore/internal/imap"

	"github.com/spf13/cobra"
)

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	var refsPath string

	cmd := &cobra.Command{
		Use:   "delete [uid-set]",
		Short: "Flag messages deleted and expunge them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var refs []imap.MessageRef
			if refsPath != "" {
				var err error
				if refs, err = readRefs(refsPath, cmd.InOrStdin()); err != nil {
					return err
				}
			}
			work, err := targets(opts.folder, args, refs)
			if err != nil {
				return err
			}

			return opts.withSession(cmd, func(ctx context.Context, s *imap.Session) error {
				for _, t := range work {
					if err := s.Delete(ctx, t.folder, t.uidSet); err != nil {
						return err
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Deleted.")
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&refsPath, "refs", "", `JSON file of {"folder","uid"} refs to delete ("-" for stdin)`)

	return cmd
}
