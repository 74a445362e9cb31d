package cli

import (
	"context"
	"fmt"
	"strings"

	"imapcore/internal/imap"

	"github.com/spf13/cobra"
)

func newMoveCmd(opts *rootOptions) *cobra.Command {
	var refsPath string

	cmd := &cobra.Command{
		Use:   "move [uid-set] <folder>",
		Short: `Move messages to another folder; a destination like \Trash names a special-use folder`,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dest := args[len(args)-1]
			var refs []imap.MessageRef
			if refsPath != "" {
				var err error
				if refs, err = readRefs(refsPath, cmd.InOrStdin()); err != nil {
					return err
				}
			}
			work, err := targets(opts.folder, args[:len(args)-1], refs)
			if err != nil {
				return err
			}

			return opts.withSession(cmd, func(ctx context.Context, s *imap.Session) error {
				if strings.HasPrefix(dest, `\`) {
					resolved, err := resolveSpecial(ctx, s, dest)
					if err != nil {
						return err
					}
					dest = resolved
				}

				for _, t := range work {
					if err := s.Move(ctx, t.folder, t.uidSet, dest); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Moved to %s.\n", dest)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&refsPath, "refs", "", `JSON file of {"folder","uid"} refs to move ("-" for stdin)`)

	return cmd
}

func resolveSpecial(ctx context.Context, s *imap.Session, specialUse string) (string, error) {
	folders, err := s.ListFolders(ctx)
	if err != nil {
		return "", err
	}
	path, ok := imap.FindSpecialFolder(folders, specialUse)
	if !ok {
		return "", &imap.Error{Kind: imap.KindNotFound, Op: "LIST", Err: fmt.Errorf("no folder marked %s", specialUse)}
	}
	return path, nil
}
