package cli

import (
	"context"
	"fmt"
	"strconv"

	"imapcore/internal/folder"
	"imapcore/internal/imap"

	"github.com/spf13/cobra"
)

func newReadCmd(opts *rootOptions) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "read <uid>",
		Short: "Read a message by UID without marking it seen",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := parseUID(args[0])
			if err != nil {
				return err
			}

			return opts.withSession(cmd, func(ctx context.Context, s *imap.Session) error {
				if raw {
					data, err := s.FetchRaw(ctx, opts.folder, uid)
					if err != nil {
						return err
					}
					_, err = cmd.OutOrStdout().Write(data)
					return err
				}

				msg, err := s.FetchMessage(ctx, opts.folder, uid)
				if err != nil {
					return err
				}
				if opts.json {
					return writeJSON(cmd.OutOrStdout(), msg)
				}

				mapping := folder.Label(opts.folder, opts.folder, folder.Classify(opts.folder, nil))
				printMessage(cmd.OutOrStdout(), msg, folder.MessageLabels(mapping, msg.IsRead, msg.IsStarred, msg.IsDraft))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Print the message source")

	return cmd
}

func parseUID(s string) (uint32, error) {
	uid, err := strconv.ParseUint(s, 10, 32)
	if err != nil || uid == 0 {
		return 0, fmt.Errorf("invalid uid: %s", s)
	}
	return uint32(uid), nil
}
