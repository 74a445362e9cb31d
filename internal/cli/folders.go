package cli

import (
	"context"

	"imapcore/internal/imap"

	"github.com/spf13/cobra"
)

func newFoldersCmd(opts *rootOptions) *cobra.Command {
	var syncableOnly bool

	cmd := &cobra.Command{
		Use:   "folders",
		Short: "List folders with their special use, label and counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(ctx context.Context, s *imap.Session) error {
				folders, err := s.ListFolders(ctx)
				if err != nil {
					return err
				}

				rows := folderRows(folders)
				if syncableOnly {
					kept := rows[:0]
					for _, row := range rows {
						if row.Syncable {
							kept = append(kept, row)
						}
					}
					rows = kept
				}

				if opts.json {
					return writeJSON(cmd.OutOrStdout(), rows)
				}
				printFolders(cmd.OutOrStdout(), rows)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&syncableOnly, "syncable", false, "Only list folders worth syncing")

	return cmd
}
