package cli

import (
	"context"
	"fmt"

	"imapcore/internal/imap"
	"imapcore/internal/message"

	"github.com/spf13/cobra"
)

func newFetchCmd(opts *rootOptions) *cobra.Command {
	var (
		since     uint32
		sinceSet  bool
		batchSize int
	)

	cmd := &cobra.Command{
		Use:   "fetch [uid-range]",
		Short: "Fetch and summarize messages by UID range, or everything after --since",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sinceSet = cmd.Flags().Changed("since")
			if sinceSet == (len(args) == 1) {
				return fmt.Errorf("give either a uid range or --since")
			}

			return opts.withSession(cmd, func(ctx context.Context, s *imap.Session) error {
				var result *imap.FetchResult
				var err error
				if sinceSet {
					result, err = fetchSince(ctx, s, opts.folder, since, batchSize)
				} else {
					result, err = s.FetchMessages(ctx, opts.folder, args[0])
				}
				if err != nil {
					return err
				}

				if opts.json {
					return writeJSON(cmd.OutOrStdout(), result)
				}
				printMessages(cmd.OutOrStdout(), result.Messages)
				return nil
			})
		},
	}

	cmd.Flags().Uint32Var(&since, "since", 0, "Fetch messages with a UID above this one")
	cmd.Flags().IntVar(&batchSize, "batch", imap.DefaultBatchSize, "UIDs per FETCH when using --since")

	return cmd
}

// fetchSince fetches the messages above lastUID in fixed-size batches. The
// status of the last batch is reported.
func fetchSince(ctx context.Context, s *imap.Session, folder string, lastUID uint32, batchSize int) (*imap.FetchResult, error) {
	uids, err := s.NewUIDs(ctx, folder, lastUID)
	if err != nil {
		return nil, err
	}

	result := &imap.FetchResult{Messages: []*message.Message{}}
	if len(uids) == 0 {
		status, err := s.FolderStatus(ctx, folder)
		if err != nil {
			return nil, err
		}
		result.Status = status
		return result, nil
	}

	for _, batch := range imap.UIDBatches(uids, batchSize) {
		part, err := s.FetchMessages(ctx, folder, batch)
		if err != nil {
			return nil, err
		}
		result.Messages = append(result.Messages, part.Messages...)
		result.Status = part.Status
	}
	return result, nil
}
