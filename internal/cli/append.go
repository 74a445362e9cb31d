package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"imapcore/internal/imap"

	"github.com/emersion/go-mbox"
	"github.com/spf13/cobra"
)

func newAppendCmd(opts *rootOptions) *cobra.Command {
	var (
		isMbox bool
		flags  string
		as     string
	)

	cmd := &cobra.Command{
		Use:   "append <file>",
		Short: `Upload a message file ("-" for stdin), or every message of an mbox file`,
		Args:  cobra.ExactArgs(1),
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
			folder, flagList, err := appendTarget(opts, cmd.Flags().Changed("folder"), as, splitList(flags))
			if err != nil {
				return err
			}

			return opts.withSession(cmd, func(ctx context.Context, s *imap.Session) error {
				if !isMbox {
					raw, err := io.ReadAll(in)
					if err != nil {
						return err
					}
					if err := s.Append(ctx, folder, flagList, raw); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Appended to %s.\n", folder)
					return nil
				}

				count, err := appendMbox(ctx, s, folder, flagList, in)
				fmt.Fprintf(cmd.OutOrStdout(), "Appended %d message(s) to %s.\n", count, folder)
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&isMbox, "mbox", false, "Treat the file as an mbox and append each message")
	cmd.Flags().StringVar(&flags, "flags", "", `Comma-separated flags to set, e.g. "\Seen,\Flagged"`)
	cmd.Flags().StringVar(&as, "as", "", "Store as a draft or sent message: draft or sent (uses the configured folder unless --folder is given)")

	return cmd
}

// appendTarget resolves --as to the configured drafts or sent folder and
// adds the matching flag.
func appendTarget(opts *rootOptions, folderSet bool, as string, flags []string) (string, []string, error) {
	var dest, flag string
	switch strings.ToLower(as) {
	case "":
		return opts.folder, flags, nil
	case "draft", "drafts":
		dest, flag = opts.defaults.DraftsMailbox, `\Draft`
	case "sent":
		dest, flag = opts.defaults.SentMailbox, `\Seen`
	default:
		return "", nil, fmt.Errorf("unknown --as value %q (use draft or sent)", as)
	}
	if folderSet || dest == "" {
		dest = opts.folder
	}
	if !slices.Contains(flags, flag) {
		flags = append(flags, flag)
	}
	return dest, flags, nil
}

// appendMbox uploads messages in file order and stops at the first failure.
func appendMbox(ctx context.Context, s *imap.Session, folder string, flags []string, in io.Reader) (int, error) {
	reader := mbox.NewReader(in)
	count := 0
	for {
		msg, err := reader.NextMessage()
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			return count, fmt.Errorf("read mbox message %d: %w", count+1, err)
		}
		raw, err := io.ReadAll(msg)
		if err != nil {
			return count, fmt.Errorf("read mbox message %d: %w", count+1, err)
		}
		if err := s.Append(ctx, folder, flags, raw); err != nil {
			return count, err
		}
		count++
	}
}
