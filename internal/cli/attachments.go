package cli

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"imapcore/internal/imap"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newAttachmentsCmd(opts *rootOptions) *cobra.Command {
	var (
		save      string
		outputDir string
	)

	cmd := &cobra.Command{
		Use:   "attachments <uid>",
		Short: "List the attachments of a message, or save one with --save",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := parseUID(args[0])
			if err != nil {
				return err
			}

			return opts.withSession(cmd, func(ctx context.Context, s *imap.Session) error {
				if save == "" {
					msg, err := s.FetchMessage(ctx, opts.folder, uid)
					if err != nil {
						return err
					}
					if opts.json {
						return writeJSON(cmd.OutOrStdout(), msg.Attachments)
					}
					printAttachments(cmd.OutOrStdout(), msg.Attachments)
					return nil
				}

				att, encoded, err := s.FetchAttachment(ctx, opts.folder, uid, save)
				if err != nil {
					return err
				}
				data, err := base64.StdEncoding.DecodeString(encoded)
				if err != nil {
					return err
				}

				if err := os.MkdirAll(outputDir, 0o755); err != nil {
					return err
				}
				path := filepath.Join(outputDir, attachmentFilename(att.Filename, att.PartID))
				if err := os.WriteFile(path, data, 0o600); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", path, humanize.Bytes(uint64(len(data))))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&save, "save", "", "Part id of the attachment to save")
	cmd.Flags().StringVar(&outputDir, "output", ".", "Output directory")

	return cmd
}

// attachmentFilename keeps only the base name so a crafted filename cannot
// escape the output directory.
func attachmentFilename(name, partID string) string {
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if base == "." || base == "/" || base == ".." || base == "" {
		return "attachment-" + partID
	}
	return base
}
