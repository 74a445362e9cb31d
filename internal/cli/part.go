package cli

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"imapcore/internal/imap"

	"github.com/spf13/cobra"
)

func newPartCmd(opts *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "part <uid> <section>",
		Short: `Fetch one body section by server numbering, e.g. "2" or "1.2"`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := parseUID(args[0])
			if err != nil {
				return err
			}

			return opts.withSession(cmd, func(ctx context.Context, s *imap.Session) error {
				encoded, err := s.FetchPart(ctx, opts.folder, uid, args[1])
				if err != nil {
					return err
				}
				if output == "" {
					fmt.Fprintln(cmd.OutOrStdout(), encoded)
					return nil
				}

				data, err := base64.StdEncoding.DecodeString(encoded)
				if err != nil {
					return err
				}
				if err := os.WriteFile(output, data, 0o600); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d bytes to %s\n", len(data), output)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the raw section to this file instead of printing base64")

	return cmd
}
