package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTestCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Connect, authenticate and list folders to check the account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := requireSession(cfg); err != nil {
				return err
			}

			summary, err := opts.service(cmd).TestConnection(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), summary)
			return nil
		},
	}
}
