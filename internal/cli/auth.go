package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"imapcore/internal/config"
	"imapcore/internal/secrets"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Account and credential setup",
	}
	cmd.AddCommand(newAuthLoginCmd())
	cmd.AddCommand(newAuthLogoutCmd())
	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var (
		host     string
		port     int
		security string
		insecure bool
		username string
		secret   string
		oauth2   bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the IMAP account in the config file and its secret in the keyring",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("host") {
				cfg.IMAP.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.IMAP.Port = port
			}
			if cmd.Flags().Changed("security") {
				cfg.IMAP.Security = config.NormalizeSecurity(security)
			}
			if cmd.Flags().Changed("insecure") {
				cfg.IMAP.InsecureSkipVerify = insecure
			}
			if cmd.Flags().Changed("username") {
				cfg.Auth.Username = username
			}
			if cmd.Flags().Changed("oauth2") {
				cfg.Auth.Method = config.AuthPassword
				if oauth2 {
					cfg.Auth.Method = config.AuthOAuth2
				}
			}

			if err := config.Validate(cfg); err != nil {
				return err
			}

			if !cmd.Flags().Changed("secret") {
				label := "Password"
				if cfg.Auth.Method == config.AuthOAuth2 {
					label = "OAuth2 access token"
				}
				secret, err = promptSecret(cmd.ErrOrStderr(), cmd.InOrStdin(), label)
				if err != nil {
					return err
				}
			}
			if secret != "" {
				if err := secrets.New(cfg).Set(secret); err != nil {
					return err
				}
			}

			cfg.Auth.Secret = ""
			path, err := config.Save(cfg)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Config saved to %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "IMAP host")
	cmd.Flags().IntVar(&port, "port", 0, "IMAP port")
	cmd.Flags().StringVar(&security, "security", "", "Connection security: tls, starttls, or none")
	cmd.Flags().BoolVar(&insecure, "insecure", false, "Skip TLS certificate verification")
	cmd.Flags().StringVar(&username, "username", "", "Username")
	cmd.Flags().StringVar(&secret, "secret", "", "Password or access token (prompted when omitted)")
	cmd.Flags().BoolVar(&oauth2, "oauth2", false, "Authenticate with XOAUTH2 and an access token")

	return cmd
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored secret of the configured account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := secrets.New(cfg).Delete(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Secret removed.")
			return nil
		},
	}
}

func promptSecret(out io.Writer, in io.Reader, label string) (string, error) {
	fmt.Fprintf(out, "%s: ", label)
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(line), nil
}
