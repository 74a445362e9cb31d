package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"imapcore/internal/config"
	"imapcore/internal/imap"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	folder    string
	json      bool
	logLevel  string
	debugWire bool

	logger   *slog.Logger
	defaults config.DefaultsConfig
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          config.AppName,
		Short:        "imapcore talks to IMAP servers: folders, messages, flags and attachments",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				cfg = config.DefaultConfig()
			}
			level := cfg.Log.Level
			if cmd.Flags().Changed("log-level") {
				level = opts.logLevel
			}
			opts.logger = setupLogger(cmd.ErrOrStderr(), level, cfg.Log.Format)
			slog.SetDefault(opts.logger)
			opts.defaults = cfg.Defaults
			if opts.folder == "" {
				opts.folder = cfg.Defaults.Mailbox
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.folder, "folder", "", "Folder to operate on (default from config, usually INBOX)")
	cmd.PersistentFlags().BoolVar(&opts.json, "json", false, "Print JSON instead of tables")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().BoolVar(&opts.debugWire, "debug-wire", false, "Trace the IMAP exchange to stderr with credentials redacted")

	cmd.AddCommand(newAuthCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newFoldersCmd(opts))
	cmd.AddCommand(newStatusCmd(opts))
	cmd.AddCommand(newFetchCmd(opts))
	cmd.AddCommand(newReadCmd(opts))
	cmd.AddCommand(newUIDsCmd(opts))
	cmd.AddCommand(newFlagCmd(opts))
	cmd.AddCommand(newMoveCmd(opts))
	cmd.AddCommand(newDeleteCmd(opts))
	cmd.AddCommand(newAppendCmd(opts))
	cmd.AddCommand(newPartCmd(opts))
	cmd.AddCommand(newAttachmentsCmd(opts))
	cmd.AddCommand(newTestCmd(opts))

	cmd.SetErr(os.Stderr)
	cmd.SetOut(os.Stdout)

	return cmd
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(exitCode(err))
	}
}

// exitCode lets scripts tell bad input and bad credentials apart from
// network trouble.
func exitCode(err error) int {
	switch imap.KindOf(err) {
	case imap.KindConfig:
		return 2
	case imap.KindAuth:
		return 3
	case imap.KindNotFound:
		return 4
	case imap.KindTransport:
		return 5
	default:
		return 1
	}
}

func setupLogger(w io.Writer, levelName, format string) *slog.Logger {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch strings.ToLower(levelName) {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

func (o *rootOptions) service(cmd *cobra.Command) *imap.Service {
	svcOpts := imap.Options{Logger: o.logger}
	if o.debugWire {
		svcOpts.DebugWire = cmd.ErrOrStderr()
	}
	return imap.NewService(svcOpts)
}

// withSession loads configuration and secrets, then runs fn on a session
// that is logged out afterwards.
func (o *rootOptions) withSession(cmd *cobra.Command, fn func(ctx context.Context, s *imap.Session) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := requireSession(cfg); err != nil {
		return err
	}
	ctx := cmd.Context()
	return o.service(cmd).Do(ctx, cfg, func(s *imap.Session) error {
		return fn(ctx, s)
	})
}
