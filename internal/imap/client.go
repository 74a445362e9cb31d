package imap

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"time"

	"imapcore/internal/config"
	"imapcore/internal/transport"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/emersion/go-sasl"
)

// Client is the subset of the go-imap client the session layer drives.
type Client interface {
	State() imap.ConnState
	Login(username, password string) error
	Authenticate(auth sasl.Client) error
	Logout() error
	Terminate() error
	Support(cap string) (bool, error)
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	Status(name string, items []imap.StatusItem) (*imap.MailboxStatus, error)
	List(ref, name string, ch chan *imap.MailboxInfo) error
	UidSearch(criteria *imap.SearchCriteria) ([]uint32, error)
	UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	UidStore(seqset *imap.SeqSet, item imap.StoreItem, value interface{}, ch chan *imap.Message) error
	UidMove(seqset *imap.SeqSet, mailbox string) error
	UidCopy(seqset *imap.SeqSet, mailbox string) error
	Append(mailbox string, flags []string, date time.Time, msg imap.Literal) error
	Expunge(ch chan uint32) error
}

type Options struct {
	Logger *slog.Logger
	// TLSConfig replaces the config derived from cfg.IMAP.
	TLSConfig *tls.Config
	// DebugWire receives the raw protocol exchange with credentials redacted.
	DebugWire io.Writer
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o Options) tlsConfig(cfg config.Config) *tls.Config {
	if o.TLSConfig != nil {
		return o.TLSConfig
	}
	return &tls.Config{
		ServerName:         cfg.IMAP.Host,
		InsecureSkipVerify: cfg.IMAP.InsecureSkipVerify,
		MinVersion:         tls.VersionTLS12,
	}
}

// Dial opens the transport, reads the greeting and authenticates. The
// context bounds setup only.
func Dial(ctx context.Context, cfg config.Config, opts Options) (Client, error) {
	host := cfg.IMAP.Host
	stream, err := transport.Open(ctx, transport.Options{
		Host:      host,
		Port:      cfg.IMAP.Port,
		Security:  transport.Security(config.NormalizeSecurity(cfg.IMAP.Security)),
		TLSConfig: opts.tlsConfig(cfg),
	})
	if err != nil {
		kind := KindTransport
		if errors.Is(err, transport.ErrUnknownSecurity) {
			kind = KindConfig
		}
		return nil, &Error{Kind: kind, Op: "CONNECT", Host: host, Err: err}
	}

	stop := context.AfterFunc(ctx, func() { _ = stream.Close() })
	c, err := imapclient.New(stream)
	if !stop() {
		if c != nil {
			_ = c.Terminate()
		}
		return nil, &Error{Kind: KindTransport, Op: "GREETING", Host: host, Err: ctx.Err()}
	}
	if err != nil {
		_ = stream.Close()
		return nil, &Error{Kind: KindTransport, Op: "GREETING", Host: host, Err: err}
	}
	if c.State() == imap.LogoutState {
		_ = c.Terminate()
		return nil, &Error{Kind: KindTransport, Op: "GREETING", Host: host, Err: errors.New("server closed the connection")}
	}

	c.ErrorLog = slog.NewLogLogger(opts.logger().Handler(), slog.LevelWarn)
	if opts.DebugWire != nil {
		c.SetDebug(NewWireTrace(opts.DebugWire))
	}

	if c.State() == imap.NotAuthenticatedState {
		if !stream.Encrypted() {
			opts.logger().Warn("sending credentials without TLS", "host", host)
		}
		stop := context.AfterFunc(ctx, func() { _ = c.Terminate() })
		err := authenticate(c, cfg)
		if !stop() {
			return nil, &Error{Kind: KindTransport, Op: "AUTHENTICATE", Host: host, Err: ctx.Err()}
		}
		if err != nil {
			_ = c.Terminate()
			return nil, err
		}
	}

	attrs := []any{"host", host, "security", stream.Kind().String(), "encrypted", stream.Encrypted(), "user", cfg.Auth.Username}
	if state, ok := stream.TLSState(); ok {
		attrs = append(attrs, "tls_version", tls.VersionName(state.Version), "cipher", tls.CipherSuiteName(state.CipherSuite))
	}
	opts.logger().Debug("imap session established", attrs...)
	return c, nil
}

// authenticate uses XOAUTH2 for the oauth2 method and LOGIN for anything
// else.
func authenticate(c Client, cfg config.Config) error {
	if cfg.Auth.Method == config.AuthOAuth2 {
		if err := c.Authenticate(NewXOAuth2Client(cfg.Auth.Username, cfg.Auth.Secret)); err != nil {
			return authError(c, "XOAUTH2", cfg.IMAP.Host, err)
		}
		return nil
	}
	if err := c.Login(cfg.Auth.Username, cfg.Auth.Secret); err != nil {
		return authError(c, "LOGIN", cfg.IMAP.Host, err)
	}
	return nil
}

func authError(c Client, op, host string, err error) error {
	kind := KindAuth
	if classify(c, err) == KindTransport {
		kind = KindTransport
	}
	return &Error{Kind: kind, Op: op, Host: host, Err: err}
}
