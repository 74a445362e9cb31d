package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/rs/xid"
)

// Security selects how a connection is protected.
type Security string

const (
	SecurityTLS      Security = "tls"
	SecurityStartTLS Security = "starttls"
	SecurityNone     Security = "none"
)

// Stage names the step of connection setup that failed.
type Stage string

const (
	StageTCP      Stage = "tcp connect"
	StageTLS      Stage = "tls handshake"
	StageGreeting Stage = "greeting"
	StageStartTLS Stage = "starttls"
)

const (
	maxLineLength   = 4096
	maxPreambleRead = 32

	// Served to the protocol client after a STARTTLS upgrade: the server
	// does not repeat its greeting on the encrypted stream.
	upgradedGreeting = "* OK TLS negotiation completed\r\n"
)

var (
	ErrUnknownSecurity  = errors.New("unknown security mode")
	ErrBadGreeting      = errors.New("unexpected server greeting")
	ErrStartTLSRejected = errors.New("STARTTLS rejected")
	ErrUnexpectedData   = errors.New("unexpected plaintext after STARTTLS response")
	errLineTooLong      = errors.New("server line too long")
	errNoTaggedResponse = errors.New("no tagged response to STARTTLS")
)

// Error reports a failed connection stage against a host.
type Error struct {
	Stage Stage
	Host  string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s to %s failed: %v", e.Stage, e.Host, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Options struct {
	Host     string
	Port     int
	Security Security
	// TLSConfig is cloned; ServerName defaults to Host.
	TLSConfig *tls.Config
	Dialer    *net.Dialer
}

// Open connects to opts.Host and returns a stream ready for the protocol
// greeting (tls, none) or already past it (starttls). The context bounds
// the whole negotiation; the returned stream is not tied to it.
func Open(ctx context.Context, opts Options) (*Stream, error) {
	switch opts.Security {
	case SecurityTLS, SecurityStartTLS, SecurityNone:
	default:
		return nil, fmt.Errorf("%w: %q (expected %s, %s, or %s)",
			ErrUnknownSecurity, opts.Security, SecurityTLS, SecurityStartTLS, SecurityNone)
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	addr := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &Error{Stage: StageTCP, Host: addr, Err: err}
	}

	stream, err := negotiate(ctx, conn, opts)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return stream, nil
}

func negotiate(ctx context.Context, conn net.Conn, opts Options) (*Stream, error) {
	switch opts.Security {
	case SecurityNone:
		return newPlain(conn), nil
	case SecurityTLS:
		tlsConn, err := handshake(ctx, conn, opts)
		if err != nil {
			return nil, err
		}
		return newTLS(tlsConn, nil), nil
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	return startTLS(ctx, conn, opts)
}

func startTLS(ctx context.Context, conn net.Conn, opts Options) (*Stream, error) {
	fail := func(stage Stage, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return &Error{Stage: stage, Host: opts.Host, Err: err}
	}

	br := bufio.NewReaderSize(conn, maxLineLength)
	greeting, err := readLine(br)
	if err != nil {
		return nil, fail(StageGreeting, err)
	}
	if !hasStatus(greeting, "*", "OK") {
		return nil, fail(StageGreeting, fmt.Errorf("%w: %q", ErrBadGreeting, greeting))
	}

	tag := strings.ToUpper(xid.New().String())
	if _, err := io.WriteString(conn, tag+" STARTTLS\r\n"); err != nil {
		return nil, fail(StageStartTLS, err)
	}

	for i := 0; i < maxPreambleRead; i++ {
		line, err := readLine(br)
		if err != nil {
			return nil, fail(StageStartTLS, err)
		}
		if !strings.HasPrefix(line, tag+" ") {
			continue
		}
		if !hasStatus(line, tag, "OK") {
			return nil, fail(StageStartTLS, fmt.Errorf("%w: %q", ErrStartTLSRejected, line))
		}
		if br.Buffered() > 0 {
			return nil, fail(StageStartTLS, ErrUnexpectedData)
		}
		tlsConn, err := handshake(ctx, conn, opts)
		if err != nil {
			return nil, err
		}
		return newTLS(tlsConn, []byte(upgradedGreeting)), nil
	}
	return nil, fail(StageStartTLS, errNoTaggedResponse)
}

func handshake(ctx context.Context, conn net.Conn, opts Options) (*tls.Conn, error) {
	var cfg *tls.Config
	if opts.TLSConfig != nil {
		cfg = opts.TLSConfig.Clone()
	} else {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if cfg.ServerName == "" {
		cfg.ServerName = opts.Host
	}

	tlsConn := tls.Client(conn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, &Error{Stage: StageTLS, Host: opts.Host, Err: err}
	}
	return tlsConn, nil
}

func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadSlice('\n')
	if err != nil {
		if errors.Is(err, bufio.ErrBufferFull) {
			return "", errLineTooLong
		}
		if errors.Is(err, io.EOF) {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}
	return strings.TrimRight(string(line), "\r\n"), nil
}

// hasStatus reports whether line is "<tag> <status> ...".
func hasStatus(line, tag, status string) bool {
	fields := strings.Fields(line)
	return len(fields) >= 2 && fields[0] == tag && strings.EqualFold(fields[1], status)
}
