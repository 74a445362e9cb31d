package imap

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"imapcore/internal/config"
)

// Session owns one authenticated connection. Operations are serialized;
// each one selects the folder it works on.
type Session struct {
	mu     sync.Mutex
	client Client
	host   string
	log    *slog.Logger
	closed bool
}

func NewSession(c Client, host string, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{client: c, host: host, log: logger.With("host", host)}
}

// Connect dials, authenticates and wraps the connection in a Session.
func Connect(ctx context.Context, cfg config.Config, opts Options) (*Session, error) {
	c, err := Dial(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}
	return NewSession(c, cfg.IMAP.Host, opts.logger()), nil
}

// Logout ends the session. Calling it on a closed session is a no-op.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	stop := context.AfterFunc(ctx, func() { _ = s.client.Terminate() })
	err := s.client.Logout()
	if !stop() {
		return s.fail(KindTransport, "LOGOUT", "", 0, ctx.Err())
	}
	if err != nil {
		_ = s.client.Terminate()
		return s.fail(KindTransport, "LOGOUT", "", 0, err)
	}
	return nil
}

// do runs fn with exclusive use of the connection. Cancelling ctx tears the
// connection down and leaves the session closed.
func (s *Session) do(ctx context.Context, op, folder string, fn func(c Client) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.fail(KindTransport, op, folder, 0, ErrSessionClosed)
	}
	if err := ctx.Err(); err != nil {
		return s.fail(KindTransport, op, folder, 0, err)
	}

	stop := context.AfterFunc(ctx, func() { _ = s.client.Terminate() })
	err := fn(s.client)
	if !stop() {
		s.closed = true
		return s.fail(KindTransport, op, folder, 0, ctx.Err())
	}
	if err == nil {
		return nil
	}

	var e *Error
	if !errors.As(err, &e) {
		e = s.wrap(op, folder, 0, err)
		err = e
	}
	if e.Kind == KindTransport {
		s.closed = true
	}
	return err
}

func (s *Session) fail(kind Kind, op, folder string, uid uint32, err error) *Error {
	return &Error{Kind: kind, Op: op, Host: s.host, Folder: folder, UID: uid, Err: err}
}

// wrap builds an *Error for a failed client call, deciding between a
// dropped connection and a server refusal.
func (s *Session) wrap(op, folder string, uid uint32, err error) *Error {
	return s.fail(classify(s.client, err), op, folder, uid, err)
}

// collect runs a go-imap command that streams into a channel and gathers
// every value it sends. Commands that fail early may return without closing
// the channel.
func collect[T any](run func(ch chan T) error) ([]T, error) {
	ch := make(chan T, 16)
	done := make(chan error, 1)
	go func() {
		done <- run(ch)
	}()

	var items []T
	for {
		select {
		case item, ok := <-ch:
			if !ok {
				return items, <-done
			}
			items = append(items, item)
		case err := <-done:
			for {
				select {
				case item, ok := <-ch:
					if !ok {
						return items, err
					}
					items = append(items, item)
				default:
					return items, err
				}
			}
		}
	}
}
