package testutil

import (
	"bytes"
	"crypto/tls"
	"errors"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/backend"
	"github.com/emersion/go-imap/backend/memory"
	"github.com/emersion/go-imap/server"
	"github.com/emersion/go-sasl"
)

// Credentials of the single account in the memory backend. Its INBOX holds
// one seen message with UID 6.
const (
	Username = "username"
	Password = "password"
)

type ServerOptions struct {
	// Security is "none", "starttls" or "tls".
	Security string
	// NoMove makes UID MOVE fail on every mailbox.
	NoMove bool
	// OAuthToken enables AUTHENTICATE XOAUTH2 accepting this bearer token.
	OAuthToken string
}

type Server struct {
	Host      string
	Port      int
	Backend   *memory.Backend
	ClientTLS *tls.Config

	imapServer *server.Server
}

// StartServer runs a go-imap server over the memory backend until the test
// ends.
func StartServer(t testing.TB, opts ServerOptions) *Server {
	t.Helper()

	mem := memory.New()
	var be backend.Backend = mem
	if opts.NoMove {
		be = noMoveBackend{Backend: mem}
	}

	s := server.New(be)
	s.AllowInsecureAuth = true
	s.ErrorLog = log.New(io.Discard, "", 0)
	if opts.OAuthToken != "" {
		token := opts.OAuthToken
		s.EnableAuth("XOAUTH2", func(conn server.Conn) sasl.Server {
			return &xoauth2Server{conn: conn, backend: be, token: token}
		})
	}

	ln, port := Listen(t)
	srv := &Server{Host: "127.0.0.1", Port: port, Backend: mem, imapServer: s}

	switch opts.Security {
	case "tls":
		serverTLS, clientTLS := TLSConfigs(t)
		ln = tls.NewListener(ln, serverTLS)
		srv.ClientTLS = clientTLS
	case "starttls":
		serverTLS, clientTLS := TLSConfigs(t)
		s.TLSConfig = serverTLS
		srv.ClientTLS = clientTLS
	}

	go func() { _ = s.Serve(ln) }()
	t.Cleanup(func() { _ = s.Close() })
	return srv
}

func (s *Server) user(t testing.TB) backend.User {
	t.Helper()
	u, err := s.Backend.Login(nil, Username, Password)
	if err != nil {
		t.Fatalf("backend login: %v", err)
	}
	return u
}

// CreateMailbox adds a mailbox to the test account.
func (s *Server) CreateMailbox(t testing.TB, name string) {
	t.Helper()
	if err := s.user(t).CreateMailbox(name); err != nil {
		t.Fatalf("create mailbox %s: %v", name, err)
	}
}

// Deliver appends raw to mailbox directly through the backend.
func (s *Server) Deliver(t testing.TB, mailbox string, raw string, flags ...string) {
	t.Helper()
	mbox, err := s.user(t).GetMailbox(mailbox)
	if err != nil {
		t.Fatalf("get mailbox %s: %v", mailbox, err)
	}
	if err := mbox.CreateMessage(flags, time.Now(), bytes.NewReader([]byte(raw))); err != nil {
		t.Fatalf("deliver to %s: %v", mailbox, err)
	}
}

// Messages returns the UIDs currently stored in mailbox.
func (s *Server) Messages(t testing.TB, mailbox string) []uint32 {
	t.Helper()
	mbox, err := s.user(t).GetMailbox(mailbox)
	if err != nil {
		t.Fatalf("get mailbox %s: %v", mailbox, err)
	}
	uids, err := mbox.SearchMessages(true, imap.NewSearchCriteria())
	if err != nil {
		t.Fatalf("search %s: %v", mailbox, err)
	}
	return uids
}

type noMoveBackend struct {
	backend.Backend
}

func (b noMoveBackend) Login(info *imap.ConnInfo, username, password string) (backend.User, error) {
	u, err := b.Backend.Login(info, username, password)
	if err != nil {
		return nil, err
	}
	return noMoveUser{User: u}, nil
}

type noMoveUser struct {
	backend.User
}

func (u noMoveUser) GetMailbox(name string) (backend.Mailbox, error) {
	mbox, err := u.User.GetMailbox(name)
	if err != nil {
		return nil, err
	}
	return noMoveMailbox{Mailbox: mbox}, nil
}

// noMoveMailbox hides the backend's MoveMessages so the server rejects MOVE.
type noMoveMailbox struct {
	backend.Mailbox
}

type xoauth2Server struct {
	conn    server.Conn
	backend backend.Backend
	token   string
}

func (s *xoauth2Server) Next(response []byte) ([]byte, bool, error) {
	if response == nil {
		return []byte{}, false, nil
	}

	var username, bearer string
	for _, field := range strings.Split(string(response), "\x01") {
		switch {
		case strings.HasPrefix(field, "user="):
			username = strings.TrimPrefix(field, "user=")
		case strings.HasPrefix(field, "auth=Bearer "):
			bearer = strings.TrimPrefix(field, "auth=Bearer ")
		}
	}
	if username == "" || bearer != s.token {
		return nil, true, errors.New("invalid credentials")
	}

	u, err := s.backend.Login(s.conn.Info(), username, Password)
	if err != nil {
		return nil, true, err
	}
	ctx := s.conn.Context()
	ctx.State = imap.AuthenticatedState
	ctx.User = u
	return nil, true, nil
}
