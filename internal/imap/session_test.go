package imap

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"imapcore/internal/config"
	"imapcore/internal/testutil"

	"github.com/emersion/go-imap"
)

const partsMessage = "From: sender@example.org\r\n" +
	"To: rcpt@example.org\r\n" +
	"Subject: Parts\r\n" +
	"Content-Type: multipart/mixed; boundary=\"XX\"\r\n" +
	"\r\n" +
	"--XX\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"hello part\r\n" +
	"--XX\r\n" +
	"Content-Type: application/octet-stream\r\n" +
	"Content-Disposition: attachment; filename=\"data.bin\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"cGF5bG9hZA==\r\n" +
	"--XX--\r\n"

func serverConfig(srv *testutil.Server, security string) config.Config {
	cfg := config.DefaultConfig()
	cfg.IMAP.Host = srv.Host
	cfg.IMAP.Port = srv.Port
	cfg.IMAP.Security = security
	cfg.Auth.Method = config.AuthPassword
	cfg.Auth.Username = testutil.Username
	cfg.Auth.Secret = testutil.Password
	return cfg
}

func connect(t *testing.T, srv *testutil.Server, cfg config.Config) *Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	session, err := Connect(ctx, cfg, Options{TLSConfig: srv.ClientTLS})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = session.Logout(context.Background()) })
	return session
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSessionOverEachSecurityMode(t *testing.T) {
	for _, security := range []string{"none", "starttls", "tls", "ssl"} {
		t.Run(security, func(t *testing.T) {
			serverMode := security
			if serverMode == "ssl" {
				serverMode = "tls"
			}
			srv := testutil.StartServer(t, testutil.ServerOptions{Security: serverMode})
			session := connect(t, srv, serverConfig(srv, security))

			folders, err := session.ListFolders(testContext(t))
			if err != nil {
				t.Fatalf("list folders: %v", err)
			}
			if len(folders) != 1 || folders[0].Path != "INBOX" || folders[0].Exists != 1 {
				t.Fatalf("unexpected folders %+v", folders)
			}
		})
	}
}

func TestFetchFromServer(t *testing.T) {
	srv := testutil.StartServer(t, testutil.ServerOptions{Security: "none"})
	session := connect(t, srv, serverConfig(srv, "none"))
	ctx := testContext(t)

	result, err := session.FetchMessages(ctx, "INBOX", "1:10")
	if err != nil {
		t.Fatalf("fetch messages: %v", err)
	}
	if len(result.Messages) != 1 {
		t.Fatalf("expected one message, got %d", len(result.Messages))
	}
	msg := result.Messages[0]
	if msg.UID != 6 || msg.Folder != "INBOX" || msg.Subject != "A little message, just for you" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if msg.BodyText != "Hi there :)" || !msg.IsRead || msg.FromAddress != "contact@example.org" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if result.Status.UIDNext != 7 || result.Status.Exists != 1 || result.Status.UIDValidity == 0 {
		t.Fatalf("unexpected status %+v", result.Status)
	}

	one, err := session.FetchMessage(ctx, "INBOX", 6)
	if err != nil {
		t.Fatalf("fetch message: %v", err)
	}
	if one.MessageID != msg.MessageID || one.Snippet != "Hi there :)" {
		t.Fatalf("single fetch differs: %+v", one)
	}

	if _, err := session.FetchMessage(ctx, "INBOX", 999); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	// BODY.PEEK must leave \Seen alone.
	if err := session.SetFlags(ctx, "INBOX", "6", RemoveFlags, []string{imap.SeenFlag}); err != nil {
		t.Fatalf("clear seen: %v", err)
	}
	if _, err := session.FetchMessage(ctx, "INBOX", 6); err != nil {
		t.Fatalf("fetch message: %v", err)
	}
	again, err := session.FetchMessage(ctx, "INBOX", 6)
	if err != nil {
		t.Fatalf("fetch message: %v", err)
	}
	if again.IsRead {
		t.Fatalf("fetching marked the message read")
	}
}

func TestUIDQueriesAgainstServer(t *testing.T) {
	srv := testutil.StartServer(t, testutil.ServerOptions{Security: "none"})
	session := connect(t, srv, serverConfig(srv, "none"))
	ctx := testContext(t)

	all, err := session.AllUIDs(ctx, "INBOX")
	if err != nil || !reflect.DeepEqual(all, []uint32{6}) {
		t.Fatalf("expected [6], got %v (%v)", all, err)
	}
	fresh, err := session.NewUIDs(ctx, "INBOX", 6)
	if err != nil || len(fresh) != 0 {
		t.Fatalf("expected no new uids, got %v (%v)", fresh, err)
	}
	fresh, err = session.NewUIDs(ctx, "INBOX", 5)
	if err != nil || !reflect.DeepEqual(fresh, []uint32{6}) {
		t.Fatalf("expected [6], got %v (%v)", fresh, err)
	}
}

func TestAppendAndFlags(t *testing.T) {
	srv := testutil.StartServer(t, testutil.ServerOptions{Security: "none"})
	session := connect(t, srv, serverConfig(srv, "none"))
	ctx := testContext(t)

	raw := []byte("From: Dana Reyes <dana@example.org>\r\n" +
		"To: Sam Lee <sam@example.org>, ops@example.org\r\n" +
		"Subject: Draft reply\r\n" +
		"\r\n" +
		"not sent yet\r\n")
	if err := session.Append(ctx, "INBOX", []string{imap.DraftFlag}, raw); err != nil {
		t.Fatalf("append: %v", err)
	}
	fresh, err := session.NewUIDs(ctx, "INBOX", 6)
	if err != nil || len(fresh) != 1 {
		t.Fatalf("expected one new uid, got %v (%v)", fresh, err)
	}
	uid := fresh[0]

	msg, err := session.FetchMessage(ctx, "INBOX", uid)
	if err != nil {
		t.Fatalf("fetch appended: %v", err)
	}
	if msg.Subject != "Draft reply" || !msg.IsDraft || msg.IsStarred {
		t.Fatalf("unexpected appended message %+v", msg)
	}
	if msg.FromAddress != "dana@example.org" || msg.FromName != "Dana Reyes" {
		t.Fatalf("unexpected sender %q <%s>", msg.FromName, msg.FromAddress)
	}
	if msg.To != "Sam Lee <sam@example.org>, ops@example.org" {
		t.Fatalf("unexpected recipients %q", msg.To)
	}

	if err := session.SetFlags(ctx, "INBOX", UIDSet(uid), AddFlags, []string{imap.FlaggedFlag}); err != nil {
		t.Fatalf("add flag: %v", err)
	}
	msg, err = session.FetchMessage(ctx, "INBOX", uid)
	if err != nil {
		t.Fatalf("fetch flagged: %v", err)
	}
	if !msg.IsStarred {
		t.Fatalf("expected message to be starred")
	}
}

func TestMoveAndDeleteAgainstServer(t *testing.T) {
	for _, noMove := range []bool{false, true} {
		name := "move"
		if noMove {
			name = "copy fallback"
		}
		t.Run(name, func(t *testing.T) {
			srv := testutil.StartServer(t, testutil.ServerOptions{Security: "none", NoMove: noMove})
			srv.CreateMailbox(t, "Archive")
			srv.Deliver(t, "INBOX", partsMessage)
			session := connect(t, srv, serverConfig(srv, "none"))
			ctx := testContext(t)

			if err := session.Move(ctx, "INBOX", "6", "Archive"); err != nil {
				t.Fatalf("move: %v", err)
			}
			if got := srv.Messages(t, "INBOX"); !reflect.DeepEqual(got, []uint32{7}) {
				t.Fatalf("expected only uid 7 left in INBOX, got %v", got)
			}
			if got := srv.Messages(t, "Archive"); len(got) != 1 {
				t.Fatalf("expected one message in Archive, got %v", got)
			}

			if err := session.Delete(ctx, "INBOX", "7"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if got := srv.Messages(t, "INBOX"); len(got) != 0 {
				t.Fatalf("expected empty INBOX, got %v", got)
			}
		})
	}
}

func TestFolderStatusAgainstServer(t *testing.T) {
	srv := testutil.StartServer(t, testutil.ServerOptions{Security: "none"})
	session := connect(t, srv, serverConfig(srv, "none"))

	status, err := session.FolderStatus(testContext(t), "INBOX")
	if err != nil {
		t.Fatalf("folder status: %v", err)
	}
	if status.Exists != 1 || status.UIDNext != 7 || status.UIDValidity == 0 || status.Unseen != 0 {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestPartsAgainstServer(t *testing.T) {
	srv := testutil.StartServer(t, testutil.ServerOptions{Security: "none"})
	srv.Deliver(t, "INBOX", partsMessage)
	session := connect(t, srv, serverConfig(srv, "none"))
	ctx := testContext(t)

	encoded, err := session.FetchPart(ctx, "INBOX", 7, "1")
	if err != nil {
		t.Fatalf("fetch part: %v", err)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("decode part: %v", err)
	}
	if strings.TrimSpace(string(data)) != "hello part" {
		t.Fatalf("unexpected part %q", data)
	}

	if _, err := session.FetchPart(ctx, "INBOX", 7, "abc"); KindOf(err) != KindConfig {
		t.Fatalf("expected config error for a bad section, got %v", err)
	}

	att, encoded, err := session.FetchAttachment(ctx, "INBOX", 7, "1")
	if err != nil {
		t.Fatalf("fetch attachment: %v", err)
	}
	if att.Filename != "data.bin" || att.Size != 7 {
		t.Fatalf("unexpected attachment %+v", att)
	}
	data, _ = base64.StdEncoding.DecodeString(encoded)
	if string(data) != "payload" {
		t.Fatalf("unexpected attachment data %q", data)
	}

	if _, _, err := session.FetchAttachment(ctx, "INBOX", 7, "9"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAuthentication(t *testing.T) {
	srv := testutil.StartServer(t, testutil.ServerOptions{Security: "none", OAuthToken: "ya29.token"})
	ctx := testContext(t)

	cfg := serverConfig(srv, "none")
	cfg.Auth.Method = config.AuthOAuth2
	cfg.Auth.Secret = "ya29.token"
	session := connect(t, srv, cfg)
	if _, err := session.AllUIDs(ctx, "INBOX"); err != nil {
		t.Fatalf("xoauth2 session unusable: %v", err)
	}

	cfg.Auth.Secret = "expired"
	_, err := Connect(ctx, cfg, Options{})
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindAuth || e.Op != "XOAUTH2" {
		t.Fatalf("expected XOAUTH2 auth error, got %v", err)
	}

	cfg = serverConfig(srv, "none")
	cfg.Auth.Secret = "wrong"
	_, err = Connect(ctx, cfg, Options{})
	if !errors.As(err, &e) || e.Kind != KindAuth || e.Op != "LOGIN" {
		t.Fatalf("expected LOGIN auth error, got %v", err)
	}
	if strings.Contains(err.Error(), "wrong") {
		t.Fatalf("error leaks the password: %v", err)
	}
}

func TestConnectErrors(t *testing.T) {
	srv := testutil.StartServer(t, testutil.ServerOptions{Security: "none"})
	ctx := testContext(t)

	cfg := serverConfig(srv, "none")
	cfg.IMAP.Security = "quantum"
	if _, err := Connect(ctx, cfg, Options{}); KindOf(err) != KindConfig {
		t.Fatalf("expected config error, got %v", err)
	}

	cfg = serverConfig(srv, "tls")
	if _, err := Connect(ctx, cfg, Options{}); KindOf(err) != KindTransport {
		t.Fatalf("expected transport error for tls against a plaintext server, got %v", err)
	}
}

func TestWireTraceRedactsLogin(t *testing.T) {
	srv := testutil.StartServer(t, testutil.ServerOptions{Security: "none"})
	trace := &lockedWriter{}
	cfg := serverConfig(srv, "none")

	ctx := testContext(t)
	session, err := Connect(ctx, cfg, Options{DebugWire: trace})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := session.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if strings.Contains(trace.String(), testutil.Password) {
		t.Fatalf("trace contains the password:\n%s", trace.String())
	}
	if !strings.Contains(trace.String(), "LOGIN "+redacted) {
		t.Fatalf("expected redacted LOGIN in trace:\n%s", trace.String())
	}
}

func TestWireTraceRedactsLiteralPassword(t *testing.T) {
	srv := testutil.StartServer(t, testutil.ServerOptions{Security: "none"})
	trace := &lockedWriter{}
	cfg := serverConfig(srv, "none")
	cfg.Auth.Secret = "pässwört-secret"

	_, err := Connect(testContext(t), cfg, Options{DebugWire: trace})
	if KindOf(err) != KindAuth {
		t.Fatalf("expected an auth error, got %v", err)
	}
	got := trace.String()
	if strings.Contains(got, "secret") || strings.Contains(got, "pässwört") {
		t.Fatalf("trace contains the password:\n%s", got)
	}
	if !strings.Contains(got, "LOGIN "+redacted) || !strings.Contains(got, "NO ") {
		t.Fatalf("expected redacted LOGIN and its failure in trace:\n%s", got)
	}
}

func TestConnectLogsTransportSecurity(t *testing.T) {
	for _, security := range []string{"none", "tls"} {
		t.Run(security, func(t *testing.T) {
			srv := testutil.StartServer(t, testutil.ServerOptions{Security: security})
			logs := &lockedWriter{}
			logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

			ctx := testContext(t)
			session, err := Connect(ctx, serverConfig(srv, security), Options{Logger: logger, TLSConfig: srv.ClientTLS})
			if err != nil {
				t.Fatalf("connect: %v", err)
			}
			_ = session.Logout(ctx)

			got := logs.String()
			if security == "tls" {
				if !strings.Contains(got, "encrypted=true") || !strings.Contains(got, "tls_version=") {
					t.Fatalf("expected TLS parameters in log:\n%s", got)
				}
				if strings.Contains(got, "without TLS") {
					t.Fatalf("unexpected plaintext warning:\n%s", got)
				}
				return
			}
			if !strings.Contains(got, "encrypted=false") || !strings.Contains(got, "sending credentials without TLS") {
				t.Fatalf("expected plaintext warning in log:\n%s", got)
			}
			if strings.Contains(got, "tls_version=") {
				t.Fatalf("unexpected TLS parameters:\n%s", got)
			}
		})
	}
}

type lockedWriter struct {
	mu sync.Mutex
	b  strings.Builder
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.b.Write(p)
}

func (w *lockedWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.b.String()
}
