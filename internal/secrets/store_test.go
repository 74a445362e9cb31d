package secrets

import (
	"errors"
	"reflect"
	"testing"

	"imapcore/internal/config"

	"github.com/99designs/keyring"
)

func account(method, username string) config.Config {
	cfg := config.DefaultConfig()
	cfg.Auth.Method = method
	cfg.Auth.Username = username
	return cfg
}

func withRing(s *Store, ring keyring.Keyring) *Store {
	s.open = func() (keyring.Keyring, error) { return ring, nil }
	return s
}

func TestCredentialRoundTrip(t *testing.T) {
	ring := keyring.NewArrayKeyring(nil)
	token := withRing(New(account("oauth2", " Alice@Example.com ")), ring)

	if err := token.Set("ya29.token"); err != nil {
		t.Fatalf("set credential: %v", err)
	}
	if _, err := ring.Get("auth:oauth2:alice@example.com"); err != nil {
		t.Fatalf("expected key auth:oauth2:alice@example.com: %v", err)
	}

	got, err := withRing(New(account("OAUTH2", "alice@example.com")), ring).Get()
	if err != nil || got != "ya29.token" {
		t.Fatalf("expected token back, got %q (%v)", got, err)
	}

	password := withRing(New(account("password", "alice@example.com")), ring)
	if _, err := password.Get(); !errors.Is(err, ErrSecretNotFound) {
		t.Fatalf("password and token must be stored apart, got %v", err)
	}

	if err := token.Delete(); err != nil {
		t.Fatalf("delete credential: %v", err)
	}
	if _, err := token.Get(); !errors.Is(err, ErrSecretNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := token.Delete(); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestCredentialValidation(t *testing.T) {
	ring := keyring.NewArrayKeyring(nil)

	if err := withRing(New(account("password", "  ")), ring).Set("x"); !errors.Is(err, errMissingUsername) {
		t.Fatalf("expected missing username, got %v", err)
	}
	if err := withRing(New(account("password", "bob")), ring).Set(""); !errors.Is(err, errMissingSecret) {
		t.Fatalf("expected missing secret, got %v", err)
	}
	if key, err := New(account("", "bob")).key(); err != nil || key != "auth:password:bob" {
		t.Fatalf("unexpected default key %q (%v)", key, err)
	}
}

func TestFileBackendRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(keyringPasswordEnv, "unlock")

	cfg := account("password", "carol@example.org")
	cfg.KeyringBackend = "file"
	if err := New(cfg).Set("hunter2"); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := New(cfg).Get()
	if err != nil || got != "hunter2" {
		t.Fatalf("expected secret from file backend, got %q (%v)", got, err)
	}
}

func TestUnknownBackend(t *testing.T) {
	cfg := account("password", "dave")
	cfg.KeyringBackend = "vault"
	if _, err := New(cfg).Get(); !errors.Is(err, errInvalidKeyringBackend) {
		t.Fatalf("expected invalid backend error, got %v", err)
	}
}

func TestBackendTypes(t *testing.T) {
	cases := []struct {
		name, goos, dbus string
		want             []keyring.BackendType
	}{
		{"auto", "darwin", "", nil},
		{"", "linux", "unix:path=/run/user/1000/bus", nil},
		{"auto", "linux", "", []keyring.BackendType{keyring.FileBackend}},
		{"keychain", "darwin", "", []keyring.BackendType{keyring.KeychainBackend}},
		{"secret-service", "linux", "", []keyring.BackendType{keyring.SecretServiceBackend}},
		{"file", "windows", "", []keyring.BackendType{keyring.FileBackend}},
	}
	for _, tc := range cases {
		got, err := backendTypes(tc.name, tc.goos, tc.dbus)
		if err != nil || !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("%s on %s: expected %v, got %v (%v)", tc.name, tc.goos, tc.want, got, err)
		}
	}
}

func TestFilePassword(t *testing.T) {
	pass, err := filePassword("", true, false)("prompt")
	if err != nil || pass != "" {
		t.Fatalf("expected empty passphrase to be accepted, got %q (%v)", pass, err)
	}
	if _, err := filePassword("", false, false)("prompt"); !errors.Is(err, errNoTTY) {
		t.Fatalf("expected no TTY error, got %v", err)
	}
}
