// Package secrets keeps IMAP passwords and OAuth2 access tokens in the OS
// keyring, or in an encrypted file where no keyring service is running.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/99designs/keyring"
	"golang.org/x/term"

	"imapcore/internal/config"
)

const keyringPasswordEnv = config.EnvPrefix + "_KEYRING_PASSWORD" //nolint:gosec // env var name, not a credential

var (
	ErrSecretNotFound        = errors.New("secret not found")
	errMissingUsername       = errors.New("missing username")
	errMissingSecret         = errors.New("missing secret")
	errNoTTY                 = errors.New("no TTY available for keyring file backend password prompt")
	errInvalidKeyringBackend = errors.New("invalid keyring backend")
)

// Store holds the secret of the account named in a config. The password
// and the OAuth2 token of one user live under different keys.
type Store struct {
	backend string
	method  string
	user    string

	open func() (keyring.Keyring, error)
}

// New binds a store to cfg's account and keyring_backend. The backend
// name may come from the config file or IMAPCORE_KEYRING_BACKEND.
func New(cfg config.Config) *Store {
	s := &Store{
		backend: normalize(cfg.KeyringBackend),
		method:  normalize(cfg.Auth.Method),
		user:    normalize(cfg.Auth.Username),
	}
	s.open = s.openKeyring
	return s
}

func (s *Store) Set(secret string) error {
	key, err := s.key()
	if err != nil {
		return err
	}
	if secret == "" {
		return errMissingSecret
	}
	ring, err := s.open()
	if err != nil {
		return err
	}
	item := keyring.Item{Key: key, Data: []byte(secret), Label: config.AppName}
	if err := ring.Set(item); err != nil {
		return fmt.Errorf("store secret for %s: %w", s.user, err)
	}
	return nil
}

// Get returns ErrSecretNotFound when nothing is stored for the account.
func (s *Store) Get() (string, error) {
	key, err := s.key()
	if err != nil {
		return "", err
	}
	ring, err := s.open()
	if err != nil {
		return "", err
	}
	item, err := ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrSecretNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read secret for %s: %w", s.user, err)
	}
	return string(item.Data), nil
}

// Delete is a no-op when nothing is stored.
func (s *Store) Delete() error {
	key, err := s.key()
	if err != nil {
		return err
	}
	ring, err := s.open()
	if err != nil {
		return err
	}
	if err := ring.Remove(key); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("remove secret for %s: %w", s.user, err)
	}
	return nil
}

func (s *Store) key() (string, error) {
	if s.user == "" {
		return "", errMissingUsername
	}
	method := s.method
	if method == "" {
		method = config.AuthPassword
	}
	return "auth:" + method + ":" + s.user, nil
}

func (s *Store) openKeyring() (keyring.Keyring, error) {
	backends, err := backendTypes(s.backend, runtime.GOOS, os.Getenv("DBUS_SESSION_BUS_ADDRESS"))
	if err != nil {
		return nil, err
	}
	dir, err := config.EnsureKeyringDir()
	if err != nil {
		return nil, err
	}

	password, passwordSet := os.LookupEnv(keyringPasswordEnv)
	ring, err := keyring.Open(keyring.Config{
		ServiceName:      config.AppName,
		AllowedBackends:  backends,
		FileDir:          dir,
		FilePasswordFunc: filePassword(password, passwordSet, term.IsTerminal(int(os.Stdin.Fd()))),
	})
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	return ring, nil
}

// backendTypes maps a keyring_backend name to the backends keyring.Open may
// try. Left on auto, a Linux host without a session bus gets the file
// backend, since Secret Service cannot be reached there.
func backendTypes(name, goos, dbusAddr string) ([]keyring.BackendType, error) {
	switch name {
	case "", "auto":
		if goos == "linux" && dbusAddr == "" {
			return []keyring.BackendType{keyring.FileBackend}, nil
		}
		return nil, nil
	case "keychain":
		return []keyring.BackendType{keyring.KeychainBackend}, nil
	case "secret-service":
		return []keyring.BackendType{keyring.SecretServiceBackend}, nil
	case "file":
		return []keyring.BackendType{keyring.FileBackend}, nil
	default:
		return nil, fmt.Errorf("%w: %q (expected auto, keychain, secret-service, or file)", errInvalidKeyringBackend, name)
	}
}

// filePassword unlocks the file backend from the environment, then from a
// terminal prompt. An empty passphrase set in the environment is accepted.
func filePassword(password string, set, tty bool) keyring.PromptFunc {
	switch {
	case set:
		return keyring.FixedStringPrompt(password)
	case tty:
		return keyring.TerminalPrompt
	default:
		return func(string) (string, error) {
			return "", fmt.Errorf("%w; set %s", errNoTTY, keyringPasswordEnv)
		}
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
