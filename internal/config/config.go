package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	SecurityTLS      = "tls"
	SecurityStartTLS = "starttls"
	SecurityNone     = "none"

	AuthPassword = "password"
	AuthOAuth2   = "oauth2"
)

type Config struct {
	IMAP           IMAPConfig     `mapstructure:"imap" yaml:"imap"`
	Auth           AuthConfig     `mapstructure:"auth" yaml:"auth"`
	Defaults       DefaultsConfig `mapstructure:"defaults" yaml:"defaults"`
	Log            LogConfig      `mapstructure:"log" yaml:"log"`
	KeyringBackend string         `mapstructure:"keyring_backend" yaml:"keyring_backend,omitempty"`
}

type IMAPConfig struct {
	Host               string `mapstructure:"host" yaml:"host"`
	Port               int    `mapstructure:"port" yaml:"port"`
	Security           string `mapstructure:"security" yaml:"security"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`
}

type AuthConfig struct {
	Method   string `mapstructure:"method" yaml:"method"`
	Username string `mapstructure:"username" yaml:"username"`
	// Secret is the password or OAuth2 access token. Normally it lives in
	// the keyring and is only filled in at runtime.
	Secret string `mapstructure:"secret" yaml:"secret,omitempty"`
}

type DefaultsConfig struct {
	Mailbox       string `mapstructure:"mailbox" yaml:"mailbox"`
	DraftsMailbox string `mapstructure:"drafts_mailbox" yaml:"drafts_mailbox"`
	SentMailbox   string `mapstructure:"sent_mailbox" yaml:"sent_mailbox"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

func DefaultConfig() Config {
	return Config{
		IMAP: IMAPConfig{
			Port:     993,
			Security: SecurityTLS,
		},
		Auth: AuthConfig{
			Method: AuthPassword,
		},
		Defaults: DefaultsConfig{
			Mailbox:       "INBOX",
			DraftsMailbox: "Drafts",
			SentMailbox:   "Sent",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func ConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func Load() (Config, error) {
	cfg := DefaultConfig()

	path, err := ConfigPath()
	if err != nil {
		return cfg, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}

	cfg.IMAP.Security = NormalizeSecurity(cfg.IMAP.Security)
	cfg.Auth.Method = strings.ToLower(strings.TrimSpace(cfg.Auth.Method))
	return cfg, nil
}

func Save(cfg Config) (string, error) {
	path, err := ConfigPath()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}

	return path, nil
}

func Redact(cfg Config) Config {
	masked := cfg
	if masked.Auth.Secret != "" {
		masked.Auth.Secret = "****"
	}
	return masked
}

// NormalizeSecurity lowercases a security mode and maps the "ssl" alias to
// "tls". Unknown values pass through for the connection layer to reject.
func NormalizeSecurity(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "ssl" {
		return SecurityTLS
	}
	return s
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("imap.host", cfg.IMAP.Host)
	v.SetDefault("imap.port", cfg.IMAP.Port)
	v.SetDefault("imap.security", cfg.IMAP.Security)
	v.SetDefault("imap.insecure_skip_verify", cfg.IMAP.InsecureSkipVerify)

	v.SetDefault("auth.method", cfg.Auth.Method)
	v.SetDefault("auth.username", cfg.Auth.Username)
	v.SetDefault("auth.secret", cfg.Auth.Secret)

	v.SetDefault("defaults.mailbox", cfg.Defaults.Mailbox)
	v.SetDefault("defaults.drafts_mailbox", cfg.Defaults.DraftsMailbox)
	v.SetDefault("defaults.sent_mailbox", cfg.Defaults.SentMailbox)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("keyring_backend", cfg.KeyringBackend)
}

// Validate checks what is needed to open a session. The secret is checked
// separately once the keyring has been consulted.
func Validate(cfg Config) error {
	if cfg.IMAP.Host == "" {
		return fmt.Errorf("imap.host is required")
	}
	if cfg.IMAP.Port <= 0 || cfg.IMAP.Port > 65535 {
		return fmt.Errorf("imap.port %d is out of range", cfg.IMAP.Port)
	}
	switch cfg.IMAP.Security {
	case SecurityTLS, SecurityStartTLS, SecurityNone:
	default:
		return fmt.Errorf("imap.security %q is invalid (expected tls, starttls, or none)", cfg.IMAP.Security)
	}
	if cfg.Auth.Username == "" {
		return fmt.Errorf("auth.username is required")
	}
	return nil
}

func ValidateSecret(cfg Config) error {
	if cfg.Auth.Secret == "" {
		if cfg.Auth.Method == AuthOAuth2 {
			return fmt.Errorf("no OAuth2 access token for %s (run `imapcore auth login --oauth2`)", cfg.Auth.Username)
		}
		return fmt.Errorf("no password for %s (run `imapcore auth login`)", cfg.Auth.Username)
	}
	return nil
}
