package cli

import (
	"errors"

	"imapcore/internal/config"
	"imapcore/internal/secrets"
)

// loadConfig reads the config file and environment, then fills in the
// secret from the keyring unless one was already given.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}

	if cfg.Auth.Secret != "" || cfg.Auth.Username == "" {
		return cfg, nil
	}

	secret, err := secrets.New(cfg).Get()
	if err != nil {
		if errors.Is(err, secrets.ErrSecretNotFound) {
			return cfg, nil
		}
		return cfg, err
	}

	cfg.Auth.Secret = secret
	return cfg, nil
}

func requireSession(cfg config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	return config.ValidateSecret(cfg)
}
