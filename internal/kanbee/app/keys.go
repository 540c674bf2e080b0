package app

import (
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/kanbee/pkg/cryptox"
	"github.com/aussiebroadwan/kanbee/pkg/jwtx"
)

// InitAuthKeys builds the access token KeyManager.
//
// Storage modes:
//   - no AUTH_SIGNING_KEY_FILE: a key is generated in memory. Access tokens
//     die with the process; refresh sessions live in the store and survive.
//   - AUTH_SIGNING_KEY_FILE set: the Ed25519 PEM at that path is loaded, or
//     generated and written there on first start.
func InitAuthKeys(cfg Config, logger *slog.Logger) (*jwtx.KeyManager, error) {
	if cfg.SigningKeyFile == "" {
		km, err := jwtx.NewEphemeralKeyManager(cfg.Issuer)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ephemeral key manager: %w", err)
		}
		logger.Warn("using an ephemeral signing key; access tokens will not survive a restart",
			"issuer", cfg.Issuer,
		)
		return km, nil
	}

	pemKey, created, err := cryptox.LoadOrCreateEd25519Key(cfg.SigningKeyFile)
	if err != nil {
		return nil, err
	}
	km, err := jwtx.NewKeyManager(pemKey, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize key manager: %w", err)
	}

	logger.Info("signing key loaded",
		"path", cfg.SigningKeyFile,
		"created", created,
		"issuer", cfg.Issuer,
	)
	return km, nil
}

// LoadPepper returns the password pepper, creating the file on first start.
func LoadPepper(cfg Config) (string, error) {
	pepper, err := cryptox.LoadOrCreatePepper(cfg.PepperFile)
	if err != nil {
		return "", fmt.Errorf("failed to load pepper: %w", err)
	}
	return pepper, nil
}
