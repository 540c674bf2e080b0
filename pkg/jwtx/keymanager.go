package jwtx

import (
	"fmt"

	"github.com/aussiebroadwan/kanbee/pkg/cryptox"
)

// KeyManager wires one signing key to the KeySet and Verifier derived from it.
type KeyManager struct {
	Signer   Signer
	Verifier Verifier
	KeySet   *KeySet
}

// NewKeyManager builds a KeyManager around a PKCS8 Ed25519 PEM key. The kid
// is the key's thumbprint.
func NewKeyManager(pemKey []byte, issuer string) (*KeyManager, error) {
	if issuer == "" {
		return nil, fmt.Errorf("jwtx: issuer is required")
	}

	signer, err := NewSignerEdDSA("", pemKey)
	if err != nil {
		return nil, err
	}
	if err := signer.Validate(); err != nil {
		return nil, err
	}

	keys := NewKeySet()
	if err := keys.AddSigner(signer); err != nil {
		return nil, fmt.Errorf("jwtx: register signer: %w", err)
	}

	return &KeyManager{
		Signer:   signer,
		Verifier: NewVerifier(keys, issuer),
		KeySet:   keys,
	}, nil
}

// NewEphemeralKeyManager generates a throwaway key. Every restart invalidates
// outstanding access tokens; refresh sessions are unaffected.
func NewEphemeralKeyManager(issuer string) (*KeyManager, error) {
	pemKey, err := cryptox.GenerateEd25519Key()
	if err != nil {
		return nil, err
	}
	return NewKeyManager(pemKey, issuer)
}

// IsReady reports whether tokens can be signed and verified.
func (km *KeyManager) IsReady() bool {
	return km != nil && km.Signer != nil && km.KeySet.IsReady()
}
