// Package identity loads or generates the ed25519 keypair a bridge
// instance uses to mint and verify bearer tokens for internal/bridgeauth.
// Adapted from ttmesh/pkg/identity's LoadOrGenEd25519, trimmed of its
// config.IdentityConfig and transport.PeerID dependencies (both belonged
// to the teacher's multi-hop mesh identity scheme) down to a plain
// keypair loader.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
)

// LoadOrGenerate returns the private key found at privateKeyB64 or
// privateKeyFile, or generates a fresh one if neither is set.
func LoadOrGenerate(privateKeyB64, privateKeyFile string, logger *zap.Logger) (ed25519.PrivateKey, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if s := strings.TrimSpace(privateKeyB64); s != "" {
		b, err := base64.RawURLEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("identity: decode private key: %w", err)
		}
		return ed25519.PrivateKey(b), nil
	}

	if s := strings.TrimSpace(privateKeyFile); s != "" {
		b, err := os.ReadFile(s)
		if err != nil {
			return nil, fmt.Errorf("identity: read private key file: %w", err)
		}
		txt := strings.TrimSpace(string(b))
		if db, err := base64.RawURLEncoding.DecodeString(txt); err == nil {
			return ed25519.PrivateKey(db), nil
		}
		return ed25519.PrivateKey(b), nil
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generate key: %w", err)
	}
	logger.Info("identity: generated new ed25519 identity (persist this to reuse across restarts)",
		zap.String("public_key_b64", base64.RawURLEncoding.EncodeToString(priv.Public().(ed25519.PublicKey))))
	return priv, nil
}
