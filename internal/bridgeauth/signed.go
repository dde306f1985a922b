package bridgeauth

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"time"
)

// SignedTokenAuthenticator accepts a connection whose bearer token is a
// MintToken-produced signature from one of a configured set of trusted
// public keys, still within maxAge. It is the multi-party alternative to
// CIDRTokenAuthenticator's single shared secret: each peer mints its own
// token with its own identity, and the host only needs the public half.
type SignedTokenAuthenticator struct {
	trusted []ed25519.PublicKey
	maxAge  time.Duration
}

// NewSignedTokenAuthenticator decodes each base64url-encoded public key
// once at construction time.
func NewSignedTokenAuthenticator(trustedPublicKeysB64 []string, maxAge time.Duration) (*SignedTokenAuthenticator, error) {
	a := &SignedTokenAuthenticator{maxAge: maxAge}
	for _, s := range trustedPublicKeysB64 {
		if s == "" {
			continue
		}
		b, err := base64.RawURLEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("bridgeauth: invalid trusted public key %q: %w", s, err)
		}
		if len(b) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("bridgeauth: trusted public key %q has wrong length", s)
		}
		a.trusted = append(a.trusted, ed25519.PublicKey(b))
	}
	return a, nil
}

func (a *SignedTokenAuthenticator) Authenticate(attempt ConnectionAttempt) Decision {
	if attempt.Token == "" {
		return Decision{Accept: false, Reason: "missing token"}
	}
	for _, pub := range a.trusted {
		instance, err := VerifyToken(pub, attempt.Token, a.maxAge)
		if err == nil {
			host, _, _ := splitHostPort(attempt.RemoteAddr)
			return Decision{Accept: true, Method: "signed:" + instance, ClientIP: host}
		}
	}
	return Decision{Accept: false, Reason: "no trusted key verified this token"}
}
