// Package bridgeauth holds the bridge's concrete Authenticator
// implementations: CIDRTokenAuthenticator (shared token plus optional CIDR
// allowlist) and SignedTokenAuthenticator (ed25519-signed bearer tokens).
// spec.md §4.3 treats authentication as an opaque
// pluggable hook (authenticate(connectionAttempt) -> accept | reject); the
// core never depends on this package directly. It exists so
// cmd/bridge-node has a usable default instead of requiring every caller
// to bring their own.
package bridgeauth

import (
	"crypto/subtle"
	"net/netip"
	"strings"
)

// ConnectionAttempt describes one inbound accept, before it enters the
// CONNECTED state.
type ConnectionAttempt struct {
	RemoteAddr string
	Token      string
}

// Decision is the opaque accept/reject result spec.md §4.3 describes.
type Decision struct {
	Accept   bool
	Method   string
	ClientIP string
	Reason   string
}

// Authenticator is the pluggable contract BridgeCore's host path consumes.
type Authenticator interface {
	Authenticate(attempt ConnectionAttempt) Decision
}

// CIDRTokenAuthenticator accepts a connection when its bearer token
// matches exactly and, if an allowlist is configured, its remote address
// falls within one of the allowed CIDR blocks.
//
// The timing-safe comparison of the credential is left to the
// implementation rather than specified by spec.md (see its Open
// Questions); this implementation uses subtle.ConstantTimeCompare after a
// length check, which still leaks length via early return — documented
// rather than fixed, consistent with the spec explicitly leaving mitigation
// of side channels to the authenticator implementation.
type CIDRTokenAuthenticator struct {
	Token        string
	AllowedCIDRs []netip.Prefix
}

// NewCIDRTokenAuthenticator parses the configured CIDR strings once at
// construction time, so a malformed entry fails fast instead of silently
// admitting every address at runtime.
func NewCIDRTokenAuthenticator(token string, cidrs []string) (*CIDRTokenAuthenticator, error) {
	a := &CIDRTokenAuthenticator{Token: token}
	for _, c := range cidrs {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		p, err := netip.ParsePrefix(c)
		if err != nil {
			return nil, err
		}
		a.AllowedCIDRs = append(a.AllowedCIDRs, p)
	}
	return a, nil
}

func (a *CIDRTokenAuthenticator) Authenticate(attempt ConnectionAttempt) Decision {
	if a.Token != "" && !constantTimeEqual(attempt.Token, a.Token) {
		return Decision{Accept: false, Reason: "invalid token"}
	}

	if len(a.AllowedCIDRs) > 0 {
		host, _, err := splitHostPort(attempt.RemoteAddr)
		if err != nil {
			return Decision{Accept: false, Reason: "unparseable remote address"}
		}
		addr, err := netip.ParseAddr(host)
		if err != nil {
			return Decision{Accept: false, Reason: "unparseable remote address"}
		}
		allowed := false
		for _, p := range a.AllowedCIDRs {
			if p.Contains(addr) {
				allowed = true
				break
			}
		}
		if !allowed {
			return Decision{Accept: false, Reason: "remote address not in allowed_cidrs"}
		}
		return Decision{Accept: true, Method: "token+cidr", ClientIP: host}
	}

	return Decision{Accept: true, Method: "token"}
}

func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func splitHostPort(addr string) (string, string, error) {
	if i := strings.LastIndex(addr, ":"); i >= 0 && !strings.Contains(addr[i+1:], ":") {
		return addr[:i], addr[i+1:], nil
	}
	return addr, "", nil
}
