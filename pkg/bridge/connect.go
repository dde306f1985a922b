package bridge

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/urands/bridge/internal/bridgeauth"
	"github.com/urands/bridge/pkg/identity"
	"github.com/urands/bridge/pkg/transport"
)

// startClient dials the configured connect target and attaches the
// resulting transport as a peer once connected.
func (c *Core) startClient(ctx context.Context) error {
	target := c.connectURL()
	header, err := c.buildAuthHeader()
	if err != nil {
		return err
	}
	cfg := transport.Config{
		URL:                  target,
		Header:               header,
		Reconnect:            c.cfg.Connect.Reconnect,
		ReconnectInterval:    time.Duration(c.cfg.Connect.ReconnectIntervalMS) * time.Millisecond,
		MaxReconnectAttempts: c.cfg.Connect.MaxReconnectAttempts,
		SendQueueWarnAt:      transport.DefaultSendQueueWarnAt,
	}

	tr, err := transport.NewWebSocketTransport(cfg)
	if err != nil {
		return err
	}
	if err := tr.Connect(ctx); err != nil {
		return fmt.Errorf("bridge: connect to %s: %w", target, err)
	}

	c.mu.Lock()
	c.clientTransport = tr
	c.mu.Unlock()

	id := uuid.NewString()
	c.attachPeer(id, "", tr)
	return nil
}

// buildAuthHeader builds the Authorization header extractToken (listen.go)
// reads back out of an inbound upgrade request. Mode "signed" mints a fresh
// ed25519-signed bearer token from this instance's identity on every dial;
// anything else sends the static Auth.Token verbatim (a blank token omits
// the header entirely rather than sending "Bearer ").
func (c *Core) buildAuthHeader() (http.Header, error) {
	auth := c.cfg.Connect.Auth
	if auth.Mode == "signed" {
		priv, err := identity.LoadOrGenerate(auth.PrivateKeyB64, auth.PrivateKeyFile, c.logger)
		if err != nil {
			return nil, fmt.Errorf("bridge: load identity for signed auth: %w", err)
		}
		token, err := bridgeauth.MintToken(priv, c.cfg.InstanceName)
		if err != nil {
			return nil, fmt.Errorf("bridge: mint signed auth token: %w", err)
		}
		return authHeader(token), nil
	}
	return authHeader(auth.Token), nil
}

func authHeader(token string) http.Header {
	if token == "" {
		return nil
	}
	h := make(http.Header, 1)
	h.Set("Authorization", "Bearer "+token)
	return h
}

func (c *Core) connectURL() string {
	cc := c.cfg.Connect
	if cc.URL != "" {
		return cc.URL
	}
	scheme := "ws"
	if cc.TLS {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, cc.Host, cc.Port)
}

// ConnectToPeer dials an additional ad hoc peer beyond whatever the static
// configuration established, per spec.md §6's connectToPeer(url).
func (c *Core) ConnectToPeer(ctx context.Context, rawURL string) (string, error) {
	if _, err := url.Parse(rawURL); err != nil {
		return "", fmt.Errorf("bridge: invalid peer url %q: %w", rawURL, err)
	}
	header, err := c.buildAuthHeader()
	if err != nil {
		return "", err
	}
	tr, err := transport.NewWebSocketTransport(transport.Config{
		URL:             rawURL,
		Header:          header,
		SendQueueWarnAt: transport.DefaultSendQueueWarnAt,
	})
	if err != nil {
		return "", err
	}
	if err := tr.Connect(ctx); err != nil {
		return "", fmt.Errorf("bridge: connect to %s: %w", rawURL, err)
	}
	id := uuid.NewString()
	c.attachPeer(id, "", tr)
	return id, nil
}

// DisconnectFromPeer closes one peer's connection and removes it from the
// registry. A second call for the same id fails with PeerNotFound.
func (c *Core) DisconnectFromPeer(peerID string) error {
	p, ok := c.registry.Get(peerID)
	if !ok {
		return peerNotFoundErr(peerID)
	}
	_ = p.Transport.Disconnect("Disconnect requested")
	c.handlePeerDisconnect(peerID, nil)
	return nil
}
