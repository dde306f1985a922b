package transport

import (
	"context"
	"net/http"
	"time"
)

// State is the lifecycle of a Transport connection.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Config carries the dial parameters and reconnect/heartbeat policy for a
// Transport. Zero-value fields are replaced with defaults by the concrete
// implementations' constructors.
type Config struct {
	URL string

	// Header is sent with the initial WebSocket upgrade request (and every
	// reconnect dial), carrying whatever credential the configured
	// Authenticator expects — e.g. an Authorization: Bearer token.
	Header http.Header

	Reconnect             bool
	ReconnectInterval      time.Duration
	MaxReconnectAttempts   int

	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration

	// SendQueueWarnAt is the depth at which a transport should log a
	// backpressure warning via its OnError callback. 0 selects
	// DefaultSendQueueWarnAt.
	SendQueueWarnAt int
}

const (
	DefaultReconnectInterval    = time.Second
	DefaultMaxReconnectAttempts = 10
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultHeartbeatTimeout     = 10 * time.Second
	DefaultSendQueueWarnAt      = 10000
)

func (c Config) withDefaults() Config {
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = DefaultReconnectInterval
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if c.SendQueueWarnAt <= 0 {
		c.SendQueueWarnAt = DefaultSendQueueWarnAt
	}
	return c
}

// Transport is the peer-facing connection abstraction BridgeCore and Router
// depend on. One Transport instance owns one peer connection; fan-out across
// peers lives above this package, in PeerRegistry.
//
// Implementations must be safe for concurrent Send calls from multiple
// goroutines; callbacks registered via OnMessage/OnDisconnect/OnError/
// OnReconnecting run on an internal goroutine and must not block for long.
type Transport interface {
	// Connect establishes the connection. If it fails on the first attempt,
	// it returns an error directly rather than entering Reconnecting state.
	Connect(ctx context.Context) error

	// Disconnect closes the connection and discards any queued backlog.
	// No further reconnect attempts are made after Disconnect. reason is
	// carried in the close frame where the underlying protocol supports
	// one (e.g. the WebSocket close reason); implementations that can't
	// convey it ignore it.
	Disconnect(reason string) error

	// Send enqueues a frame for delivery. It returns an error only for
	// conditions the caller can act on synchronously (e.g. already
	// disconnected with reconnect disabled); queued sends that later fail
	// surface through OnError.
	Send(frame []byte) error

	State() State

	OnMessage(func(frame []byte))
	OnDisconnect(func(err error))
	OnError(func(err error))
	OnReconnecting(func(attempt, maxAttempts int))
}
