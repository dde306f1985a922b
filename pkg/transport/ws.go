package transport

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/urands/bridge/internal/bridgeerr"
)

// WebSocketTransport is the production Transport: one WebSocket connection
// per peer, JSON text frames, ping/pong heartbeat, and reconnect-with-queue.
type WebSocketTransport struct {
	base

	dialer *websocket.Dialer

	connMu sync.Mutex
	conn   *websocket.Conn

	// writeMu serializes flushQueue: the connection allows only one
	// concurrent data writer, and holding it across drain keeps frames in
	// FIFO order when several goroutines Send at once.
	writeMu sync.Mutex

	attempt int
}

// NewWebSocketTransport builds a client-side transport that dials cfg.URL.
// cfg.URL must be a ws:// or wss:// URL.
func NewWebSocketTransport(cfg Config) (*WebSocketTransport, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("transport: invalid url %q: %w", cfg.URL, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("transport: unsupported scheme %q (want ws or wss)", u.Scheme)
	}
	return &WebSocketTransport{
		base:   newBase(cfg),
		dialer: websocket.DefaultDialer,
	}, nil
}

// FromConn adapts an already-accepted server-side *websocket.Conn (from an
// http.Handler upgrade) into a WebSocketTransport, skipping the dial step.
func FromConn(conn *websocket.Conn, cfg Config) *WebSocketTransport {
	t := &WebSocketTransport{base: newBase(cfg)}
	t.conn = conn
	t.setState(Connected)

	runCtx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	go t.readLoop(runCtx)
	go t.heartbeatLoop(runCtx)
	return t
}

func (t *WebSocketTransport) Connect(ctx context.Context) error {
	if t.State() == Connected {
		return nil
	}
	t.setState(Connecting)

	runCtx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	conn, _, err := t.dialer.DialContext(ctx, t.cfg.URL, t.cfg.Header)
	if err != nil {
		t.setState(Disconnected)
		cancel()
		return fmt.Errorf("transport: dial %s: %w", t.cfg.URL, err)
	}

	t.connMu.Lock()
	t.conn = conn
	t.connMu.Unlock()
	t.attempt = 0
	t.setState(Connected)

	go t.readLoop(runCtx)
	go t.heartbeatLoop(runCtx)
	t.flushQueue()
	return nil
}

func (t *WebSocketTransport) Disconnect(reason string) error {
	t.mu.Lock()
	if t.cancel != nil {
		t.cancel()
	}
	t.mu.Unlock()
	t.drain()
	t.setState(Disconnected)

	t.connMu.Lock()
	defer t.connMu.Unlock()
	if t.conn == nil {
		return nil
	}
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason), time.Now().Add(time.Second))
	err := t.conn.Close()
	t.conn = nil
	return err
}

func (t *WebSocketTransport) Send(frame []byte) error {
	if t.State() == Disconnected && !t.cfg.Reconnect {
		return fmt.Errorf("transport: not connected")
	}
	t.enqueue(frame)
	if t.State() == Connected {
		t.flushQueue()
	}
	return nil
}

func (t *WebSocketTransport) flushQueue() {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	frames := t.drain()
	for i, f := range frames {
		t.connMu.Lock()
		conn := t.conn
		t.connMu.Unlock()
		if conn == nil {
			t.requeueFront(frames[i:])
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, f); err != nil {
			t.requeueFront(frames[i:])
			t.emitError(fmt.Errorf("transport: send: %w", err))
			return
		}
	}
}

func (t *WebSocketTransport) readLoop(ctx context.Context) {
	for {
		t.connMu.Lock()
		conn := t.conn
		t.connMu.Unlock()
		if conn == nil {
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			t.handleDisconnect(err)
			return
		}
		t.emitMessage(data)
	}
}

func (t *WebSocketTransport) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.HeartbeatInterval)
	defer ticker.Stop()

	t.connMu.Lock()
	if t.conn != nil {
		t.conn.SetPongHandler(func(string) error {
			return t.conn.SetReadDeadline(time.Now().Add(t.cfg.HeartbeatInterval + t.cfg.HeartbeatTimeout))
		})
	}
	t.connMu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.connMu.Lock()
			conn := t.conn
			t.connMu.Unlock()
			if conn == nil {
				return
			}
			deadline := time.Now().Add(t.cfg.HeartbeatTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				t.handleDisconnect(fmt.Errorf("transport: heartbeat: %w", err))
				return
			}
		}
	}
}

func (t *WebSocketTransport) handleDisconnect(err error) {
	t.connMu.Lock()
	if t.conn != nil {
		_ = t.conn.Close()
		t.conn = nil
	}
	t.connMu.Unlock()

	if !t.cfg.Reconnect {
		t.setState(Disconnected)
		t.emitDisconnect(err)
		return
	}
	t.setState(Reconnecting)
	go t.reconnectLoop(err)
}

func (t *WebSocketTransport) reconnectLoop(cause error) {
	for t.attempt < t.cfg.MaxReconnectAttempts {
		t.attempt++
		t.emitReconnecting(t.attempt, t.cfg.MaxReconnectAttempts)
		time.Sleep(t.cfg.ReconnectInterval)

		ctx, cancel := context.WithTimeout(context.Background(), t.cfg.ReconnectInterval*5)
		conn, _, err := t.dialer.DialContext(ctx, t.cfg.URL, t.cfg.Header)
		cancel()
		if err != nil {
			continue
		}

		runCtx, runCancel := context.WithCancel(context.Background())
		t.mu.Lock()
		t.cancel = runCancel
		t.mu.Unlock()

		t.connMu.Lock()
		t.conn = conn
		t.connMu.Unlock()
		t.attempt = 0
		t.setState(Connected)

		go t.readLoop(runCtx)
		go t.heartbeatLoop(runCtx)
		t.flushQueue()
		return
	}
	t.setState(Disconnected)
	t.emitError(bridgeerr.New(bridgeerr.Connection, bridgeerr.CodeMaxReconnectsExhausted,
		fmt.Sprintf("exhausted %d reconnect attempts", t.cfg.MaxReconnectAttempts),
		bridgeerr.Ctx("cause", causeMessage(cause))))
}

func causeMessage(cause error) string {
	if cause == nil {
		return ""
	}
	return cause.Error()
}
