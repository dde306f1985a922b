package bridge

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/urands/bridge/internal/bridgeauth"
	"github.com/urands/bridge/pkg/transport"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// startListener opens the host-role server: it binds the configured
// listen host:port, authenticates every inbound upgrade through c.authenticator,
// and adapts each accepted connection into a peer via transport.FromConn.
func (c *Core) startListener() error {
	addr := fmt.Sprintf("%s:%d", c.cfg.Listen.Host, c.cfg.Listen.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bridge: listen %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", c.handleUpgrade)
	srv := &http.Server{Handler: mux}

	c.mu.Lock()
	c.listener = ln
	c.httpServer = srv
	c.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			c.logger.Error("bridge: listener stopped unexpectedly", zap.Error(err))
		}
	}()

	c.logger.Info("bridge: listening", zap.String("addr", addr))
	return nil
}

func (c *Core) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	attempt := bridgeauth.ConnectionAttempt{
		RemoteAddr: r.RemoteAddr,
		Token:      extractToken(r),
	}
	decision := c.authenticator.Authenticate(attempt)
	if !decision.Accept {
		c.logger.Warn("bridge: rejecting connection", zap.String("remote", r.RemoteAddr), zap.String("reason", decision.Reason))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, decision.Reason, http.StatusUnauthorized)
			return
		}
		closeWithAuthFailure(conn, decision.Reason)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.Warn("bridge: upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	cfg := transport.Config{SendQueueWarnAt: transport.DefaultSendQueueWarnAt}
	tr := transport.FromConn(conn, cfg)

	id := uuid.NewString()
	c.attachPeer(id, "", tr)
}

func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// closeWithAuthFailure sends close code 4001 with reason, per spec.md §6's
// wire-level rejection contract, then closes the connection.
func closeWithAuthFailure(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(4001, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = conn.Close()
}
