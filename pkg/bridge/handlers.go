package bridge

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/urands/bridge/internal/bridgeerr"
	"github.com/urands/bridge/internal/statusfile"
	"github.com/urands/bridge/pkg/peers"
	"github.com/urands/bridge/pkg/protocol"
	"github.com/urands/bridge/pkg/transport"
)

// SendTo implements router.Sender: marshal env and hand it to peerID's
// transport.
func (c *Core) SendTo(peerID string, env *protocol.Envelope) error {
	p, ok := c.registry.Get(peerID)
	if !ok {
		return bridgeerr.New(bridgeerr.Peer, bridgeerr.CodePeerNotFound,
			"peer not connected", bridgeerr.Ctx("peerId", peerID))
	}
	data, err := protocol.Serialize(env)
	if err != nil {
		return bridgeerr.New(bridgeerr.Protocol, bridgeerr.CodeInvalidMessage,
			"failed to encode envelope", bridgeerr.Ctx("error", err.Error()))
	}
	if err := p.Transport.Send(data); err != nil {
		return bridgeerr.New(bridgeerr.Connection, bridgeerr.CodeSendError,
			"failed to send to peer", bridgeerr.Ctx("peerId", peerID), bridgeerr.Ctx("error", err.Error()))
	}
	return nil
}

// attachPeer registers a connected transport as a peer, wires its
// callbacks into the router and correlator, notifies onPeerConnected
// handlers, and rewrites the status sidecar.
func (c *Core) attachPeer(id, name string, tr transport.Transport) *peers.Peer {
	now := time.Now()
	p := &peers.Peer{
		ID:           id,
		Name:         name,
		ConnectedAt:  now,
		LastActivity: now,
		Transport:    tr,
	}
	c.registry.Add(p)

	tr.OnMessage(func(frame []byte) { c.handleFrame(p, frame) })
	tr.OnDisconnect(func(err error) { c.handlePeerDisconnect(id, err) })
	tr.OnError(func(err error) {
		c.logger.Warn("bridge: transport error", zap.String("peer", id), zap.Error(err))
	})
	tr.OnReconnecting(func(attempt, max int) {
		c.logger.Info("bridge: peer reconnecting", zap.String("peer", id),
			zap.Int("attempt", attempt), zap.Int("max", max))
	})

	c.router.FirePeerConnected(id)
	c.writeStatus()
	return p
}

// handleFrame decodes one inbound wire frame. A decode failure is isolated
// to this frame; it does not tear down the connection.
func (c *Core) handleFrame(p *peers.Peer, frame []byte) {
	env, err := protocol.Deserialize(frame)
	if err != nil {
		c.logger.Warn("bridge: dropping undecodable frame", zap.String("peer", p.ID), zap.Error(err))
		return
	}
	c.router.Dispatch(c.backgroundCtx(), p, env)
}

// handlePeerDisconnect runs once per peer departure: it fails every
// pending request that peer owned, removes it from the registry, notifies
// onPeerDisconnected handlers, and rewrites the status sidecar.
func (c *Core) handlePeerDisconnect(id string, cause error) {
	reason := bridgeerr.New(bridgeerr.Peer, bridgeerr.CodePeerDisconnected,
		"peer disconnected", bridgeerr.Ctx("peerId", id))
	c.correlator.FailByPeer(id, reason)
	c.registry.Remove(id)
	c.router.FirePeerDisconnected(id)
	c.writeStatus()

	if cause != nil {
		c.logger.Info("bridge: peer disconnected", zap.String("peer", id), zap.Error(cause))
	} else {
		c.logger.Info("bridge: peer disconnected", zap.String("peer", id))
	}
}

// backgroundCtx is the context Dispatch runs under for inbound messages.
// Handlers that need cancellation tied to the bridge's own lifetime read
// c.runCtx directly; this is a narrow accessor so handleFrame doesn't race
// on c.mu for the common case.
func (c *Core) backgroundCtx() context.Context {
	c.mu.Lock()
	ctx := c.runCtx
	c.mu.Unlock()
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// writeStatus rewrites the status sidecar document from the current peer
// set. A write failure is logged, not propagated: the sidecar is
// best-effort observability, not part of the bridge's correctness surface.
func (c *Core) writeStatus() {
	if c.statusPath == "" {
		return
	}
	var peerStatuses []statusfile.PeerStatus
	for _, p := range c.registry.Iterate() {
		peerStatuses = append(peerStatuses, statusfile.PeerStatus{
			ID:           p.ID,
			Name:         p.Name,
			ConnectedAt:  p.ConnectedAt.UnixMilli(),
			LastActivity: p.LastActivity.UnixMilli(),
		})
	}
	doc := statusfile.Document{
		Port:         c.cfg.Listen.Port,
		InstanceName: c.cfg.InstanceName,
		Mode:         c.cfg.Mode,
		Peers:        peerStatuses,
	}
	if err := statusfile.Write(c.statusPath, doc); err != nil {
		c.logger.Warn("bridge: failed to write status file", zap.Error(err))
	}
}
