package bridge

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/urands/bridge/internal/bridgeerr"
	"github.com/urands/bridge/pkg/correlator"
	"github.com/urands/bridge/pkg/peers"
	"github.com/urands/bridge/pkg/protocol"
	"github.com/urands/bridge/pkg/protocol/codec"
	"github.com/urands/bridge/pkg/router"
)

// PeerInfo is the read-only view of a connected peer spec.md §6's
// getPeers() returns.
type PeerInfo struct {
	ID           string
	Name         string
	ConnectedAt  time.Time
	LastActivity time.Time
}

// GetPeers returns a snapshot of every connected peer, in connection order.
func (c *Core) GetPeers() []PeerInfo {
	connected := c.registry.Iterate()
	out := make([]PeerInfo, 0, len(connected))
	for _, p := range connected {
		out = append(out, PeerInfo{ID: p.ID, Name: p.Name, ConnectedAt: p.ConnectedAt, LastActivity: p.LastActivity})
	}
	return out
}

// GetPeerCount returns the number of connected peers.
func (c *Core) GetPeerCount() int { return c.registry.Count() }

// SendToPeer delivers a fire-and-forget notification envelope to one peer.
func (c *Core) SendToPeer(peerID string, env *protocol.Envelope) error {
	return c.SendTo(peerID, env)
}

// Broadcast delivers env to every connected peer, isolating per-peer send
// failures rather than aborting the fan-out.
func (c *Core) Broadcast(env *protocol.Envelope) error {
	var firstErr error
	for _, p := range c.registry.Iterate() {
		if err := c.SendTo(p.ID, env); err != nil {
			c.logger.Warn("bridge: broadcast to peer failed", zap.String("peer", p.ID), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// DelegateTask sends task to peerID (or the first connected peer when
// peerID is empty) and blocks until its result arrives, the task's own
// timeout elapses, or the peer disconnects.
func (c *Core) DelegateTask(ctx context.Context, task *protocol.TaskRequest, peerID string) (*protocol.TaskResult, error) {
	if err := c.checkShuttingDown(); err != nil {
		return nil, err
	}
	if task.Data != nil {
		if _, err := codec.ToStruct(task.Data); err != nil {
			return nil, bridgeerr.New(bridgeerr.Configuration, bridgeerr.CodeInvalidConfiguration,
				"task.data is not JSON-struct representable", bridgeerr.Ctx("cause", err.Error()))
		}
	}
	target, err := c.resolvePeer(peerID)
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(task.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = time.Duration(c.cfg.TaskTimeoutMS) * time.Millisecond
	}
	deadline := time.Now().Add(timeout)

	ch, err := c.correlator.Register(correlator.KindTask, task.ID, target.ID, deadline)
	if err != nil {
		return nil, err
	}

	env := protocol.NewEnvelope(protocol.MsgTaskDelegate, c.cfg.InstanceName)
	env.Task = task
	if err := c.SendTo(target.ID, &env); err != nil {
		c.correlator.Complete(correlator.KindTask, task.ID, correlator.Outcome{Err: err})
		return nil, err
	}

	select {
	case outcome := <-ch:
		if outcome.Err != nil {
			return nil, outcome.Err
		}
		result, _ := outcome.Value.(*protocol.TaskResult)
		return result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RequestContext sends a context query to peerID (or the first connected
// peer) and blocks for its ranked file chunks.
func (c *Core) RequestContext(ctx context.Context, query, peerID string, timeout time.Duration) ([]protocol.FileChunk, error) {
	if err := c.checkShuttingDown(); err != nil {
		return nil, err
	}
	target, err := c.resolvePeer(peerID)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	deadline := time.Now().Add(timeout)

	env := protocol.NewEnvelope(protocol.MsgRequest, c.cfg.InstanceName)
	env.Context = &protocol.Context{Summary: query}

	ch, err := c.correlator.Register(correlator.KindContext, env.ID, target.ID, deadline)
	if err != nil {
		return nil, err
	}

	if err := c.SendTo(target.ID, &env); err != nil {
		c.correlator.Complete(correlator.KindContext, env.ID, correlator.Outcome{Err: err})
		return nil, err
	}

	select {
	case outcome := <-ch:
		if outcome.Err != nil {
			return nil, outcome.Err
		}
		chunks, _ := outcome.Value.([]protocol.FileChunk)
		return chunks, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SyncContext unicasts ctx to peerID when set, or broadcasts it to every
// connected peer. A nil ctx broadcasts the engine's current tree.
func (c *Core) SyncContext(ctxMsg *protocol.Context, peerID string) error {
	if ctxMsg == nil {
		tree, err := c.engine.Tree()
		if err != nil {
			return err
		}
		ctxMsg = &protocol.Context{Tree: tree}
	}
	env := protocol.NewEnvelope(protocol.MsgContextSync, c.cfg.InstanceName)
	env.Context = ctxMsg

	if peerID != "" {
		return c.SendTo(peerID, &env)
	}
	return c.Broadcast(&env)
}

// StartAutoSync starts the periodic context broadcast. provider overrides
// the engine-derived default when non-nil.
func (c *Core) StartAutoSync(provider func(ctx context.Context) (*protocol.Context, error)) {
	if provider == nil {
		provider = c.syncProvider
	}
	c.mu.Lock()
	runCtx := c.runCtx
	c.mu.Unlock()
	if runCtx == nil {
		runCtx = context.Background()
	}
	c.autoSync.Start(runCtx, provider, c.syncBroadcaster)
}

// StopAutoSync stops the periodic context broadcast. Idempotent.
func (c *Core) StopAutoSync() { c.autoSync.Stop() }

// OnPeerConnected registers a handler invoked on every peer connect.
func (c *Core) OnPeerConnected(h func(peerID string)) { c.router.OnPeerConnected(router.PeerHandler(h)) }

// OnPeerDisconnected registers a handler invoked on every peer disconnect.
func (c *Core) OnPeerDisconnected(h func(peerID string)) {
	c.router.OnPeerDisconnected(router.PeerHandler(h))
}

// OnMessage registers a handler invoked for every inbound message not
// otherwise dispatched.
func (c *Core) OnMessage(h func(env *protocol.Envelope, peerID string)) {
	c.router.OnMessage(router.MessageHandler(h))
}

// OnTaskReceived sets the single local handler for inbound task_delegate
// messages. A nil handler restores forward-to-other-peer behavior.
func (c *Core) OnTaskReceived(h func(ctx context.Context, task *protocol.TaskRequest) (*protocol.TaskResult, error)) {
	c.router.SetTaskHandler(router.TaskHandler(h))
}

// OnContextReceived registers a handler invoked for every inbound
// context_sync message.
func (c *Core) OnContextReceived(h func(ctx *protocol.Context, peerID string)) {
	c.router.OnContextReceived(router.ContextReceivedHandler(h))
}

// OnContextRequested sets the single local handler for inbound context
// queries. A nil handler restores forward-to-other-peer behavior.
func (c *Core) OnContextRequested(h func(ctx context.Context, query string) ([]protocol.FileChunk, error)) {
	c.router.SetContextHandler(router.ContextHandler(h))
}

func (c *Core) resolvePeer(peerID string) (*peers.Peer, error) {
	if peerID != "" {
		p, ok := c.registry.Get(peerID)
		if !ok {
			return nil, peerNotFoundErr(peerID)
		}
		return p, nil
	}
	p, ok := c.registry.First()
	if !ok {
		return nil, bridgeerr.New(bridgeerr.Peer, bridgeerr.CodeNoPeersConnected, "no peers connected")
	}
	return p, nil
}

func peerNotFoundErr(peerID string) error {
	return bridgeerr.New(bridgeerr.Peer, bridgeerr.CodePeerNotFound, "peer not found", bridgeerr.Ctx("peerId", peerID))
}

// checkShuttingDown rejects new request-shaped calls once Stop has begun,
// so a caller racing a shutdown gets BridgeShuttingDown instead of a
// PeerNotFound error once the registry is cleared out from under it.
func (c *Core) checkShuttingDown() error {
	c.mu.Lock()
	down := c.shuttingDown
	c.mu.Unlock()
	if down {
		return bridgeerr.New(bridgeerr.Lifecycle, bridgeerr.CodeBridgeShuttingDown, "Bridge is shutting down")
	}
	return nil
}
