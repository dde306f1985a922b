package bridge

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/urands/bridge/internal/bridgeerr"
	"github.com/urands/bridge/internal/contextwatch"
	"github.com/urands/bridge/internal/statusfile"
	"github.com/urands/bridge/pkg/protocol"
)

// Start validates the configuration for the bridge's mode, then opens a
// listener (host/peer), dials a client connection (client/peer), or both
// (peer with both configured). Any partial success is rolled back before
// returning an error, per spec.md §4.6.
func (c *Core) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return bridgeerr.New(bridgeerr.Lifecycle, bridgeerr.CodeAlreadyStarted, "bridge already started")
	}
	c.mu.Unlock()

	wantListen, wantConnect, err := c.modeRequirements()
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.runCtx = runCtx
	c.cancelRun = cancel
	c.mu.Unlock()

	if wantListen {
		if err := c.startListener(); err != nil {
			cancel()
			return err
		}
	}

	if wantConnect {
		if err := c.startClient(ctx); err != nil {
			c.cleanup()
			return err
		}
	}

	c.mu.Lock()
	c.started = true
	c.shuttingDown = false
	c.mu.Unlock()

	if c.cfg.ContextSharing.AutoSync {
		c.autoSync.Start(runCtx, c.syncProvider, c.syncBroadcaster)
		c.startWatcher(runCtx)
	}
	c.correlator.Reset()
	c.writeStatus()
	return nil
}

// modeRequirements translates Mode into which of listen/connect Start
// should attempt, mirroring config.Config.validate()'s per-mode rule.
func (c *Core) modeRequirements() (wantListen, wantConnect bool, err error) {
	switch c.cfg.Mode {
	case "host":
		if c.cfg.Listen.Port == 0 {
			return false, false, bridgeerr.New(bridgeerr.Configuration, bridgeerr.CodeInvalidConfiguration, "mode host requires listen.port")
		}
		return true, false, nil
	case "client":
		if c.cfg.Connect.URL == "" && (c.cfg.Connect.Host == "" || c.cfg.Connect.Port == 0) {
			return false, false, bridgeerr.New(bridgeerr.Configuration, bridgeerr.CodeInvalidConfiguration, "mode client requires connect.url or connect.host+port")
		}
		return false, true, nil
	case "peer":
		hasListen := c.cfg.Listen.Port != 0
		hasConnect := c.cfg.Connect.URL != "" || (c.cfg.Connect.Host != "" && c.cfg.Connect.Port != 0)
		if !hasListen && !hasConnect {
			return false, false, bridgeerr.New(bridgeerr.Configuration, bridgeerr.CodeInvalidConfiguration, "mode peer requires listen or connect")
		}
		return hasListen, hasConnect, nil
	default:
		return false, false, bridgeerr.New(bridgeerr.Configuration, bridgeerr.CodeInvalidConfiguration, "unknown mode", bridgeerr.Ctx("mode", c.cfg.Mode))
	}
}

// cleanup tears down whatever Start partially brought up, used when a
// later step in Start fails.
func (c *Core) cleanup() {
	c.mu.Lock()
	ln := c.listener
	srv := c.httpServer
	ct := c.clientTransport
	cancel := c.cancelRun
	w := c.watcher
	c.listener = nil
	c.httpServer = nil
	c.clientTransport = nil
	c.runCtx = nil
	c.cancelRun = nil
	c.watcher = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if srv != nil {
		_ = srv.Close()
	}
	if ln != nil {
		_ = ln.Close()
	}
	if ct != nil {
		_ = ct.Disconnect("Bridge stopping")
	}
	if w != nil {
		_ = w.Close()
	}
	c.registry.Clear()
}

// Stop transitions to shutting-down, stops auto-sync, fails every pending
// request, disconnects every peer, and closes the listener. Idempotent: a
// second call is a no-op.
func (c *Core) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	c.shuttingDown = true
	ln := c.listener
	srv := c.httpServer
	ct := c.clientTransport
	cancel := c.cancelRun
	w := c.watcher
	c.listener = nil
	c.httpServer = nil
	c.clientTransport = nil
	c.runCtx = nil
	c.cancelRun = nil
	c.watcher = nil
	c.mu.Unlock()

	c.autoSync.Stop()
	if w != nil {
		_ = w.Close()
	}
	c.correlator.FailAll(bridgeerr.New(bridgeerr.Lifecycle, bridgeerr.CodeBridgeShuttingDown, "Bridge is shutting down"))

	if ct != nil {
		_ = ct.Disconnect("Bridge stopping")
	}
	for _, p := range c.registry.Iterate() {
		if p.Transport != ct {
			_ = p.Transport.Disconnect("Bridge stopping")
		}
	}
	if srv != nil {
		_ = srv.Close()
	}
	if ln != nil {
		_ = ln.Close()
	}
	if cancel != nil {
		cancel()
	}

	c.registry.Clear()
	if c.statusPath != "" {
		if err := statusfile.Remove(c.statusPath); err != nil {
			c.logger.Warn("bridge: failed to remove status file", zap.Error(err))
		}
	}
	c.engine.Close()
}

// startWatcher supplements AutoSync's periodic ticker with an event-driven
// trigger: whenever the context root changes, broadcast immediately instead
// of waiting out the rest of the sync interval. Best-effort — a root that
// can't be watched (missing, permission denied) just leaves the periodic
// timer as the only trigger.
func (c *Core) startWatcher(runCtx context.Context) {
	root := c.cfg.Context.RootPath
	if root == "" {
		root = "."
	}
	w, err := contextwatch.New(c.logger, root, 500*time.Millisecond)
	if err != nil {
		c.logger.Warn("bridge: context watcher disabled", zap.Error(err))
		return
	}
	c.mu.Lock()
	c.watcher = w
	c.mu.Unlock()

	go func() {
		for {
			select {
			case <-runCtx.Done():
				return
			case <-w.Changed():
				ctxMsg, err := c.syncProvider(runCtx)
				if err != nil {
					c.logger.Warn("bridge: watch-triggered snapshot failed", zap.Error(err))
					continue
				}
				if err := c.syncBroadcaster(runCtx, ctxMsg); err != nil {
					c.logger.Warn("bridge: watch-triggered sync failed", zap.Error(err))
				}
			}
		}
	}()
}

// syncProvider is AutoSync's default Provider: the current filtered
// directory tree, with no file content or summary attached.
func (c *Core) syncProvider(ctx context.Context) (*protocol.Context, error) {
	tree, err := c.engine.Tree()
	if err != nil {
		return nil, err
	}
	return &protocol.Context{Tree: tree}, nil
}

// syncBroadcaster is AutoSync's default Broadcaster: fan the context out
// to every connected peer via SyncContext.
func (c *Core) syncBroadcaster(ctx context.Context, ctxMsg *protocol.Context) error {
	return c.SyncContext(ctxMsg, "")
}
