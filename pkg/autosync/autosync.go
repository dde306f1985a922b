// Package autosync implements AutoSync from spec.md §4.7: a periodic
// context broadcast driven by a user-supplied provider, following the same
// ticker-loop shape as pkg/transport's heartbeat.
package autosync

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/urands/bridge/pkg/protocol"
)

// Provider produces the context snapshot to broadcast on each tick. A nil
// provider means "broadcast whatever the caller's default context is" —
// Scheduler leaves that decision to Broadcaster.
type Provider func(ctx context.Context) (*protocol.Context, error)

// Broadcaster sends a context to all connected peers, mirroring BridgeCore's
// syncContext(context, peerId?) with peerId omitted (broadcast to all).
type Broadcaster func(ctx context.Context, c *protocol.Context) error

const DefaultInterval = 5 * time.Second

// Scheduler runs startAutoSync/stopAutoSync: a single ticker goroutine that
// invokes a provider and broadcasts its result every interval, logging and
// swallowing errors rather than stopping the schedule.
type Scheduler struct {
	logger   *zap.Logger
	interval time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

func New(logger *zap.Logger, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{logger: logger, interval: interval}
}

// Start begins the periodic broadcast loop. Calling Start while already
// running is a no-op.
func (s *Scheduler) Start(ctx context.Context, provider Provider, broadcast Broadcaster) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	stopCh := s.stopCh
	done := s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-ticker.C:
				s.tick(ctx, provider, broadcast)
			}
		}
	}()
}

func (s *Scheduler) tick(ctx context.Context, provider Provider, broadcast Broadcaster) {
	var c *protocol.Context
	if provider != nil {
		var err error
		c, err = provider(ctx)
		if err != nil {
			s.logger.Warn("autosync: provider failed", zap.Error(err))
			return
		}
	}
	if err := broadcast(ctx, c); err != nil {
		s.logger.Warn("autosync: broadcast failed", zap.Error(err))
	}
}

// Stop cancels the schedule idempotently and waits for the loop goroutine
// to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stopCh, done := s.stopCh, s.done
	s.mu.Unlock()

	close(stopCh)
	<-done
}

// Running reports whether the schedule is currently active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
