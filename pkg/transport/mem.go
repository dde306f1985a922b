package transport

import (
	"context"
	"errors"
	"sync"
)

// MemTransport is an in-process Transport for tests: two instances created
// by NewMemPair are wired directly through Go channels, skipping sockets and
// framing entirely. It honors the same Connect/Disconnect/Send contract as
// WebSocketTransport so Router and BridgeCore tests don't need a real
// listener.
type MemTransport struct {
	base

	peer *MemTransport
	in   chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

// NewMemPair returns two connected-on-Connect transports, each delivering
// Sends to the other's OnMessage callback.
func NewMemPair(cfg Config) (a, b *MemTransport) {
	a = &MemTransport{base: newBase(cfg), in: make(chan []byte, 256), closed: make(chan struct{})}
	b = &MemTransport{base: newBase(cfg), in: make(chan []byte, 256), closed: make(chan struct{})}
	a.peer = b
	b.peer = a
	return a, b
}

func (t *MemTransport) Connect(ctx context.Context) error {
	if t.State() == Connected {
		return nil
	}
	t.setState(Connecting)
	runCtx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()
	t.setState(Connected)
	go t.deliverLoop(runCtx)
	t.flushQueue()
	return nil
}

func (t *MemTransport) deliverLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.closed:
			return
		case frame := <-t.in:
			t.emitMessage(frame)
		}
	}
}

func (t *MemTransport) Disconnect(reason string) error {
	t.mu.Lock()
	if t.cancel != nil {
		t.cancel()
	}
	t.mu.Unlock()
	t.drain()
	t.setState(Disconnected)
	t.closeOnce.Do(func() { close(t.closed) })
	return nil
}

func (t *MemTransport) Send(frame []byte) error {
	if t.State() != Connected {
		if !t.cfg.Reconnect {
			return errors.New("transport: not connected")
		}
		t.enqueue(frame)
		return nil
	}
	t.enqueue(frame)
	t.flushQueue()
	return nil
}

func (t *MemTransport) flushQueue() {
	frames := t.drain()
	for i, f := range frames {
		if t.peer == nil {
			t.requeueFront(frames[i:])
			return
		}
		select {
		case t.peer.in <- f:
		case <-t.peer.closed:
			t.requeueFront(frames[i:])
			t.emitError(errors.New("transport: peer closed"))
			return
		}
	}
}

// simulateDrop breaks the link from the caller's side, as if the remote
// peer vanished, and drives the reconnect path when enabled. It exists for
// tests exercising the reconnect-with-queued-messages property.
func (t *MemTransport) simulateDrop(cause error) {
	t.mu.Lock()
	if t.cancel != nil {
		t.cancel()
	}
	t.mu.Unlock()

	if !t.cfg.Reconnect {
		t.setState(Disconnected)
		t.emitDisconnect(cause)
		return
	}
	t.setState(Reconnecting)
	t.emitReconnecting(1, t.cfg.MaxReconnectAttempts)

	runCtx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()
	t.setState(Connected)
	go t.deliverLoop(runCtx)
	t.flushQueue()
}
