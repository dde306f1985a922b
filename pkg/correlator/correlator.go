// Package correlator implements Correlator: the two pending-request tables
// (tasks, context queries) that match an outbound request to its eventual
// inbound response, with deadline-based timeout and exactly-once
// completion.
//
// The deadline bookkeeping is a single goroutine driving a time-ordered
// min-heap of pending entries rather than one timer per entry, the same
// shape the teacher uses for its deadline-ordered queue levels
// (ttmesh/pkg/core/priocq's heap-backed level ordering) adapted here to a
// flat deadline heap instead of priority classes, since the bridge has no
// notion of message priority.
package correlator

import (
	"container/heap"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/urands/bridge/internal/bridgeerr"
)

// Kind distinguishes the two pending tables.
type Kind string

const (
	KindTask    Kind = "task"
	KindContext Kind = "context"
)

// Outcome is delivered exactly once on an entry's channel, on response,
// timeout, peer disconnect, or bridge shutdown.
type Outcome struct {
	Err   error
	Value any
}

type entry struct {
	kind         Kind
	id           string
	peerID       string
	registeredAt time.Time
	deadline     time.Time
	ch           chan Outcome
	index        int // heap index, maintained by container/heap

	mu   sync.Mutex
	done bool
}

func (e *entry) complete(o Outcome) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return false
	}
	e.done = true
	e.ch <- o
	close(e.ch)
	return true
}

type entryHeap []*entry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Correlator owns pendingTasks and pendingContext, keyed by id.
type Correlator struct {
	logger *zap.Logger

	mu       sync.Mutex
	tasks    map[string]*entry
	contexts map[string]*entry
	deadlines entryHeap

	wake    chan struct{}
	stopCh  chan struct{}
	stopped bool
}

func New(logger *zap.Logger) *Correlator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Correlator{
		logger:   logger,
		tasks:    make(map[string]*entry),
		contexts: make(map[string]*entry),
		wake:     make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
	go c.loop()
	return c
}

func (c *Correlator) table(kind Kind) map[string]*entry {
	if kind == KindTask {
		return c.tasks
	}
	return c.contexts
}

// Register inserts a pending entry for (kind, id), owned by peerID, expiring
// at deadline. It fails if id already has a pending entry of that kind.
func (c *Correlator) Register(kind Kind, id, peerID string, deadline time.Time) (<-chan Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return nil, bridgeerr.New(bridgeerr.Lifecycle, bridgeerr.CodeShuttingDown, "bridge is shutting down")
	}
	t := c.table(kind)
	if _, exists := t[id]; exists {
		return nil, bridgeerr.New(bridgeerr.Protocol, bridgeerr.CodeInvalidMessage,
			"duplicate pending id", bridgeerr.Ctx("id", id))
	}

	e := &entry{kind: kind, id: id, peerID: peerID, registeredAt: time.Now(), deadline: deadline, ch: make(chan Outcome, 1)}
	t[id] = e
	heap.Push(&c.deadlines, e)
	c.signalWake()
	return e.ch, nil
}

// Complete resolves a pending entry exactly once. A second call, or a call
// after the entry already timed out, is a no-op (the late response is
// logged and dropped).
func (c *Correlator) Complete(kind Kind, id string, outcome Outcome) {
	c.mu.Lock()
	t := c.table(kind)
	e, ok := t[id]
	if ok {
		delete(t, id)
		c.removeFromHeap(e)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("correlator: late or unknown completion dropped",
			zap.String("kind", string(kind)), zap.String("id", id))
		return
	}
	if !e.complete(outcome) {
		c.logger.Debug("correlator: duplicate completion ignored",
			zap.String("kind", string(kind)), zap.String("id", id))
	}
}

// FailByPeer completes every pending entry owned by peerID with err, across
// both tables. Used when a peer disconnects mid-operation.
func (c *Correlator) FailByPeer(peerID string, err error) {
	c.mu.Lock()
	var toFail []*entry
	for _, t := range []map[string]*entry{c.tasks, c.contexts} {
		for id, e := range t {
			if e.peerID == peerID {
				delete(t, id)
				c.removeFromHeap(e)
				toFail = append(toFail, e)
			}
		}
	}
	c.mu.Unlock()

	for _, e := range toFail {
		e.complete(Outcome{Err: err})
	}
}

// FailAll completes every pending entry across both tables with err, used
// during shutdown. After FailAll, Register returns a Lifecycle error until
// Reset is called (BridgeCore calls Reset on its next start()).
func (c *Correlator) FailAll(err error) {
	c.mu.Lock()
	c.stopped = true
	var toFail []*entry
	for _, t := range []map[string]*entry{c.tasks, c.contexts} {
		for id, e := range t {
			delete(t, id)
			c.removeFromHeap(e)
			toFail = append(toFail, e)
		}
	}
	c.mu.Unlock()

	for _, e := range toFail {
		e.complete(Outcome{Err: err})
	}
}

// Reset clears the shutdown flag so the Correlator can be reused by a
// subsequent start() after a stop(), matching BridgeCore's restartability.
func (c *Correlator) Reset() {
	c.mu.Lock()
	c.stopped = false
	c.mu.Unlock()
}

// PendingCount returns the number of pending entries owned by peerID,
// across both tables — exercised by the testable invariant that this sum
// equals the table's entry count for that peer.
func (c *Correlator) PendingCount(peerID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range []map[string]*entry{c.tasks, c.contexts} {
		for _, e := range t {
			if e.peerID == peerID {
				n++
			}
		}
	}
	return n
}

// Close stops the deadline-scanning goroutine. It does not complete any
// pending entries; callers that want that should call FailAll first.
func (c *Correlator) Close() {
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
}

func (c *Correlator) removeFromHeap(e *entry) {
	if e.index >= 0 && e.index < len(c.deadlines) && c.deadlines[e.index] == e {
		heap.Remove(&c.deadlines, e.index)
	}
}

func (c *Correlator) signalWake() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Correlator) loop() {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		c.mu.Lock()
		var wait time.Duration
		if len(c.deadlines) == 0 {
			wait = time.Hour
		} else {
			wait = time.Until(c.deadlines[0].deadline)
			if wait < 0 {
				wait = 0
			}
		}
		c.mu.Unlock()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-c.stopCh:
			return
		case <-c.wake:
			continue
		case <-timer.C:
			c.expireDue()
		}
	}
}

func (c *Correlator) expireDue() {
	now := time.Now()
	var due []*entry
	c.mu.Lock()
	for len(c.deadlines) > 0 && !c.deadlines[0].deadline.After(now) {
		e := heap.Pop(&c.deadlines).(*entry)
		delete(c.table(e.kind), e.id)
		due = append(due, e)
	}
	c.mu.Unlock()

	for _, e := range due {
		kind := bridgeerr.Task
		if e.kind == KindContext {
			kind = bridgeerr.Context
		}
		timeout := e.deadline.Sub(e.registeredAt).Round(time.Millisecond)
		e.complete(Outcome{Err: bridgeerr.New(kind, bridgeerr.CodeTimeout,
			fmt.Sprintf("request timed out after %s", timeout),
			bridgeerr.Ctx("id", e.id), bridgeerr.Ctx("peerId", e.peerID), bridgeerr.Ctx("timeoutMs", timeout.Milliseconds()))})
	}
}
