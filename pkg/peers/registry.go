// Package peers implements PeerRegistry: the insertion-ordered set of
// connected peers a BridgeCore instance tracks. It is deliberately a thin
// mutex-guarded map, not the teacher's memkv-backed, route-learning store
// (ttmesh/pkg/peers/store.go) — the spec's PeerRegistry has no adjacency
// graph or path-vector fields, only a live peer -> connection mapping.
package peers

import (
	"sync"
	"time"

	"github.com/urands/bridge/pkg/transport"
)

// Peer is the local record of a connected remote bridge instance. Name is
// peer-reported and may be stale; the spec treats it as best-effort
// informational only (no update message exists to refresh it mid-session).
type Peer struct {
	ID            string
	Name          string
	ConnectedAt   time.Time
	LastActivity  time.Time
	Transport     transport.Transport
	SendQueueSize func() int
}

// Registry is an insertion-ordered, key-unique mapping from peer id to
// Peer. All mutations are short critical sections; it never calls user
// handlers while holding its lock.
type Registry struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]*Peer
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Peer)}
}

// Add inserts p, replacing any prior record for the same id without
// disturbing its position in insertion order.
func (r *Registry) Add(p *Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[p.ID]; !exists {
		r.order = append(r.order, p.ID)
	}
	r.byID[p.ID] = p
}

// Remove deletes the peer record, if present.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return
	}
	delete(r.byID, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Get returns the peer record for id, and whether it was found.
func (r *Registry) Get(id string) (*Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	return p, ok
}

// Iterate returns a snapshot of peers in insertion order.
func (r *Registry) Iterate() []*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Peer, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Count returns the number of connected peers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// First returns the first peer by insertion order, used as the default
// target for delegateTask/requestContext when no peerId is given.
func (r *Registry) First() (*Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.order) == 0 {
		return nil, false
	}
	return r.byID[r.order[0]], true
}

// Other returns any connected peer other than exclude, in insertion order.
// Used by Router to pick a forward target for an unhandleable request.
func (r *Registry) Other(exclude string) (*Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		if id != exclude {
			return r.byID[id], true
		}
	}
	return nil, false
}

// Touch updates lastActivity for id to now. LastActivity monotonically
// increases; Touch ignores a timestamp that would move it backward.
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.byID[id]; ok {
		now := time.Now()
		if now.After(p.LastActivity) {
			p.LastActivity = now
		}
	}
}

// Clear empties the registry, used by BridgeCore.stop().
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = nil
	r.byID = make(map[string]*Peer)
}
