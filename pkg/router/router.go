// Package router implements Router: inbound message dispatch, local
// handler invocation, and single-hop forwarding to another connected peer
// when no local handler exists.
//
// Forwarding state is kept in two explicit maps (forwardTask,
// forwardContext) rather than as ad-hoc properties on the core instance —
// the teacher already does this in ttmesh/pkg/core/peering/forward.go, and
// it is also the literal instruction in the spec's design notes (replacing
// "dynamic handler monkey-patching").
package router

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/urands/bridge/internal/bridgeerr"
	"github.com/urands/bridge/pkg/correlator"
	"github.com/urands/bridge/pkg/peers"
	"github.com/urands/bridge/pkg/protocol"
)

// TaskHandler executes a delegated task and returns its result.
type TaskHandler func(ctx context.Context, req *protocol.TaskRequest) (*protocol.TaskResult, error)

// ContextHandler answers a context query with ranked file chunks.
type ContextHandler func(ctx context.Context, query string) ([]protocol.FileChunk, error)

// PeerHandler is notified of a peer connecting or disconnecting.
type PeerHandler func(peerID string)

// ContextReceivedHandler is notified of an inbound context_sync.
type ContextReceivedHandler func(ctx *protocol.Context, peerID string)

// MessageHandler is notified of any inbound message not otherwise
// dispatched (notifications, and any other message that is not a task,
// context query, response, or context_sync).
type MessageHandler func(env *protocol.Envelope, peerID string)

// Sender delivers an envelope to a specific connected peer. BridgeCore
// implements it by serializing and writing to the peer's Transport.
type Sender interface {
	SendTo(peerID string, env *protocol.Envelope) error
}

type forwardEntry struct {
	originatorPeerID string
	issuedAt         time.Time
}

// Router dispatches inbound envelopes for one BridgeCore instance.
type Router struct {
	registry     *peers.Registry
	correlator   *correlator.Correlator
	sender       Sender
	logger       *zap.Logger
	instanceName string

	mu              sync.Mutex
	forwardTask     map[string]forwardEntry
	forwardContext  map[string]forwardEntry

	hmu             sync.RWMutex
	taskHandler     TaskHandler
	contextHandler  ContextHandler
	onPeerConnected    []PeerHandler
	onPeerDisconnected []PeerHandler
	onContextReceived  []ContextReceivedHandler
	onMessage          []MessageHandler
}

// New builds a Router. instanceName is stamped as Source on every response
// envelope the router originates (task and context responses, and the
// synthetic "no handler" errors), so a peer two hops away can still tell
// which bridge instance answered.
func New(registry *peers.Registry, c *correlator.Correlator, sender Sender, logger *zap.Logger, instanceName string) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		registry:       registry,
		correlator:     c,
		sender:         sender,
		logger:         logger,
		instanceName:   instanceName,
		forwardTask:    make(map[string]forwardEntry),
		forwardContext: make(map[string]forwardEntry),
	}
}

func (r *Router) SetTaskHandler(h TaskHandler)       { r.hmu.Lock(); r.taskHandler = h; r.hmu.Unlock() }
func (r *Router) SetContextHandler(h ContextHandler) { r.hmu.Lock(); r.contextHandler = h; r.hmu.Unlock() }

func (r *Router) OnPeerConnected(h PeerHandler) {
	r.hmu.Lock()
	r.onPeerConnected = append(r.onPeerConnected, h)
	r.hmu.Unlock()
}

func (r *Router) OnPeerDisconnected(h PeerHandler) {
	r.hmu.Lock()
	r.onPeerDisconnected = append(r.onPeerDisconnected, h)
	r.hmu.Unlock()
}

func (r *Router) OnContextReceived(h ContextReceivedHandler) {
	r.hmu.Lock()
	r.onContextReceived = append(r.onContextReceived, h)
	r.hmu.Unlock()
}

func (r *Router) OnMessage(h MessageHandler) {
	r.hmu.Lock()
	r.onMessage = append(r.onMessage, h)
	r.hmu.Unlock()
}

func (r *Router) firePeerConnected(id string) {
	r.hmu.RLock()
	hs := append([]PeerHandler(nil), r.onPeerConnected...)
	r.hmu.RUnlock()
	for _, h := range hs {
		safeCall(r.logger, func() { h(id) })
	}
}

func (r *Router) firePeerDisconnected(id string) {
	r.hmu.RLock()
	hs := append([]PeerHandler(nil), r.onPeerDisconnected...)
	r.hmu.RUnlock()
	for _, h := range hs {
		safeCall(r.logger, func() { h(id) })
	}
}

// FirePeerConnected notifies every onPeerConnected handler that id has
// joined. BridgeCore calls this once a transport's connection completes,
// since peer lifecycle lives above Dispatch's message switch.
func (r *Router) FirePeerConnected(id string) { r.firePeerConnected(id) }

// FirePeerDisconnected notifies every onPeerDisconnected handler that id
// has left.
func (r *Router) FirePeerDisconnected(id string) { r.firePeerDisconnected(id) }

func safeCall(logger *zap.Logger, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("router: handler panic recovered", zap.Any("panic", rec))
		}
	}()
	fn()
}

// Dispatch handles one inbound envelope from peer p, per the spec's
// per-type dispatch table. Task and context-query handlers run on their own
// goroutine; context-received and message handlers are called
// synchronously, before Dispatch returns.
func (r *Router) Dispatch(ctx context.Context, p *peers.Peer, env *protocol.Envelope) {
	r.registry.Touch(p.ID)

	switch {
	case env.Type == protocol.MsgTaskDelegate:
		r.dispatchTaskDelegate(ctx, p, env)
	case env.Type == protocol.MsgResponse && env.Result != nil && env.Result.TaskID != "":
		r.dispatchTaskResponse(env)
	case env.IsContextQuery():
		r.dispatchContextQuery(ctx, p, env)
	case env.Type == protocol.MsgResponse && env.Context != nil:
		r.dispatchContextResponse(env)
	case env.Type == protocol.MsgContextSync:
		r.dispatchContextSync(env, p.ID)
	default:
		r.dispatchGeneric(env, p.ID)
	}
}

func (r *Router) dispatchTaskDelegate(ctx context.Context, p *peers.Peer, env *protocol.Envelope) {
	r.hmu.RLock()
	handler := r.taskHandler
	r.hmu.RUnlock()

	if handler != nil {
		go func() {
			result, err := invokeTask(ctx, handler, env.Task)
			resp := protocol.NewEnvelope(protocol.MsgResponse, r.instanceName)
			resp.ID = env.ID
			if err != nil {
				resp.Result = &protocol.TaskResult{TaskID: env.Task.ID, Success: false, Error: err.Error()}
			} else {
				result.TaskID = env.Task.ID
				resp.Result = result
			}
			if sendErr := r.sender.SendTo(p.ID, &resp); sendErr != nil {
				r.logger.Warn("router: failed to send task response", zap.String("peer", p.ID), zap.Error(sendErr))
			}
		}()
		return
	}

	other, ok := r.registry.Other(p.ID)
	if !ok {
		resp := protocol.NewEnvelope(protocol.MsgResponse, r.instanceName)
		resp.ID = env.ID
		resp.Result = &protocol.TaskResult{TaskID: env.Task.ID, Success: false, Error: "No task handler registered on peer"}
		if err := r.sender.SendTo(p.ID, &resp); err != nil {
			r.logger.Warn("router: failed to send no-handler response", zap.String("peer", p.ID), zap.Error(err))
		}
		return
	}

	r.mu.Lock()
	r.forwardTask[env.Task.ID] = forwardEntry{originatorPeerID: p.ID, issuedAt: time.Now()}
	r.mu.Unlock()

	if err := r.sender.SendTo(other.ID, env); err != nil {
		r.logger.Warn("router: forward task failed", zap.String("to", other.ID), zap.Error(err))
	}
}

func invokeTask(ctx context.Context, h TaskHandler, req *protocol.TaskRequest) (result *protocol.TaskResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = bridgeerr.New(bridgeerr.Task, bridgeerr.CodeHandlerError, "task handler panicked", bridgeerr.Ctx("panic", rec))
		}
	}()
	return h(ctx, req)
}

func (r *Router) dispatchTaskResponse(env *protocol.Envelope) {
	taskID := env.Result.TaskID

	r.mu.Lock()
	fe, forwarded := r.forwardTask[taskID]
	if forwarded {
		delete(r.forwardTask, taskID)
	}
	r.mu.Unlock()

	if forwarded {
		if err := r.sender.SendTo(fe.originatorPeerID, env); err != nil {
			r.logger.Warn("router: failed to relay task response to originator",
				zap.String("originator", fe.originatorPeerID), zap.Error(err))
		}
		return
	}

	r.correlator.Complete(correlator.KindTask, taskID, correlator.Outcome{Value: env.Result})
}

func (r *Router) dispatchContextQuery(ctx context.Context, p *peers.Peer, env *protocol.Envelope) {
	r.hmu.RLock()
	handler := r.contextHandler
	r.hmu.RUnlock()

	if handler != nil {
		go func() {
			chunks, err := invokeContext(ctx, handler, env.Context.Summary)
			resp := protocol.NewEnvelope(protocol.MsgResponse, r.instanceName)
			resp.ID = env.ID
			resp.Context = &protocol.Context{}
			resp.WithRequestID(env.ID)
			if err != nil {
				resp.WithError(err.Error())
			} else {
				resp.Context.Files = chunks
			}
			if sendErr := r.sender.SendTo(p.ID, &resp); sendErr != nil {
				r.logger.Warn("router: failed to send context response", zap.String("peer", p.ID), zap.Error(sendErr))
			}
		}()
		return
	}

	other, ok := r.registry.Other(p.ID)
	if !ok {
		resp := protocol.NewEnvelope(protocol.MsgResponse, r.instanceName)
		resp.ID = env.ID
		resp.Context = &protocol.Context{}
		resp.WithRequestID(env.ID)
		resp.WithError("No context handler registered on peer")
		if err := r.sender.SendTo(p.ID, &resp); err != nil {
			r.logger.Warn("router: failed to send no-handler context response", zap.String("peer", p.ID), zap.Error(err))
		}
		return
	}

	r.mu.Lock()
	r.forwardContext[env.ID] = forwardEntry{originatorPeerID: p.ID, issuedAt: time.Now()}
	r.mu.Unlock()

	if err := r.sender.SendTo(other.ID, env); err != nil {
		r.logger.Warn("router: forward context query failed", zap.String("to", other.ID), zap.Error(err))
	}
}

func invokeContext(ctx context.Context, h ContextHandler, query string) (chunks []protocol.FileChunk, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = bridgeerr.New(bridgeerr.Context, bridgeerr.CodeHandlerError, "context handler panicked", bridgeerr.Ctx("panic", rec))
		}
	}()
	return h(ctx, query)
}

func (r *Router) dispatchContextResponse(env *protocol.Envelope) {
	requestID, ok := env.RequestID()
	if !ok {
		r.logger.Debug("router: context response without requestId dropped")
		return
	}

	r.mu.Lock()
	fe, forwarded := r.forwardContext[requestID]
	if forwarded {
		delete(r.forwardContext, requestID)
	}
	r.mu.Unlock()

	if forwarded {
		if err := r.sender.SendTo(fe.originatorPeerID, env); err != nil {
			r.logger.Warn("router: failed to relay context response to originator",
				zap.String("originator", fe.originatorPeerID), zap.Error(err))
		}
		return
	}

	var files []protocol.FileChunk
	if env.Context != nil {
		files = env.Context.Files
	}
	var outErr error
	if env.Context != nil {
		if msg, ok := env.Context.Variables["error"].(string); ok && msg != "" {
			outErr = bridgeerr.New(bridgeerr.Context, bridgeerr.CodeHandlerError, msg)
		}
	}
	r.correlator.Complete(correlator.KindContext, requestID, correlator.Outcome{Value: files, Err: outErr})
}

func (r *Router) dispatchContextSync(env *protocol.Envelope, peerID string) {
	r.hmu.RLock()
	hs := append([]ContextReceivedHandler(nil), r.onContextReceived...)
	r.hmu.RUnlock()
	for _, h := range hs {
		h := h
		safeCall(r.logger, func() { h(env.Context, peerID) })
	}
}

func (r *Router) dispatchGeneric(env *protocol.Envelope, peerID string) {
	r.hmu.RLock()
	hs := append([]MessageHandler(nil), r.onMessage...)
	r.hmu.RUnlock()
	for _, h := range hs {
		h := h
		safeCall(r.logger, func() { h(env, peerID) })
	}
}
