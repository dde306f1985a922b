// Package bridgeerr defines the bridge's error taxonomy: a small set of
// kinds, a stable code, an actionable message, and an optional context map
// carrying the identifiers relevant to the failure (url, peerId, taskId,
// requestId).
package bridgeerr

import "fmt"

// Kind is the category of a bridge error.
type Kind string

const (
	Configuration Kind = "configuration"
	Connection    Kind = "connection"
	Peer          Kind = "peer"
	Task          Kind = "task"
	Context       Kind = "context"
	Protocol      Kind = "protocol"
	Lifecycle     Kind = "lifecycle"
)

// Well-known codes referenced directly by callers that need to distinguish
// a specific failure (e.g. tests asserting on Timeout vs PeerDisconnected).
const (
	CodeTimeout                = "timeout"
	CodePeerDisconnected       = "peer_disconnected"
	CodeBridgeShuttingDown     = "bridge_shutting_down"
	CodeHandlerError           = "handler_error"
	CodeSendError              = "send_error"
	CodeNoPeersConnected       = "no_peers_connected"
	CodePeerNotFound           = "peer_not_found"
	CodeNotConnected           = "not_connected"
	CodeAlreadyConnected       = "already_connected"
	CodeInvalidConfiguration   = "invalid_configuration"
	CodeAlreadyStarted         = "already_started"
	CodeNotStarted             = "not_started"
	CodeShuttingDown           = "shutting_down"
	CodeInvalidMessage         = "invalid_message"
	CodeSnapshotNotFound       = "snapshot_not_found"
	CodeMaxReconnectsExhausted = "max_reconnects_exhausted"
)

// Error is the concrete error type returned across the bridge's public API.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Context map[string]any
}

func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s %v", e.Kind, e.Message, e.Context)
}

// Unwrap returns nil: an Error carries no wrapped cause. Matching against
// kind-scoped sentinels built with New(kind, code, "") is done by Is.
func (e *Error) Unwrap() error { return nil }

// Is reports whether target is a *Error with the same Kind and Code,
// allowing errors.Is(err, bridgeerr.New(bridgeerr.Task, bridgeerr.CodeTimeout, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != "" && t.Code != e.Code {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an Error with an optional context map, merged in order (later
// maps win on key collision).
func New(kind Kind, code, message string, ctx ...map[string]any) *Error {
	e := &Error{Kind: kind, Code: code, Message: message}
	for _, m := range ctx {
		for k, v := range m {
			if e.Context == nil {
				e.Context = make(map[string]any)
			}
			e.Context[k] = v
		}
	}
	return e
}

// Ctx is a convenience constructor for a single-entry context map.
func Ctx(k string, v any) map[string]any { return map[string]any{k: v} }
