package protocol

import (
	"time"

	"github.com/google/uuid"
)

// Envelope is the single message wrapper exchanged between peers. Exactly
// one of Context, Task, or Result is populated, depending on Type.
type Envelope struct {
	ID        string       `json:"id"`
	Type      MessageType  `json:"type"`
	Source    string       `json:"source"`
	Timestamp int64        `json:"timestamp"`
	Context   *Context     `json:"context,omitempty"`
	Task      *TaskRequest `json:"task,omitempty"`
	Result    *TaskResult  `json:"result,omitempty"`
}

// NewEnvelope allocates an envelope with a fresh UUIDv4 id and the current
// wall-clock time, as required of every outbound request.
func NewEnvelope(t MessageType, source string) Envelope {
	return Envelope{
		ID:        uuid.NewString(),
		Type:      t,
		Source:    source,
		Timestamp: time.Now().UnixMilli(),
	}
}

// IsContextQuery reports whether a request envelope is a context query
// rather than a plain fire-and-forget request.
func (e *Envelope) IsContextQuery() bool {
	return e.Type == MsgRequest && e.Context != nil && e.Context.Summary != ""
}

// RequestID reads context.variables.requestId, the correlation key a
// context-query response carries back to its originator.
func (e *Envelope) RequestID() (string, bool) {
	if e.Context == nil || e.Context.Variables == nil {
		return "", false
	}
	v, ok := e.Context.Variables["requestId"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// WithRequestID stamps context.variables.requestId on a response envelope.
func (e *Envelope) WithRequestID(id string) {
	if e.Context == nil {
		e.Context = &Context{}
	}
	if e.Context.Variables == nil {
		e.Context.Variables = make(map[string]any)
	}
	e.Context.Variables["requestId"] = id
}

// WithError stamps context.variables.error, used when a context handler or
// forward target fails.
func (e *Envelope) WithError(msg string) {
	if e.Context == nil {
		e.Context = &Context{}
	}
	if e.Context.Variables == nil {
		e.Context.Variables = make(map[string]any)
	}
	e.Context.Variables["error"] = msg
}
