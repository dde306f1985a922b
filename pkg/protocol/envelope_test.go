package protocol

import "testing"

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	e := NewEnvelope(MsgTaskDelegate, "agent-a")
	e.Task = &TaskRequest{ID: "t-1", Description: "do x", Scope: ScopeExecute}

	b, err := Serialize(&e)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	got, err := Deserialize(b)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if got.ID != e.ID || got.Type != e.Type || got.Source != e.Source {
		t.Fatalf("envelope mismatch: got %+v want %+v", got, e)
	}
	if got.Task == nil || got.Task.ID != "t-1" {
		t.Fatalf("task payload lost in round trip: %+v", got.Task)
	}
}

func TestDeserializeRejectsGarbage(t *testing.T) {
	if _, err := Deserialize([]byte("not json")); err == nil {
		t.Fatalf("expected ParseError")
	} else if _, ok := err.(*ParseError); !ok {
		t.Fatalf("expected *ParseError, got %T", err)
	}
}

func TestDeserializeRejectsUnknownType(t *testing.T) {
	b := []byte(`{"id":"x","type":"bogus","source":"a","timestamp":1}`)
	if _, err := Deserialize(b); err == nil {
		t.Fatalf("expected SchemaError")
	} else if _, ok := err.(*SchemaError); !ok {
		t.Fatalf("expected *SchemaError, got %T", err)
	}
}

func TestDeserializeRejectsTaskDelegateWithoutTask(t *testing.T) {
	b := []byte(`{"id":"x","type":"task_delegate","source":"a","timestamp":1}`)
	if _, err := Deserialize(b); err == nil {
		t.Fatalf("expected SchemaError for missing task payload")
	}
}

func TestContextQueryRequestID(t *testing.T) {
	req := NewEnvelope(MsgRequest, "agent-a")
	req.Context = &Context{Summary: "fix authentication bug"}
	if !req.IsContextQuery() {
		t.Fatalf("expected context query")
	}

	resp := NewEnvelope(MsgResponse, "agent-b")
	resp.Context = &Context{Files: []FileChunk{{Path: "auth.ts", Content: "..."}}}
	resp.WithRequestID(req.ID)

	got, ok := resp.RequestID()
	if !ok || got != req.ID {
		t.Fatalf("request id round trip failed: got %q ok %v want %q", got, ok, req.ID)
	}
}
