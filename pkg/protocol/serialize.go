package protocol

import (
	"encoding/json"
	"fmt"
)

// ParseError means the frame was not valid JSON at all.
type ParseError struct {
	Cause error
}

func (e *ParseError) Error() string { return fmt.Sprintf("protocol: parse error: %v", e.Cause) }
func (e *ParseError) Unwrap() error { return e.Cause }

// SchemaError means the frame was valid JSON but did not satisfy the
// envelope schema (missing required field, or an unknown message type).
type SchemaError struct {
	Path string
	Msg  string
}

func (e *SchemaError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("protocol: schema error: %s", e.Msg)
	}
	return fmt.Sprintf("protocol: schema error at %s: %s", e.Path, e.Msg)
}

// Serialize encodes an envelope as a single UTF-8 JSON frame. It fails only
// if the payload contains values encoding/json cannot marshal; it never
// silently drops fields.
func Serialize(e *Envelope) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("protocol: serialize: %w", err)
	}
	return b, nil
}

// Deserialize decodes and validates a single JSON frame. Unknown top-level
// fields are ignored by encoding/json; an unknown Type value fails with
// SchemaError.
func Deserialize(b []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, &ParseError{Cause: err}
	}
	if errs := Validate(&e); len(errs) > 0 {
		return nil, errs[0]
	}
	return &e, nil
}

// Validate checks an envelope against the schema invariants from the data
// model: a non-empty id and source, a known type, a task payload on
// task_delegate, and a result or context payload on response. Extra
// populated payload fields are not rejected. It returns the violations
// found in that order; an unknown type stops the check there.
func Validate(e *Envelope) []*SchemaError {
	var errs []*SchemaError
	if e.ID == "" {
		errs = append(errs, &SchemaError{Path: "id", Msg: "must not be empty"})
	}
	if e.Source == "" {
		errs = append(errs, &SchemaError{Path: "source", Msg: "must not be empty"})
	}
	if !e.Type.Valid() {
		errs = append(errs, &SchemaError{Path: "type", Msg: fmt.Sprintf("unknown message type %q", e.Type)})
		return errs
	}
	switch e.Type {
	case MsgTaskDelegate:
		if e.Task == nil {
			errs = append(errs, &SchemaError{Path: "task", Msg: "required for task_delegate"})
		}
	case MsgResponse:
		if e.Result == nil && e.Context == nil {
			errs = append(errs, &SchemaError{Path: "result|context", Msg: "response must carry a result or a context"})
		}
	}
	return errs
}
