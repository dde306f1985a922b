package codec

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// ToStruct converts an arbitrary JSON-shaped map, such as Context.Variables
// or TaskRequest.Data, into a protobuf Struct. Callers that bridge into a
// protobuf-based system (a gateway, a gRPC sidecar) can carry the value
// across without the core inventing its own dynamic-value encoding.
func ToStruct(v map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(v)
	if err != nil {
		return nil, fmt.Errorf("codec: map to struct: %w", err)
	}
	return s, nil
}

// FromStruct is the inverse of ToStruct.
func FromStruct(s *structpb.Struct) map[string]any {
	if s == nil {
		return nil
	}
	return s.AsMap()
}
