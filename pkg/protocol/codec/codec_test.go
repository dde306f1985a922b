package codec

import "testing"

func TestJSONCodec(t *testing.T) {
	c := JSON()
	in := map[string]any{"a": 1, "b": "x"}
	b, err := c.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]any
	if err := c.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["a"].(float64) != 1 || out["b"].(string) != "x" {
		t.Fatalf("roundtrip mismatch: %#v", out)
	}
}

func TestStructRoundTrip(t *testing.T) {
	in := map[string]any{"k": "v", "n": 3.0}
	s, err := ToStruct(in)
	if err != nil {
		t.Fatalf("to struct: %v", err)
	}
	out := FromStruct(s)
	if out["k"] != "v" || out["n"] != 3.0 {
		t.Fatalf("roundtrip mismatch: %#v", out)
	}
}

func TestRegistryDefaultsToJSON(t *testing.T) {
	r := NewRegistry()
	if r.Get("application/json") == nil {
		t.Fatalf("expected default JSON codec registered")
	}
	if r.Get("application/cbor") != nil {
		t.Fatalf("did not expect a CBOR codec by default")
	}
}
