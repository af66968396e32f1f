package jsonfast

import (
	"encoding/json"
	"testing"
)

func TestBuildObject(t *testing.T) {
	b := New(64)
	b.BeginObject()
	b.AddStringField("messageId", "m1")
	b.AddIntField("attempt", 3)
	b.AddBoolField("ack", true)
	b.EndObject()

	want := `{"messageId":"m1","attempt":3,"ack":true}`
	if got := string(b.Bytes()); got != want {
		t.Errorf("Bytes() = %s; want %s", got, want)
	}
}

func TestEscaping(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"quotes and backslash", `say "hi" \ bye`},
		{"newline and tab", "line1\nline2\tend"},
		{"control character", "null\x00byte"},
		{"carriage return and formfeed", "a\rb\fc\bd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(64)
			b.BeginObject()
			b.AddStringField("v", tt.value)
			b.EndObject()

			// The builder's output must round-trip through a strict parser.
			var decoded map[string]string
			if err := json.Unmarshal(b.Bytes(), &decoded); err != nil {
				t.Fatalf("output not valid JSON: %v (%s)", err, b.Bytes())
			}
			if decoded["v"] != tt.value {
				t.Errorf("round trip = %q; want %q", decoded["v"], tt.value)
			}
		})
	}
}

func TestReset(t *testing.T) {
	b := New(16)
	b.BeginObject()
	b.AddStringField("a", "1")
	b.EndObject()

	b.Reset()
	b.BeginObject()
	b.AddStringField("b", "2")
	b.EndObject()

	want := `{"b":"2"}`
	if got := string(b.Bytes()); got != want {
		t.Errorf("Bytes() after Reset = %s; want %s", got, want)
	}
}

func TestDefaultCapacity(t *testing.T) {
	b := New(0)
	b.BeginObject()
	b.AddStringField("k", "v")
	b.EndObject()

	if got := string(b.Bytes()); got != `{"k":"v"}` {
		t.Errorf("Bytes() = %s", got)
	}
}
