package room

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParse_RoundTrip(t *testing.T) {
	for _, raw := range []string{"ABC123", "ZZZZZZ", "000000", "A1B2C3", "QWERTY"} {
		id, ok := Parse(raw)
		if !ok {
			t.Fatalf("Parse(%q) rejected a valid code", raw)
		}
		if got := id.String(); got != raw {
			t.Fatalf("Parse(%q).String()=%q, want %q", raw, got, raw)
		}
	}
}

func TestParse_RejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"ABC12",
		"ABC1234",
		"abc123",
		"ABC-12",
		"ABC 12",
		" ABC12",
		"ÄBC123",
		"ABC12\x00",
		strings.Repeat("A", 64),
	}
	for _, raw := range cases {
		id, ok := Parse(raw)
		if ok {
			t.Fatalf("Parse(%q) accepted a malformed code", raw)
		}
		if !id.IsZero() {
			t.Fatalf("Parse(%q) returned non-zero ID %q on failure", raw, id)
		}
	}
}

func TestGenerate_ProducesParsableCodes(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		id := Generate()
		if _, ok := Parse(id.String()); !ok {
			t.Fatalf("Generate()=%q is not accepted by Parse", id)
		}
		if strings.ContainsAny(id.String(), "IO01") {
			t.Fatalf("Generate()=%q contains an ambiguous character", id)
		}
		seen[id.String()] = true
	}
	if len(seen) < 190 {
		t.Fatalf("Generate produced %d distinct codes out of 200", len(seen))
	}
}

func TestID_JSON(t *testing.T) {
	id, _ := Parse("ABC123")

	b, err := json.Marshal(struct {
		RoomID ID `json:"room_id"`
	}{id})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(b) != `{"room_id":"ABC123"}` {
		t.Fatalf("Marshal=%s", b)
	}

	var out struct {
		RoomID ID `json:"room_id"`
	}
	if err := json.Unmarshal([]byte(`{"room_id":"nope"}`), &out); err == nil {
		t.Fatalf("Unmarshal accepted an invalid code")
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"abc123":                          "ABC123",
		"  ABC123\n":                      "ABC123",
		"https://behide.example/r/abc123": "ABC123",
		"behide.example/r/XYZ789/":        "XYZ789",
		"https://behide.example/":         "HTTPS://BEHIDE.EXAMPLE/",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Fatalf("Normalize(%q)=%q, want %q", in, got, want)
		}
	}
}
