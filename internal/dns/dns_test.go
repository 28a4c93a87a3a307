package dns

import (
	"context"
	"testing"
)

func TestLookup_IPLiteral(t *testing.T) {
	for _, addr := range []string{"127.0.0.1", "::1", "10.1.2.3"} {
		got, err := Lookup(context.Background(), addr)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", addr, err)
		}
		if got != addr {
			t.Fatalf("Lookup(%q)=%q, want unchanged", addr, got)
		}
	}
}
