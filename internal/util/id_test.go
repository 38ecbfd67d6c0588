package util

import (
	"strings"
	"testing"
)

func TestNewIDPrefixAndUniqueness(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := NewID("thg")
		if !strings.HasPrefix(id, "thg_") {
			t.Fatalf("expected thg_ prefix, got %q", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
	if id := NewID(""); strings.Contains(id, "_") || len(id) != 26 {
		t.Fatalf("expected bare 26-char ulid, got %q", id)
	}
}
