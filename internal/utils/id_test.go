package utils

import (
	"strings"
	"testing"
)

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := NewID()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}
}

func TestDisplayName(t *testing.T) {
	name := DisplayName("3f2504e0-4f89-11d3-9a0c-0305e82c3301")
	if name != "guest-3f2504e0" {
		t.Fatalf("unexpected name %q", name)
	}
	if got := DisplayName(""); !strings.HasPrefix(got, "guest-") {
		t.Fatalf("unexpected fallback name %q", got)
	}
}
