package xid

import (
	"strings"
	"testing"
)

func TestNewIsPrefixedAndUnique(t *testing.T) {
	seen := make(map[string]bool, 100)
	for i := 0; i < 100; i++ {
		id := New("reg")
		if !strings.HasPrefix(id, "reg-") {
			t.Fatalf("expected reg- prefix, got %s", id)
		}
		if len(id) != len("reg-")+32 {
			t.Fatalf("unexpected id length %d for %s", len(id), id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}
