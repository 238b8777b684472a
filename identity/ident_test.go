package identity

import "testing"

func TestRegistryStoreLookupDelete(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Lookup(4242); ok {
		t.Fatal("expected no mapping before Store")
	}
	r.Store(4242, "alice")
	u, ok := r.Lookup(4242)
	if !ok || u != "alice" {
		t.Fatalf("Lookup = (%q, %v), want (alice, true)", u, ok)
	}
	r.Delete(4242)
	if _, ok := r.Lookup(4242); ok {
		t.Fatal("expected mapping to be gone after Delete")
	}
}

func TestRegistryDeleteUnknownPortIsSafe(t *testing.T) {
	r := NewRegistry()
	r.Delete(1) // must not panic
}

func TestRegistryOverwriteOnPortReuse(t *testing.T) {
	r := NewRegistry()
	r.Store(9999, "alice")
	r.Store(9999, "bob")
	u, _ := r.Lookup(9999)
	if u != "bob" {
		t.Fatalf("Lookup = %q, want bob after port reuse", u)
	}
}
