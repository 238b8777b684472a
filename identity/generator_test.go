package identity

import "testing"

func TestGeneratorDeterministicPerHomeUser(t *testing.T) {
	g := NewDefaultGenerator()
	id1, err := g.Generate("@alice:example.org", "Alice")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	id2, err := g.Generate("@alice:example.org", "Alice")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("repeat Generate for same home id changed: %+v != %+v", id1, id2)
	}
	if id1.RealName != "Alice" {
		t.Fatalf("RealName = %q, want Alice", id1.RealName)
	}
}

func TestGeneratorRealNameFallsBackToHomeUserID(t *testing.T) {
	g := NewDefaultGenerator()
	id, err := g.Generate("@bob:example.org", "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if id.RealName != "@bob:example.org" {
		t.Fatalf("RealName = %q, want fallback to home user id", id.RealName)
	}
}

func TestGeneratorRequiresHomeUserID(t *testing.T) {
	g := NewDefaultGenerator()
	if _, err := g.Generate("", "whoever"); err == nil {
		t.Fatal("expected an error for an empty home user id")
	}
}

func TestGeneratorResolvesUsernameCollision(t *testing.T) {
	g := NewDefaultGenerator()
	// Two home ids that sanitize down to the same username (punctuation
	// stripped) must not collide.
	id1, err := g.Generate("alice!!", "Alice One")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	id2, err := g.Generate("alice??", "Alice Two")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if id1.Username == id2.Username {
		t.Fatalf("expected distinct usernames, both got %q", id1.Username)
	}
}
