package vm

import "testing"

func TestEnvironmentSlots(t *testing.T) {
	parent := NewEnvironment(1, nil)
	env := NewEnvironment(300, parent)

	if env.Len() != 300 {
		t.Fatalf("Len = %d", env.Len())
	}
	if v, err := env.Get(299); err != nil || !v.IsUndefined() {
		t.Errorf("fresh slot = %v, %v", v, err)
	}
	if err := env.Set(256, Number(7)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, _ := env.Get(256); v.AsNumber() != 7 {
		t.Errorf("slot 256 = %v, want 7", v)
	}
	if _, err := env.Get(300); err == nil {
		t.Error("expected error reading past the end")
	}
	if err := env.Set(300, Undefined); err == nil {
		t.Error("expected error writing past the end")
	}
}

func TestEnvironmentAncestor(t *testing.T) {
	outer := NewEnvironment(1, nil)
	middle := NewEnvironment(2, outer)
	inner := NewEnvironment(3, middle)

	for depth, want := range []*Environment{inner, middle, outer} {
		got, err := inner.Ancestor(depth)
		if err != nil || got != want {
			t.Errorf("Ancestor(%d) = %p, %v, want %p", depth, got, err, want)
		}
	}
	if _, err := inner.Ancestor(3); err == nil {
		t.Error("expected error past the outermost environment")
	}

	var none *Environment
	if _, err := none.Ancestor(1); err == nil {
		t.Error("expected error without an environment")
	}
}

func TestPrivateNamesAreUnique(t *testing.T) {
	a := NewPrivateName("#x")
	b := NewPrivateName("#x")

	if a == b || a.ID() == b.ID() {
		t.Error("two tags with one description must be distinct")
	}
	if a.Description() != "#x" {
		t.Errorf("Description() = %q", a.Description())
	}
}
