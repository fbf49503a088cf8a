package plugin

import (
	"reflect"
	"strings"
	"testing"
)

type mockFactory func(name string) string

func newMock(prefix string) mockFactory {
	return func(name string) string { return prefix + name }
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry[mockFactory]("mock")

	r.Register(&Plugin[mockFactory]{Name: "a", Factory: newMock("a-"), Available: true})

	p, ok := r.Get("a")
	if !ok {
		t.Fatal("Expected plugin to be registered")
	}
	if got := p.Factory("x"); got != "a-x" {
		t.Errorf("Factory() = %q, want %q", got, "a-x")
	}
}

func TestRegistry_Register_Duplicate(t *testing.T) {
	r := NewRegistry[mockFactory]("mock")
	r.Register(&Plugin[mockFactory]{Name: "a", Factory: newMock("a")})

	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for duplicate registration")
		}
	}()

	r.Register(&Plugin[mockFactory]{Name: "a", Factory: newMock("b")})
}

func TestRegistry_Register_EmptyName(t *testing.T) {
	r := NewRegistry[mockFactory]("mock")

	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for empty name")
		}
	}()

	r.Register(&Plugin[mockFactory]{Factory: newMock("a")})
}

func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry[mockFactory]("device")
	r.Register(&Plugin[mockFactory]{Name: "wav", Factory: newMock("wav")})

	if _, err := r.Lookup("wav"); err != nil {
		t.Errorf("Lookup(wav) unexpected error: %v", err)
	}

	_, err := r.Lookup("missing")
	if err == nil {
		t.Fatal("Expected error for unknown backend")
	}
	if !strings.Contains(err.Error(), "device") || !strings.Contains(err.Error(), "wav") {
		t.Errorf("error should name the kind and the available backends, got %q", err)
	}
}

func TestRegistry_ListSorted(t *testing.T) {
	r := NewRegistry[mockFactory]("mock")
	for _, name := range []string{"zeta", "alpha", "mid"} {
		r.Register(&Plugin[mockFactory]{Name: name, Factory: newMock(name)})
	}

	want := []string{"alpha", "mid", "zeta"}
	if got := r.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}

	r.Clear()
	if got := r.List(); len(got) != 0 {
		t.Errorf("List() after Clear = %v, want empty", got)
	}
}
