package agent

import (
	"testing"
)

func TestRegistry_RegisterAndResolve(t *testing.T) {
	reg := NewRegistry()

	err := reg.Register("review", func() (Agent, error) {
		return newStubAgent("review"), nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a, err := reg.Resolve("review")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if a.Name() != "review" {
		t.Errorf("expected review agent, got %s", a.Name())
	}

	// Each resolve constructs a fresh instance.
	b, err := reg.Resolve("review")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if a == b {
		t.Error("expected distinct instances per resolve")
	}
}

func TestRegistry_DuplicateKey(t *testing.T) {
	reg := NewRegistry()
	ctor := func() (Agent, error) { return newStubAgent("ocr"), nil }

	if err := reg.Register("ocr", ctor); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := reg.Register("ocr", ctor); err == nil {
		t.Error("expected error for duplicate registration")
	}
}

func TestRegistry_Validation(t *testing.T) {
	reg := NewRegistry()

	if err := reg.Register("", func() (Agent, error) { return nil, nil }); err == nil {
		t.Error("expected error for empty key")
	}
	if err := reg.Register("x", nil); err == nil {
		t.Error("expected error for nil constructor")
	}
}

func TestRegistry_ResolveUnknown(t *testing.T) {
	reg := NewRegistry()

	if _, err := reg.Resolve("missing"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestRegistry_Keys(t *testing.T) {
	reg := NewRegistry()
	for _, key := range []string{"translation", "ocr", "review"} {
		if err := reg.Register(key, func() (Agent, error) { return newStubAgent(key), nil }); err != nil {
			t.Fatalf("register %s failed: %v", key, err)
		}
	}

	keys := reg.Keys()
	want := []string{"ocr", "review", "translation"}
	if len(keys) != len(want) {
		t.Fatalf("expected %v, got %v", want, keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("expected sorted keys %v, got %v", want, keys)
		}
	}
}
