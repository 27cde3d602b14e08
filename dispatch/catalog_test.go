package dispatch

import (
	"errors"
	"testing"
)

func TestCatalogLoadRegistry(t *testing.T) {
	cat := NewCatalog()
	if err := cat.Add("ns.A", MethodDescriptor{OwnerType: "O", Key: MethodKey{Name: "x"}, Handle: noopHandle}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := cat.Add("ns.A", MethodDescriptor{OwnerType: "O", Key: MethodKey{Name: "y"}, Handle: noopHandle}); err != nil {
		t.Fatalf("second Add: %v", err)
	}

	reg, err := cat.LoadRegistry("ns.A")
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	if reg.Len() != 2 {
		t.Errorf("registry has %d entries, want 2", reg.Len())
	}

	if _, err := cat.LoadRegistry("ns.Missing"); !errors.Is(err, ErrRegistryNotFound) {
		t.Errorf("missing namespace: %v, want ErrRegistryNotFound", err)
	}
}

func TestCatalogRejectsDuplicates(t *testing.T) {
	cat := NewCatalog()
	d := MethodDescriptor{OwnerType: "O", Key: MethodKey{Name: "x"}, Handle: noopHandle}
	cat.MustAdd("ns", d)

	if err := cat.Add("ns", d); !errors.Is(err, ErrDuplicateMethod) {
		t.Errorf("duplicate across calls: %v", err)
	}
	if err := cat.Add("ns2", d, d); !errors.Is(err, ErrDuplicateMethod) {
		t.Errorf("duplicate within a call: %v", err)
	}
	// The rejected batch must not be partially applied.
	if _, err := cat.LoadRegistry("ns2"); !errors.Is(err, ErrRegistryNotFound) {
		t.Errorf("ns2 should not exist: %v", err)
	}

	ot := OwnerType{Name: "O", New: func() (any, error) { return &clsOverride{}, nil }}
	cat.MustRegisterOwner(ot)
	if err := cat.RegisterOwner(ot); !errors.Is(err, ErrDuplicateOwner) {
		t.Errorf("duplicate owner: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Error("MustRegisterOwner should panic on duplicates")
		}
	}()
	cat.MustRegisterOwner(ot)
}

func TestCatalogOwners(t *testing.T) {
	cat := NewCatalog()
	if err := cat.RegisterOwner(OwnerType{New: func() (any, error) { return nil, nil }}); !errors.Is(err, ErrEmptyOwnerType) {
		t.Errorf("empty name: %v", err)
	}
	if err := cat.RegisterOwner(OwnerType{Name: "X"}); err == nil {
		t.Error("nil constructor should be rejected")
	}
	if err := cat.Add("", MethodDescriptor{}); !errors.Is(err, ErrEmptyNamespace) {
		t.Errorf("empty namespace: %v", err)
	}

	cat.MustRegisterOwner(OwnerType{Name: "X", New: func() (any, error) { return 1, nil }})
	if _, ok := cat.LookupOwner("X"); !ok {
		t.Error("LookupOwner(X) failed")
	}
	if _, ok := cat.LookupOwner("Y"); ok {
		t.Error("LookupOwner(Y) should fail")
	}

	cat.MustAdd("b", MethodDescriptor{OwnerType: "X", Key: MethodKey{Name: "m"}, Handle: noopHandle})
	cat.MustAdd("a", MethodDescriptor{OwnerType: "X", Key: MethodKey{Name: "m"}, Handle: noopHandle})
	if ns := cat.Namespaces(); len(ns) != 2 || ns[0] != "a" || ns[1] != "b" {
		t.Errorf("Namespaces() = %v", ns)
	}
}
