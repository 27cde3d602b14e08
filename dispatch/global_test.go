package dispatch

import "testing"

func TestGlobalEngine(t *testing.T) {
	t.Cleanup(func() { CloseGlobal() })

	d := Default()
	if d == nil || d.Name() != "default" {
		t.Fatalf("Default() = %v", d)
	}
	if Default() != d {
		t.Fatal("Default() returned a different engine")
	}

	custom := New(WithCatalog(NewCatalog()), WithName("custom"))
	if prev := InitGlobal(custom); prev != d {
		t.Fatal("InitGlobal did not return the previous engine")
	}
	d.Close()
	if Default() != custom {
		t.Fatal("Default() did not return the installed engine")
	}

	if err := CloseGlobal(); err != nil {
		t.Fatalf("CloseGlobal: %v", err)
	}
	if err := custom.InstallWrapper("a", "b", Value(1), PhaseNone); err == nil {
		t.Error("CloseGlobal did not close the engine")
	}
	if Default() == custom {
		t.Error("Default() kept the closed engine")
	}
}

func TestReleaseGlobal(t *testing.T) {
	t.Cleanup(func() { CloseGlobal() })

	mine := New(WithCatalog(NewCatalog()), WithName("mine"))
	other := New(WithCatalog(NewCatalog()), WithName("other"))
	defer other.Close()
	if prev := InitGlobal(mine); prev != nil {
		prev.Close()
	}

	if ReleaseGlobal(other) {
		t.Error("released an engine that was not global")
	}
	if Default() != mine {
		t.Fatal("releasing another engine changed the global")
	}
	if ReleaseGlobal(nil) {
		t.Error("released nil")
	}

	if !ReleaseGlobal(mine) {
		t.Fatal("ReleaseGlobal(mine) = false")
	}
	if err := mine.InstallWrapper("a", "b", Value(1), PhaseNone); err != nil {
		t.Errorf("ReleaseGlobal closed the engine: %v", err)
	}
	mine.Close()
	if d := Default(); d == mine || d.Name() != "default" {
		t.Errorf("Default() = %v after release", d)
	}
}
