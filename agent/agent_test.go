package agent

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/hotpatch/dispatch"
	"github.com/chazu/hotpatch/manifest"
	"github.com/chazu/hotpatch/patchwire"
	"github.com/chazu/hotpatch/server"
)

func testManifest(t *testing.T) *manifest.Manifest {
	t.Helper()
	m := manifest.Default()
	m.Dir = t.TempDir()
	m.Engine.Name = "agent-test"
	m.Server.Enabled = true
	m.Server.Addr = "127.0.0.1:0"
	return m
}

func TestAgent_InstallSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	m := testManifest(t)

	a, err := New(m, WithCatalog(dispatch.NewCatalog()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Addr() == nil {
		t.Fatal("control service not started")
	}

	client := server.NewClient(http.DefaultClient, "http://"+a.Addr().String())
	p, _ := patchwire.NewPatch("shop.Cart", "total", dispatch.PhaseNone, "free")
	resp, err := client.Install(ctx, p)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if !resp.Persisted {
		t.Error("patch not journaled")
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	b, err := New(m, WithCatalog(dispatch.NewCatalog()))
	if err != nil {
		t.Fatalf("New after restart: %v", err)
	}
	defer b.Close()

	if b.Replayed() != 1 {
		t.Errorf("Replayed = %d, want 1", b.Replayed())
	}
	res, err := b.Engine().Dispatch("shop.Cart", dispatch.PhaseNone, "total", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Value() != "free" {
		t.Errorf("Dispatch after restart = %v", res)
	}
	if b.Engine().Name() != "agent-test" {
		t.Errorf("engine name = %q", b.Engine().Name())
	}
}

func TestAgent_ReplayDisabled(t *testing.T) {
	ctx := context.Background()
	m := testManifest(t)
	m.Server.Enabled = false

	a, err := New(m, WithCatalog(dispatch.NewCatalog()))
	if err != nil {
		t.Fatal(err)
	}
	p, _ := patchwire.NewPatch("ns", "m", dispatch.PhaseNone, 1)
	if _, err := a.Store().Save(ctx, p); err != nil {
		t.Fatal(err)
	}
	a.Close()

	m.Store.Replay = false
	b, err := New(m, WithCatalog(dispatch.NewCatalog()))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if b.Replayed() != 0 || b.Engine().Stats().Wrappers != 0 {
		t.Errorf("Replayed = %d with replay off", b.Replayed())
	}
	if b.Addr() != nil {
		t.Error("server started while disabled")
	}
}

func TestAgent_NoStoreNoMetrics(t *testing.T) {
	m := testManifest(t)
	m.Server.Enabled = false
	m.Store.Path = ""
	m.Store.Replay = false
	m.Engine.Metrics = false

	a, err := New(m, WithCatalog(dispatch.NewCatalog()))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	if a.Store() != nil {
		t.Error("store opened with empty path")
	}
	if a.Registry() != nil {
		t.Error("registry created with metrics off")
	}
	if _, err := os.Stat(filepath.Join(m.Dir, ".hotpatch")); !os.IsNotExist(err) {
		t.Errorf("journal directory created: %v", err)
	}
}

func TestAgent_StoreOpenFailure(t *testing.T) {
	m := testManifest(t)
	m.Server.Enabled = false
	blocker := filepath.Join(m.Dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	m.Store.Path = filepath.Join("blocker", "patches.db")

	if _, err := New(m, WithCatalog(dispatch.NewCatalog())); err == nil {
		t.Fatal("expected error when journal directory cannot be created")
	}
}

func TestAgent_ListenFailure(t *testing.T) {
	m := testManifest(t)
	m.Server.Addr = "not-an-address"

	if _, err := New(m, WithCatalog(dispatch.NewCatalog())); err == nil {
		t.Fatal("expected listen error")
	}
}

func TestStart_InstallsGlobal(t *testing.T) {
	dir := t.TempDir()
	toml := `
[engine]
name = "started"
verbosity = 0

[server]
enabled = false
`
	if err := os.WriteFile(filepath.Join(dir, manifest.FileName), []byte(toml), 0o644); err != nil {
		t.Fatal(err)
	}

	a, err := Start(dir, WithCatalog(dispatch.NewCatalog()))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		a.Close()
		dispatch.CloseGlobal()
	})

	if dispatch.Default() != a.Engine() {
		t.Error("global engine not replaced")
	}
	if a.Manifest().Engine.Name != "started" {
		t.Errorf("manifest name = %q", a.Manifest().Engine.Name)
	}
	if got := a.Store().Path(); got != filepath.Join(dir, ".hotpatch", "patches.db") {
		t.Errorf("store path = %q", got)
	}
}

func TestClose_ReleasesGlobal(t *testing.T) {
	dir := t.TempDir()
	toml := `
[server]
enabled = false
`
	if err := os.WriteFile(filepath.Join(dir, manifest.FileName), []byte(toml), 0o644); err != nil {
		t.Fatal(err)
	}
	a, err := Start(dir, WithCatalog(dispatch.NewCatalog()))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { dispatch.CloseGlobal() })

	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	d := dispatch.Default()
	if d == a.Engine() {
		t.Fatal("Default() still returns the closed agent engine")
	}
	if err := d.InstallWrapper("ns", "m", dispatch.Value(1), dispatch.PhaseNone); err != nil {
		t.Errorf("fresh default engine rejected install: %v", err)
	}
}
