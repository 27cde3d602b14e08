package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/hotpatch/dispatch"
	"github.com/chazu/hotpatch/patchstore"
	"github.com/chazu/hotpatch/patchwire"
	"github.com/chazu/hotpatch/server"
)

func runCtl(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--dir", t.TempDir()}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func newCtlServer(t *testing.T) (*dispatch.Engine, string) {
	t.Helper()
	e := dispatch.New(dispatch.WithCatalog(dispatch.NewCatalog()), dispatch.WithName("ctl"))
	ts := httptest.NewServer(server.New(e).Handler())
	t.Cleanup(func() {
		ts.Close()
		e.Close()
	})
	return e, ts.URL
}

func TestInstallListUninstall(t *testing.T) {
	e, url := newCtlServer(t)

	out, err := runCtl(t, "--addr", url, "install", "shop.Cart", "total", `{"amount": 5, "note": "x"}`)
	if err != nil {
		t.Fatalf("install: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Installed shop.Cart.total (none)") || !strings.Contains(out, "sha256:") {
		t.Errorf("install output:\n%s", out)
	}

	res, err := e.Dispatch("shop.Cart", dispatch.PhaseNone, "total", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	m, ok := res.Value().(map[string]any)
	if !ok || m["amount"] != uint64(5) || m["note"] != "x" {
		t.Errorf("Dispatch value = %#v", res.Value())
	}

	out, err = runCtl(t, "--addr", url, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "NAMESPACE") || !strings.Contains(out, `{"amount":5,"note":"x"}`) {
		t.Errorf("list output:\n%s", out)
	}

	if out, err := runCtl(t, "--addr", url, "uninstall", "shop.Cart", "total"); err != nil {
		t.Fatalf("uninstall: %v\n%s", err, out)
	}
	if e.Stats().Wrappers != 0 {
		t.Error("wrapper still installed")
	}

	if _, err := runCtl(t, "--addr", url, "uninstall", "shop.Cart", "total"); err == nil {
		t.Error("second uninstall should fail")
	}
}

func TestInstall_BadInput(t *testing.T) {
	_, url := newCtlServer(t)

	if _, err := runCtl(t, "--addr", url, "install", "ns", "m", "{not json"); err == nil {
		t.Error("expected JSON error")
	}
	if _, err := runCtl(t, "--addr", url, "install", "ns", "m", "1", "--phase", "sideways"); err == nil {
		t.Error("expected phase error")
	}
	if _, err := runCtl(t, "--addr", url, "install", "ns", "m"); err == nil {
		t.Error("expected args error")
	}
}

func TestStats(t *testing.T) {
	e, url := newCtlServer(t)
	if err := e.InstallWrapper("ns", "m", dispatch.Value(1), dispatch.PhaseBefore); err != nil {
		t.Fatal(err)
	}

	out, err := runCtl(t, "--addr", strings.TrimPrefix(url, "http://"), "stats")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !strings.Contains(out, "Engine:     ctl") || !strings.Contains(out, "Wrappers:   1") {
		t.Errorf("stats output:\n%s", out)
	}
}

func TestExportImport(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.db")
	dst := filepath.Join(dir, "dst.db")
	file := filepath.Join(dir, "patches.cbor")

	s, err := patchstore.Open(src)
	if err != nil {
		t.Fatal(err)
	}
	p, _ := patchwire.NewPatch("ns", "m", dispatch.PhaseNone, "v")
	if _, err := s.Save(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	s.Close()

	out, err := runCtl(t, "--store", src, "export", file)
	if err != nil || !strings.Contains(out, "Exported 1 patches") {
		t.Fatalf("export: %v\n%s", err, out)
	}
	out, err = runCtl(t, "--store", dst, "import", file)
	if err != nil || !strings.Contains(out, "Imported 1 patches") {
		t.Fatalf("import: %v\n%s", err, out)
	}

	d, err := patchstore.Open(dst)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	if _, err := d.Get(context.Background(), "ns", "m", dispatch.PhaseNone); err != nil {
		t.Errorf("imported patch missing: %v", err)
	}
}

func TestParseJSONValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"42", int64(42)},
		{"-1", int64(-1)},
		{"1.5", 1.5},
		{`"s"`, "s"},
		{"true", true},
		{"null", nil},
	}
	for _, tt := range tests {
		got, err := parseJSONValue(tt.in)
		if err != nil {
			t.Errorf("parseJSONValue(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseJSONValue(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}

	v, err := parseJSONValue(`[1, {"a": 2}]`)
	if err != nil {
		t.Fatal(err)
	}
	arr := v.([]any)
	if arr[0] != int64(1) || arr[1].(map[string]any)["a"] != int64(2) {
		t.Errorf("nested = %#v", v)
	}

	if _, err := parseJSONValue("1 2"); err == nil {
		t.Error("expected trailing data error")
	}
}
