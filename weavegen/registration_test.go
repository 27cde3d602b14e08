package weavegen

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"sort"
	"testing"
	"time"

	"golang.org/x/tools/go/packages"

	"github.com/chazu/hotpatch/dispatch"
	"github.com/chazu/hotpatch/weavegen/internal/shop"
)

func TestGeneratedRegistration_Dispatch(t *testing.T) {
	e := dispatch.New(dispatch.WithCatalog(dispatch.DefaultCatalog), dispatch.WithName("shop"))
	defer e.Close()

	cart := &shop.Cart{Items: []int{2, 3, 4}}

	// (T, error) result
	res, err := e.Dispatch("shop.Cart", dispatch.PhaseNone, "total", cart, []any{4})
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if v, ok := res.Get(); !ok || v != 5 {
		t.Errorf("total = %v, want Handled(5)", res)
	}

	// Variadic parameter spread from a slice argument
	res, err = e.Dispatch("shop.Cart", dispatch.PhaseNone, "tags", cart, []any{[]string{"a", "b"}})
	if err != nil {
		t.Fatalf("tags: %v", err)
	}
	if tags, ok := res.Value().([]string); !ok || !slices.Equal(tags, []string{"a", "b"}) {
		t.Errorf("tags = %v, want Handled([a b])", res)
	}

	// No results: handled with a nil value, once per phase
	for _, phase := range []dispatch.Phase{dispatch.PhaseBefore, dispatch.PhaseAfter} {
		res, err = e.Dispatch("shop.Cart", phase, "checkout", cart, nil)
		if err != nil {
			t.Fatalf("checkout %s: %v", phase, err)
		}
		if v, ok := res.Get(); !ok || v != nil {
			t.Errorf("checkout %s = %v, want Handled(<nil>)", phase, res)
		}
	}
	if cart.Audited != 2 {
		t.Errorf("Audited = %d, want 2", cart.Audited)
	}
	if res, _ := e.Dispatch("shop.Cart", dispatch.PhaseNone, "checkout", cart, nil); res.IsHandled() {
		t.Error("checkout has no replace override")
	}

	// (error) result
	res, err = e.Dispatch("shop.Price", dispatch.PhaseNone, "expires", "sku-1", []any{time.Minute})
	if err != nil {
		t.Fatalf("expires: %v", err)
	}
	if v, ok := res.Get(); !ok || v != nil {
		t.Errorf("expires = %v, want Handled(<nil>)", res)
	}
}

func TestGeneratedRegistration_Errors(t *testing.T) {
	e := dispatch.New(dispatch.WithCatalog(dispatch.DefaultCatalog), dispatch.WithName("shop"))
	defer e.Close()
	cart := &shop.Cart{}

	tests := []struct {
		name      string
		namespace string
		method    string
		target    any
		args      []any
		want      error
		wantMsg   string
	}{
		{"missing argument", "shop.Cart", "total", cart, nil, dispatch.ErrArity, ""},
		{"extra argument", "shop.Cart", "total", cart, []any{1, 2}, dispatch.ErrArity, ""},
		{"wrong argument type", "shop.Cart", "total", cart, []any{"1"}, dispatch.ErrArgType, ""},
		{"wrong target type", "shop.Cart", "total", "cart", []any{1}, dispatch.ErrArgType, ""},
		{"error from override", "shop.Cart", "total", nil, []any{1}, nil, "nil cart"},
		{"error-only result", "shop.Price", "expires", nil, []any{-time.Second}, nil, "negative duration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.Dispatch(tt.namespace, dispatch.PhaseNone, tt.method, tt.target, tt.args)
			if res.IsHandled() {
				t.Errorf("failed call reported %v", res)
			}
			var ie *dispatch.InvocationError
			if !errors.As(err, &ie) {
				t.Fatalf("err = %v, want InvocationError", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if tt.wantMsg != "" && ie.Err.Error() != tt.wantMsg {
				t.Errorf("cause = %v, want %q", ie.Err, tt.wantMsg)
			}
		})
	}
}

func TestGenerate_TypeChecks(t *testing.T) {
	model, err := IntrospectPackage("./internal/shop")
	if err != nil {
		t.Fatalf("IntrospectPackage: %v", err)
	}
	code, err := Generate(model)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedTypes |
			packages.NeedSyntax | packages.NeedTypesInfo,
		Overlay: map[string][]byte{
			filepath.Join(model.Dir, OutputFile): []byte(code),
		},
	}
	pkgs, err := packages.Load(cfg, "./internal/shop")
	if err != nil {
		t.Fatalf("packages.Load: %v", err)
	}
	if len(pkgs) != 1 {
		t.Fatalf("loaded %d packages", len(pkgs))
	}
	for _, e := range pkgs[0].Errors {
		t.Errorf("generated code: %v", e)
	}
	if t.Failed() {
		t.Logf("generated code:\n%s", code)
	}
}

func TestCheckedInRegistrationIsCurrent(t *testing.T) {
	model, err := IntrospectPackage("./internal/shop")
	if err != nil {
		t.Fatalf("IntrospectPackage: %v", err)
	}
	code, err := Generate(model)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	checkedIn, err := os.ReadFile(filepath.Join(model.Dir, OutputFile))
	if err != nil {
		t.Fatal(err)
	}

	want := funcShapes(t, []byte(code))
	got := funcShapes(t, checkedIn)
	if len(got) != len(want) {
		t.Errorf("checked-in file has %d functions, generator emits %d", len(got), len(want))
	}
	for name, shape := range want {
		if !reflect.DeepEqual(got[name], shape) {
			t.Errorf("%s differs from generator output; run go generate ./weavegen/internal/shop", name)
		}
	}
}

// funcShapes maps each function in src to the sorted node kinds,
// identifiers and literals of its declaration. Layout and import aliases
// do not affect the result.
func funcShapes(t *testing.T, src []byte) map[string][]string {
	t.Helper()
	f, err := parser.ParseFile(token.NewFileSet(), OutputFile, src, 0)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	shapes := make(map[string][]string)
	for _, decl := range f.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if !ok {
			continue
		}
		var toks []string
		ast.Inspect(fd, func(n ast.Node) bool {
			switch n := n.(type) {
			case nil:
				return false
			case *ast.Ident:
				toks = append(toks, n.Name)
			case *ast.BasicLit:
				toks = append(toks, n.Value)
			default:
				toks = append(toks, fmt.Sprintf("%T", n))
			}
			return true
		})
		sort.Strings(toks)
		shapes[fd.Name.Name] = toks
	}
	return shapes
}
