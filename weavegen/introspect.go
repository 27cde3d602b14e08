package weavegen

import (
	"fmt"
	"go/ast"
	"go/types"
	"path/filepath"
	"sort"

	"github.com/tliron/commonlog"
	"golang.org/x/tools/go/packages"
)

var log = commonlog.GetLogger("hotpatch.weavegen")

// BuildTag excludes previously generated files while introspecting, so a
// stale zz_hotpatch.go never prevents the package from type-checking.
const BuildTag = "hotpatchgen"

// IntrospectPackage loads the package matching pattern and collects every
// method carrying a //hotpatch: directive.
func IntrospectPackage(pattern string) (*PackageModel, error) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedTypes |
			packages.NeedSyntax | packages.NeedTypesInfo,
		BuildFlags: []string{"-tags=" + BuildTag},
	}

	pkgs, err := packages.Load(cfg, pattern)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", pattern, err)
	}
	if len(pkgs) == 0 {
		return nil, fmt.Errorf("no packages found for %s", pattern)
	}
	if len(pkgs) > 1 {
		return nil, fmt.Errorf("%s matches %d packages, want one", pattern, len(pkgs))
	}
	if len(pkgs[0].Errors) > 0 {
		return nil, fmt.Errorf("package errors: %v", pkgs[0].Errors)
	}

	pkg := pkgs[0]
	if pkg.Types == nil || pkg.TypesInfo == nil {
		return nil, fmt.Errorf("type information not available for %s", pattern)
	}

	model := &PackageModel{
		ImportPath: pkg.PkgPath,
		Name:       pkg.Name,
	}
	if len(pkg.GoFiles) > 0 {
		model.Dir = filepath.Dir(pkg.GoFiles[0])
	}

	owners := make(map[string]*OwnerModel)
	seen := make(map[Directive]string)

	for _, file := range pkg.Syntax {
		for _, decl := range file.Decls {
			fd, ok := decl.(*ast.FuncDecl)
			if !ok || fd.Doc == nil {
				continue
			}
			directives, err := directivesOf(fd.Doc)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", pkg.Fset.Position(fd.Pos()), err)
			}
			if len(directives) == 0 {
				continue
			}
			if fd.Recv == nil {
				return nil, fmt.Errorf("%s: directive on function %s; directives belong on methods of override types",
					pkg.Fset.Position(fd.Pos()), fd.Name.Name)
			}

			fn, ok := pkg.TypesInfo.Defs[fd.Name].(*types.Func)
			if !ok {
				return nil, fmt.Errorf("%s: no type information for %s", pkg.Fset.Position(fd.Pos()), fd.Name.Name)
			}
			named := receiverNamed(fn)
			if named == nil {
				return nil, fmt.Errorf("%s: cannot resolve receiver of %s", pkg.Fset.Position(fd.Pos()), fd.Name.Name)
			}

			owner := owners[named.Obj().Name()]
			if owner == nil {
				owner = &OwnerModel{
					Name:           named.Obj().Name(),
					RegisteredName: RegisteredOwnerName(pkg.PkgPath, named.Obj().Name()),
				}
				owners[owner.Name] = owner
			}

			for _, d := range directives {
				where := owner.Name + "." + fd.Name.Name
				if prev, dup := seen[d]; dup {
					return nil, fmt.Errorf("%s: duplicate define %s.%s (%s) on %s and %s",
						pkg.Fset.Position(fd.Pos()), d.Namespace, d.Method, d.Phase, prev, where)
				}
				seen[d] = where

				ov, err := overrideFromFunc(fn, d, pkg.Types)
				if err != nil {
					return nil, fmt.Errorf("%s: %s: %w", pkg.Fset.Position(fd.Pos()), where, err)
				}
				owner.Overrides = append(owner.Overrides, ov)
			}
		}
	}

	for _, owner := range owners {
		if err := checkOwner(owner, pkg.Types); err != nil {
			return nil, err
		}
		sort.Slice(owner.Overrides, func(i, j int) bool {
			return lessDirective(owner.Overrides[i].Directive, owner.Overrides[j].Directive)
		})
		model.Owners = append(model.Owners, *owner)
	}
	sort.Slice(model.Owners, func(i, j int) bool { return model.Owners[i].Name < model.Owners[j].Name })

	log.Debugf("introspected %s: %d owner types", model.ImportPath, len(model.Owners))
	return model, nil
}

func directivesOf(doc *ast.CommentGroup) ([]Directive, error) {
	var out []Directive
	for _, c := range doc.List {
		d, ok, err := ParseDirective(c.Text)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func receiverNamed(fn *types.Func) *types.Named {
	sig, ok := fn.Type().(*types.Signature)
	if !ok || sig.Recv() == nil {
		return nil
	}
	t := sig.Recv().Type()
	if p, ok := t.(*types.Pointer); ok {
		t = p.Elem()
	}
	named, _ := types.Unalias(t).(*types.Named)
	return named
}

func overrideFromFunc(fn *types.Func, d Directive, pkg *types.Package) (OverrideModel, error) {
	sig := fn.Type().(*types.Signature)
	ov := OverrideModel{
		Directive:  d,
		MethodName: fn.Name(),
		Variadic:   sig.Variadic(),
	}

	params := sig.Params()
	if params.Len() == 0 {
		return ov, fmt.Errorf("override must take the original receiver as its first parameter")
	}
	for i := 0; i < params.Len(); i++ {
		p := params.At(i)
		if _, err := typeCode(p.Type()); err != nil {
			return ov, fmt.Errorf("parameter %d: %w", i, err)
		}
		ov.Params = append(ov.Params, ParamModel{
			Name:    p.Name(),
			GoType:  p.Type(),
			TypeStr: types.TypeString(p.Type(), qualifier(pkg)),
		})
	}

	results := sig.Results()
	for i := 0; i < results.Len(); i++ {
		r := results.At(i)
		ov.Results = append(ov.Results, ParamModel{
			Name:    r.Name(),
			GoType:  r.Type(),
			TypeStr: types.TypeString(r.Type(), qualifier(pkg)),
		})
	}
	if results.Len() > 0 && isErrorType(results.At(results.Len()-1).Type()) {
		ov.ReturnsErr = true
	}

	switch {
	case results.Len() > 2:
		return ov, fmt.Errorf("override returns %d values; want at most (T, error)", results.Len())
	case results.Len() == 2 && !ov.ReturnsErr:
		return ov, fmt.Errorf("second result must be error")
	}
	return ov, nil
}

// checkOwner verifies the dispatch-target capability and looks for an
// optional New<Name> constructor.
func checkOwner(owner *OwnerModel, pkg *types.Package) error {
	obj := pkg.Scope().Lookup(owner.Name)
	tn, ok := obj.(*types.TypeName)
	if !ok {
		return fmt.Errorf("%s is not a type", owner.Name)
	}
	ptr := types.NewPointer(tn.Type())
	m, _, _ := types.LookupFieldOrMethod(ptr, true, pkg, "DispatchTarget")
	fn, ok := m.(*types.Func)
	if !ok || fn.Type().(*types.Signature).Params().Len() != 0 || fn.Type().(*types.Signature).Results().Len() != 0 {
		return fmt.Errorf("%s carries hotpatch directives but does not declare DispatchTarget()", owner.Name)
	}

	ctor, ok := pkg.Scope().Lookup(ConstructorName(owner.Name)).(*types.Func)
	if !ok {
		return nil
	}
	sig := ctor.Type().(*types.Signature)
	if sig.Params().Len() != 0 {
		return fmt.Errorf("%s must take no arguments", ctor.Name())
	}
	res := sig.Results()
	switch {
	case res.Len() == 1 && types.Identical(res.At(0).Type(), ptr):
	case res.Len() == 2 && types.Identical(res.At(0).Type(), ptr) && isErrorType(res.At(1).Type()):
		owner.CtorReturnsErr = true
	default:
		return fmt.Errorf("%s must return *%s or (*%s, error)", ctor.Name(), owner.Name, owner.Name)
	}
	owner.Constructor = ctor.Name()
	return nil
}

func isErrorType(t types.Type) bool {
	return types.Identical(t, types.Universe.Lookup("error").Type())
}

func qualifier(pkg *types.Package) types.Qualifier {
	return func(other *types.Package) string {
		if other == pkg {
			return ""
		}
		return other.Name()
	}
}

func lessDirective(a, b Directive) bool {
	if a.Namespace != b.Namespace {
		return a.Namespace < b.Namespace
	}
	if a.Method != b.Method {
		return a.Method < b.Method
	}
	return a.Phase < b.Phase
}
