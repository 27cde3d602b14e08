package weavegen

import (
	"bytes"
	"errors"
	"fmt"
	"go/types"
	"os"
	"path/filepath"
	"sort"

	"github.com/chazu/hotpatch/dispatch"
	"github.com/dave/jennifer/jen"
)

const dispatchPath = "github.com/chazu/hotpatch/dispatch"

// ErrNoOverrides is returned by Generate for a package without directives.
var ErrNoOverrides = errors.New("no hotpatch directives found")

// Generate renders the registration file for model.
func Generate(model *PackageModel) (string, error) {
	if len(model.Owners) == 0 {
		return "", fmt.Errorf("%s: %w", model.ImportPath, ErrNoOverrides)
	}

	f := jen.NewFilePathName(model.ImportPath, model.Name)
	f.HeaderComment("Code generated by hotpatch-gen. DO NOT EDIT.")
	f.HeaderComment("//go:build !" + BuildTag)

	f.Func().Id("init").Params().Block(initBody(model)...)
	f.Line()

	for _, owner := range model.Owners {
		done := make(map[string]bool)
		for _, ov := range owner.Overrides {
			if done[ov.MethodName] {
				continue
			}
			done[ov.MethodName] = true
			adapter, err := adapterFunc(owner, ov)
			if err != nil {
				return "", fmt.Errorf("%s.%s: %w", owner.Name, ov.MethodName, err)
			}
			f.Add(adapter)
			f.Line()
		}
	}

	var buf bytes.Buffer
	if err := f.Render(&buf); err != nil {
		return "", fmt.Errorf("rendering %s: %w", model.ImportPath, err)
	}
	return buf.String(), nil
}

// WriteFile generates the registration file and writes it into the package
// directory. It returns the path written.
func WriteFile(model *PackageModel) (string, error) {
	if model.Dir == "" {
		return "", fmt.Errorf("%s: package directory unknown", model.ImportPath)
	}
	code, err := Generate(model)
	if err != nil {
		return "", err
	}
	path := filepath.Join(model.Dir, OutputFile)
	if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	log.Infof("wrote %s", path)
	return path, nil
}

type boundOverride struct {
	owner *OwnerModel
	ov    *OverrideModel
}

func initBody(model *PackageModel) []jen.Code {
	var body []jen.Code

	byNamespace := make(map[string][]boundOverride)
	for i := range model.Owners {
		owner := &model.Owners[i]
		body = append(body, jen.Qual(dispatchPath, "DefaultCatalog").Dot("MustRegisterOwner").Call(
			jen.Qual(dispatchPath, "OwnerType").Values(jen.Dict{
				jen.Id("Name"): jen.Lit(owner.RegisteredName),
				jen.Id("New"):  jen.Func().Params().Params(jen.Id("any"), jen.Error()).Block(constructor(owner)),
			}),
		))
		for j := range owner.Overrides {
			ov := &owner.Overrides[j]
			ns := ov.Directive.Namespace
			byNamespace[ns] = append(byNamespace[ns], boundOverride{owner, ov})
		}
	}

	namespaces := make([]string, 0, len(byNamespace))
	for ns := range byNamespace {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)

	for _, ns := range namespaces {
		bound := byNamespace[ns]
		sort.Slice(bound, func(i, j int) bool {
			return lessDirective(bound[i].ov.Directive, bound[j].ov.Directive)
		})
		args := []jen.Code{jen.Lit(ns)}
		for _, b := range bound {
			args = append(args, descriptor(b))
		}
		body = append(body, jen.Qual(dispatchPath, "DefaultCatalog").Dot("MustAdd").Custom(jen.Options{
			Open:      "(",
			Close:     ")",
			Separator: ",",
			Multi:     true,
		}, args...))
	}
	return body
}

func constructor(owner *OwnerModel) jen.Code {
	switch {
	case owner.Constructor == "":
		return jen.Return(jen.New(jen.Id(owner.Name)), jen.Nil())
	case owner.CtorReturnsErr:
		return jen.Return(jen.Id(owner.Constructor).Call())
	default:
		return jen.Return(jen.Id(owner.Constructor).Call(), jen.Nil())
	}
}

func descriptor(b boundOverride) jen.Code {
	d := jen.Dict{
		jen.Id("OwnerType"):  jen.Lit(b.owner.RegisteredName),
		jen.Id("MethodName"): jen.Lit(b.ov.MethodName),
		jen.Id("Key"): jen.Qual(dispatchPath, "MethodKey").Values(jen.Dict{
			jen.Id("Name"):  jen.Lit(b.ov.Directive.Method),
			jen.Id("Phase"): jen.Qual(dispatchPath, phaseIdent(b.ov.Directive.Phase)),
		}),
		jen.Id("Handle"): jen.Id(AdapterName(b.owner.Name, b.ov.MethodName)),
	}
	if params := b.ov.Params[1:]; len(params) > 0 {
		lits := make([]jen.Code, len(params))
		for i, p := range params {
			lits[i] = jen.Lit(p.TypeStr)
		}
		d[jen.Id("ParamTypes")] = jen.Index().String().Values(lits...)
	}
	return jen.Qual(dispatchPath, "MethodDescriptor").Values(d)
}

func phaseIdent(p dispatch.Phase) string {
	switch p {
	case dispatch.PhaseBefore:
		return "PhaseBefore"
	case dispatch.PhaseAfter:
		return "PhaseAfter"
	}
	return "PhaseNone"
}

// adapterFunc emits the MethodFunc that unpacks args and calls the override.
func adapterFunc(owner OwnerModel, ov OverrideModel) (jen.Code, error) {
	var body []jen.Code
	body = append(body,
		jen.List(jen.Id("o"), jen.Id("ok")).Op(":=").Id("owner").Assert(jen.Op("*").Id(owner.Name)),
		jen.If(jen.Op("!").Id("ok")).Block(
			jen.Return(jen.Nil(), jen.Qual("fmt", "Errorf").Call(
				jen.Lit("%w: %T"), jen.Qual(dispatchPath, "ErrNotDispatchTarget"), jen.Id("owner"))),
		),
	)

	callArgs := make([]jen.Code, len(ov.Params))
	for i, p := range ov.Params {
		tc, err := typeCode(p.GoType)
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}
		name := fmt.Sprintf("a%d", i)
		body = append(body,
			jen.List(jen.Id(name), jen.Err()).Op(":=").Qual(dispatchPath, "Arg").Types(tc).Call(jen.Id("args"), jen.Lit(i)),
			jen.If(jen.Err().Op("!=").Nil()).Block(jen.Return(jen.Nil(), jen.Err())),
		)
		arg := jen.Id(name)
		if ov.Variadic && i == len(ov.Params)-1 {
			arg = arg.Op("...")
		}
		callArgs[i] = arg
	}

	call := jen.Id("o").Dot(ov.MethodName).Call(callArgs...)
	switch {
	case len(ov.Results) == 0:
		body = append(body, call, jen.Return(jen.Nil(), jen.Nil()))
	case len(ov.Results) == 1 && ov.ReturnsErr:
		body = append(body, jen.Return(jen.Nil(), call))
	case len(ov.Results) == 1:
		body = append(body, jen.Return(call, jen.Nil()))
	default:
		body = append(body, jen.Return(call))
	}

	return jen.Func().Id(AdapterName(owner.Name, ov.MethodName)).Params(
		jen.Id("owner").Qual(dispatchPath, "Owner"),
		jen.Id("args").Index().Id("any"),
	).Params(jen.Id("any"), jen.Error()).Block(body...), nil
}

// typeCode renders a parameter type. Generic instantiations, channels,
// function types and non-empty interface or struct literals are rejected.
func typeCode(t types.Type) (*jen.Statement, error) {
	switch t := types.Unalias(t).(type) {
	case *types.Basic:
		if t.Kind() == types.UnsafePointer {
			return jen.Qual("unsafe", "Pointer"), nil
		}
		return jen.Id(t.Name()), nil
	case *types.Named:
		if t.TypeArgs().Len() > 0 {
			return nil, fmt.Errorf("generic type %s is not supported", t)
		}
		obj := t.Obj()
		if obj.Pkg() == nil {
			return jen.Id(obj.Name()), nil
		}
		return jen.Qual(obj.Pkg().Path(), obj.Name()), nil
	case *types.Pointer:
		elem, err := typeCode(t.Elem())
		if err != nil {
			return nil, err
		}
		return jen.Op("*").Add(elem), nil
	case *types.Slice:
		elem, err := typeCode(t.Elem())
		if err != nil {
			return nil, err
		}
		return jen.Index().Add(elem), nil
	case *types.Array:
		elem, err := typeCode(t.Elem())
		if err != nil {
			return nil, err
		}
		return jen.Index(jen.Lit(int(t.Len()))).Add(elem), nil
	case *types.Map:
		key, err := typeCode(t.Key())
		if err != nil {
			return nil, err
		}
		elem, err := typeCode(t.Elem())
		if err != nil {
			return nil, err
		}
		return jen.Map(key).Add(elem), nil
	case *types.Interface:
		if t.Empty() {
			return jen.Id("any"), nil
		}
	}
	return nil, fmt.Errorf("type %s is not supported", t)
}
