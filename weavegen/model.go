// Package weavegen finds //hotpatch: directives on override methods and
// generates the registration code the dispatch engine loads at runtime.
package weavegen

import (
	"go/types"

	"github.com/chazu/hotpatch/dispatch"
)

// PackageModel is everything the generator needs to know about one package.
type PackageModel struct {
	ImportPath string
	Name       string // short package name
	Dir        string // directory holding the package sources
	Owners     []OwnerModel
}

// OwnerModel is a named type carrying at least one directive.
type OwnerModel struct {
	Name           string // Go type name
	RegisteredName string // import path qualified name used in the catalog
	Constructor    string // optional New<Name> function; empty means new(Name)
	CtorReturnsErr bool
	Overrides      []OverrideModel
}

// OverrideModel is one directive attached to one method.
type OverrideModel struct {
	Directive  Directive
	MethodName string
	Params     []ParamModel // Params[0] receives the original call's receiver
	Results    []ParamModel
	ReturnsErr bool // true if last result is error
	Variadic   bool
}

// Key returns the catalog key of the override.
func (o *OverrideModel) Key() dispatch.MethodKey {
	return dispatch.MethodKey{Name: o.Directive.Method, Phase: o.Directive.Phase}
}

// ParamModel represents a parameter or result.
type ParamModel struct {
	Name    string
	GoType  types.Type
	TypeStr string // package-relative type string, e.g. "int", "*shop.Cart"
}
