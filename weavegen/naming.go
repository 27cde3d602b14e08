package weavegen

import (
	"strings"
	"unicode"
)

// OutputFile is the name of the generated file inside the package directory.
const OutputFile = "zz_hotpatch.go"

// RegisteredOwnerName is the catalog name of an owner type,
// e.g. "example.com/shop/patches.CartOverride".
func RegisteredOwnerName(importPath, typeName string) string {
	return importPath + "." + typeName
}

// ConstructorName is the optional constructor the generator looks for,
// e.g. "NewCartOverride".
func ConstructorName(typeName string) string {
	return "New" + toPascal(typeName)
}

// AdapterName is the generated MethodFunc for one override method,
// e.g. owner "cartOverride", method "Total" → "hotpatchCartOverrideTotal".
func AdapterName(owner, method string) string {
	return "hotpatch" + toPascal(owner) + toPascal(method)
}

// toPascal converts a string to PascalCase.
// Handles hyphenated and underscore-separated names.
func toPascal(s string) string {
	if len(s) == 0 {
		return s
	}

	var b strings.Builder
	nextUpper := true
	for _, r := range s {
		if r == '-' || r == '_' {
			nextUpper = true
			continue
		}
		if nextUpper {
			b.WriteRune(unicode.ToUpper(r))
			nextUpper = false
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
