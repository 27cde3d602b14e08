// hotpatch-gen reads //hotpatch: directives in a Go package and writes the
// file that registers its overrides with the dispatch catalog.
//
// Usage:
//
//	hotpatch-gen                  # package in the current directory
//	hotpatch-gen ./internal/shop  # another package
//	hotpatch-gen -n .             # print instead of writing
//
// It is meant to run from a go:generate line:
//
//	//go:generate go run github.com/chazu/hotpatch/cmd/hotpatch-gen
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/hotpatch/weavegen"
)

func main() {
	output := flag.String("o", "", "Output file (default: "+weavegen.OutputFile+" in the package directory)")
	verbose := flag.Bool("v", false, "Verbose output")
	dryRun := flag.Bool("n", false, "Print the generated code instead of writing it")
	flag.Parse()

	verbosity := 0
	if *verbose {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	patterns := flag.Args()
	if len(patterns) == 0 {
		patterns = []string{"."}
	}
	if *output != "" && len(patterns) > 1 {
		fmt.Fprintln(os.Stderr, "Error: -o needs exactly one package")
		os.Exit(2)
	}

	failed := false
	for _, pattern := range patterns {
		if err := run(pattern, *output, *dryRun, *verbose); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func run(pattern, output string, dryRun, verbose bool) error {
	model, err := weavegen.IntrospectPackage(pattern)
	if err != nil {
		return err
	}

	if verbose {
		for _, owner := range model.Owners {
			fmt.Printf("%s: %d overrides\n", owner.RegisteredName, len(owner.Overrides))
			for _, ov := range owner.Overrides {
				fmt.Printf("  %s -> %s\n", ov.Directive, ov.MethodName)
			}
		}
	}

	switch {
	case dryRun:
		code, err := weavegen.Generate(model)
		if err != nil {
			return err
		}
		fmt.Print(code)
		return nil

	case output != "":
		code, err := weavegen.Generate(model)
		if err != nil {
			return err
		}
		if err := os.WriteFile(output, []byte(code), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", output, err)
		}
		fmt.Printf("Generated %s\n", output)
		return nil
	}

	path, err := weavegen.WriteFile(model)
	if errors.Is(err, weavegen.ErrNoOverrides) {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("Generated %s\n", path)
	return nil
}
