package weavegen

import (
	"fmt"
	"strings"

	"github.com/chazu/hotpatch/dispatch"
)

// DirectivePrefix starts every generator directive.
const DirectivePrefix = "//hotpatch:"

// Directive binds a method to (namespace, method, phase) in the catalog.
//
//	//hotpatch:replace shop.Cart total
//	//hotpatch:before shop.Cart checkout
//	//hotpatch:after shop.Cart checkout
type Directive struct {
	Phase     dispatch.Phase
	Namespace string
	Method    string
}

func (d Directive) String() string {
	verb := d.Phase.String()
	if d.Phase == dispatch.PhaseNone {
		verb = "replace"
	}
	return DirectivePrefix + verb + " " + d.Namespace + " " + d.Method
}

// ParseDirective parses a single comment line. ok is false when the line is
// not a hotpatch directive at all; err is set when it is one but malformed.
func ParseDirective(line string) (d Directive, ok bool, err error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, DirectivePrefix) {
		return Directive{}, false, nil
	}
	fields := strings.Fields(strings.TrimPrefix(line, DirectivePrefix))
	if len(fields) == 0 {
		return Directive{}, true, fmt.Errorf("%s: missing verb", line)
	}

	switch fields[0] {
	case "replace":
		d.Phase = dispatch.PhaseNone
	case "before":
		d.Phase = dispatch.PhaseBefore
	case "after":
		d.Phase = dispatch.PhaseAfter
	default:
		return Directive{}, true, fmt.Errorf("%s: unknown verb %q", line, fields[0])
	}

	if len(fields) > 1 {
		d.Namespace = fields[1]
	}
	if len(fields) > 2 {
		d.Method = fields[2]
	}
	if d.Namespace == "" || d.Method == "" {
		return Directive{}, true, fmt.Errorf("%s: namespace=%q or method=%q can't be empty", line, d.Namespace, d.Method)
	}
	if len(fields) > 3 {
		return Directive{}, true, fmt.Errorf("%s: unexpected %q", line, strings.Join(fields[3:], " "))
	}
	return d, true, nil
}
