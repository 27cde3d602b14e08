package dispatch

import (
	"fmt"
	"strings"
)

// Phase identifies how an override participates relative to the original
// method body.
type Phase uint8

const (
	PhaseNone   Phase = iota // Replace the original call
	PhaseBefore              // Run ahead of the original body
	PhaseAfter               // Run once the original body has completed
)

var phaseNames = [...]string{
	PhaseNone:   "none",
	PhaseBefore: "before",
	PhaseAfter:  "after",
}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", uint8(p))
}

// Valid reports whether p is one of the three known phases.
func (p Phase) Valid() bool {
	return p <= PhaseAfter
}

// Persistent reports whether wrappers installed at this phase survive the
// calls that read them. Only after-phase wrappers are consumed.
func (p Phase) Persistent() bool {
	return p != PhaseAfter
}

// ParsePhase converts a phase name into a Phase. "replace" and the empty
// string are accepted as aliases for none.
func ParsePhase(s string) (Phase, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "replace":
		return PhaseNone, nil
	case "before":
		return PhaseBefore, nil
	case "after":
		return PhaseAfter, nil
	}
	return PhaseNone, fmt.Errorf("unknown phase %q", s)
}
