// Package patchwire defines the wire format for runtime patches: a
// canonical CBOR encoding shared by the control service, its client and the
// patch journal.
package patchwire

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"reflect"

	"github.com/chazu/hotpatch/dispatch"
	"github.com/fxamacker/cbor/v2"
)

// ErrNoValue indicates a patch that carries no encoded value. A value that
// encodes to CBOR null is a nil patch, not a missing one.
var ErrNoValue = errors.New("patch has no value")

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("patchwire: failed to create CBOR enc mode: %v", err))
	}
	encMode = em

	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("patchwire: failed to create CBOR dec mode: %v", err))
	}
	decMode = dm
}

// Patch is a value override for (Namespace, Method, Phase). Value holds the
// CBOR encoding of the value the call returns while the patch is installed.
type Patch struct {
	Namespace string          `cbor:"1,keyasint"`
	Method    string          `cbor:"2,keyasint"`
	Phase     string          `cbor:"3,keyasint"` // "none", "before" or "after"
	Value     cbor.RawMessage `cbor:"4,keyasint"`
}

// PatchSet is an ordered collection of patches, used for export and import.
type PatchSet struct {
	Patches []Patch `cbor:"1,keyasint"`
}

// NewPatch encodes value canonically and builds a Patch.
func NewPatch(namespace, method string, phase dispatch.Phase, value any) (Patch, error) {
	raw, err := encMode.Marshal(value)
	if err != nil {
		return Patch{}, fmt.Errorf("patchwire: encode value for %s.%s: %w", namespace, method, err)
	}
	return Patch{
		Namespace: namespace,
		Method:    method,
		Phase:     phase.String(),
		Value:     raw,
	}, nil
}

// ParsedPhase returns the dispatch phase named by p.Phase.
func (p *Patch) ParsedPhase() (dispatch.Phase, error) {
	return dispatch.ParsePhase(p.Phase)
}

// Validate checks that the patch names a target and a known phase and
// carries a value.
func (p *Patch) Validate() error {
	if p.Namespace == "" {
		return dispatch.ErrEmptyNamespace
	}
	if p.Method == "" {
		return dispatch.ErrEmptyMethod
	}
	if _, err := p.ParsedPhase(); err != nil {
		return fmt.Errorf("%w: %v", dispatch.ErrInvalidPhase, err)
	}
	if len(p.Value) == 0 {
		return fmt.Errorf("%w: %s.%s", ErrNoValue, p.Namespace, p.Method)
	}
	return nil
}

// Decode decodes the patch value. Maps decode to map[string]any; positive
// integers decode to uint64 and negative ones to int64.
func (p *Patch) Decode() (any, error) {
	v, err := DecodeValue(p.Value)
	if err != nil {
		return nil, fmt.Errorf("patchwire: decode value for %s.%s: %w", p.Namespace, p.Method, err)
	}
	return v, nil
}

// Wrapper decodes the value into a dispatch.ValueWrapper.
func (p *Patch) Wrapper() (dispatch.Wrapper, error) {
	v, err := p.Decode()
	if err != nil {
		return nil, err
	}
	return dispatch.Value(v), nil
}

// Hash returns the SHA-256 of the patch's canonical encoding.
func (p *Patch) Hash() ([32]byte, error) {
	data, err := MarshalPatch(p)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(data), nil
}

func (p *Patch) String() string {
	return fmt.Sprintf("%s.%s (%s)", p.Namespace, p.Method, p.Phase)
}

// EncodeValue encodes v canonically.
func EncodeValue(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// DecodeValue decodes a value produced by EncodeValue.
func DecodeValue(data []byte) (any, error) {
	var v any
	if err := decMode.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// MarshalPatch serializes a Patch to CBOR bytes.
func MarshalPatch(p *Patch) ([]byte, error) {
	return encMode.Marshal(p)
}

// UnmarshalPatch deserializes a Patch from CBOR bytes.
func UnmarshalPatch(data []byte) (*Patch, error) {
	var p Patch
	if err := decMode.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("patchwire: unmarshal patch: %w", err)
	}
	return &p, nil
}

// MarshalPatchSet serializes a PatchSet to CBOR bytes.
func MarshalPatchSet(s *PatchSet) ([]byte, error) {
	return encMode.Marshal(s)
}

// UnmarshalPatchSet deserializes a PatchSet from CBOR bytes.
func UnmarshalPatchSet(data []byte) (*PatchSet, error) {
	var s PatchSet
	if err := decMode.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("patchwire: unmarshal patch set: %w", err)
	}
	return &s, nil
}
