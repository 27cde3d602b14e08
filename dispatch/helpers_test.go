package dispatch

import (
	"sync"
	"sync/atomic"
)

// clsOverride is the override holder used across the engine tests.
type clsOverride struct {
	mu    sync.Mutex
	calls [][]any
}

func (*clsOverride) DispatchTarget() {}

func (o *clsOverride) barImpl(target any, n int) int {
	o.mu.Lock()
	o.calls = append(o.calls, []any{target, n})
	o.mu.Unlock()
	return n * 2
}

func (o *clsOverride) recorded() [][]any {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([][]any(nil), o.calls...)
}

// notATarget lacks the DispatchTarget marker.
type notATarget struct{}

// closingOwner records Close calls.
type closingOwner struct {
	closed atomic.Int32
}

func (*closingOwner) DispatchTarget() {}

func (c *closingOwner) Close() error {
	c.closed.Add(1)
	return nil
}

// newTestCatalog registers ns.Cls with bar (replace) and baz (before),
// hosted by ns.Cls_Override. constructed counts constructor calls.
func newTestCatalog(constructed *atomic.Int32) *Catalog {
	cat := NewCatalog()
	cat.MustRegisterOwner(OwnerType{
		Name: "ns.Cls_Override",
		New: func() (any, error) {
			constructed.Add(1)
			return &clsOverride{}, nil
		},
	})
	cat.MustAdd("ns.Cls",
		MethodDescriptor{
			OwnerType:  "ns.Cls_Override",
			MethodName: "barImpl",
			Key:        MethodKey{Name: "bar", Phase: PhaseNone},
			ParamTypes: []string{"int"},
			Handle: func(owner Owner, args []any) (any, error) {
				n, err := Arg[int](args, 1)
				if err != nil {
					return nil, err
				}
				return owner.(*clsOverride).barImpl(args[0], n), nil
			},
		},
		MethodDescriptor{
			OwnerType:  "ns.Cls_Override",
			MethodName: "bazBefore",
			Key:        MethodKey{Name: "baz", Phase: PhaseBefore},
			Handle: func(owner Owner, args []any) (any, error) {
				return "before-baz", nil
			},
		},
	)
	return cat
}
