package dupe

type A struct{}

func (*A) DispatchTarget() {}

//hotpatch:replace ns.T m
func (*A) One(target any) {}

//hotpatch:replace ns.T m
func (*A) Two(target any) {}
