package notarget

type Override struct{}

//hotpatch:replace ns.T m
func (Override) M(target any) int { return 1 }
