package onfunc

//hotpatch:replace ns.T m
func Free(target any) {}
