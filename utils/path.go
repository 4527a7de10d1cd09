package utils

import "strings"

func NewPath(s ...string) Path {
	p := Path{}
	p = append(p, s...)
	return p
}

type Path []string

// AddString returns a new path; p itself is never extended in place so
// sibling paths built from the same parent do not share storage.
func (p *Path) AddString(s ...string) Path {
	np := make(Path, 0, len(*p)+len(s))
	np = append(np, *p...)
	return append(np, s...)
}

func (p Path) String() string {
	return strings.Join(p, ".")
}

func (p *Path) Export() []string {
	return *p
}
