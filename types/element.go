package types

import "fmt"

type ElementKind int

const (
	NoneElement      ElementKind = 0
	LeafElement      ElementKind = 1
	SequenceElement  ElementKind = 2
	LockstepElement  ElementKind = 3
	LoopElement      ElementKind = 4
	LoopWhileElement ElementKind = 5
	ConditionElement ElementKind = 6
)

func (k ElementKind) String() string {
	switch k {
	case LeafElement:
		return "node"
	case SequenceElement:
		return "sequence"
	case LockstepElement:
		return "lockstep"
	case LoopElement:
		return "loop"
	case LoopWhileElement:
		return "loop-while"
	case ConditionElement:
		return "condition"
	}
	return "none"
}

/**
 * Element is one vertex of a feature tree.
 *
 *	Sequence: children run one after another, each to completion.
 *	Lockstep: children share ticks; the group ends when all have ended.
 *	Loop:     children run as a sequence Count(FieldPath) times.
 *	LoopWhile: children run as a sequence while their verdict is true.
 *	Condition: Children[0] is the deciding leaf, True/False the branches.
 *
 * The tree is plain data so it can be stored and rendered; Feature is not
 * serialized.
 */
type Element struct {
	Kind ElementKind `json:",omitempty"`
	Name string      `json:",omitempty"`

	Feature     Feature `json:"-"`
	FeatureType string  `json:",omitempty"`
	Critical    bool    `json:",omitempty"`
	Response    bool    `json:",omitempty"`

	FieldPath     string `json:",omitempty"`
	MaxIterations int    `json:",omitempty"`

	Children []Element `json:",omitempty"`
	True     *Element  `json:",omitempty"`
	False    *Element  `json:",omitempty"`
}

type NodeOption func(*Element)

// Critical makes any failure of the node abort the acquisition.
func Critical() NodeOption {
	return func(e *Element) {
		e.Critical = true
	}
}

// WithResponse forces needs_response on a feature that does not declare it.
func WithResponse() NodeOption {
	return func(e *Element) {
		e.Response = true
	}
}

func Node(name string, feature Feature, options ...NodeOption) Element {
	e := Element{Kind: LeafElement, Name: name, Feature: feature}
	if feature != nil {
		e.FeatureType = fmt.Sprintf("%T", feature)
	}
	for _, opt := range options {
		opt(&e)
	}
	return e
}

func Sequence(children ...Element) Element {
	return Element{Kind: SequenceElement, Children: children}
}

func Lockstep(children ...Element) Element {
	return Element{Kind: LockstepElement, Children: children}
}

// Loop repeats children once per entry of (or the integer at) fieldPath.
func Loop(fieldPath string, children ...Element) Element {
	return Element{Kind: LoopElement, FieldPath: fieldPath, Children: children}
}

// LoopWhile repeats children while their verdict is true. maxIterations
// of zero means no cap.
func LoopWhile(maxIterations int, children ...Element) Element {
	return Element{Kind: LoopWhileElement, MaxIterations: maxIterations, Children: children}
}

// Condition runs node and then onTrue or onFalse by its verdict. Either
// branch may be the zero Element.
func Condition(node Element, onTrue, onFalse Element) Element {
	e := Element{Kind: ConditionElement, Children: []Element{node}}
	if onTrue.Kind != NoneElement {
		e.True = &onTrue
	}
	if onFalse.Kind != NoneElement {
		e.False = &onFalse
	}
	return e
}

// Named returns a copy of e with a display name.
func (e Element) Named(name string) Element {
	e.Name = name
	return e
}

// Walk visits e and its descendants depth first.
func (e *Element) Walk(visit func(e *Element) bool) {
	if !visit(e) {
		return
	}
	for i := range e.Children {
		e.Children[i].Walk(visit)
	}
	if e.True != nil {
		e.True.Walk(visit)
	}
	if e.False != nil {
		e.False.Walk(visit)
	}
}

// CountLeaves returns the number of leaf elements in the tree.
func (e *Element) CountLeaves() int {
	n := 0
	e.Walk(func(e *Element) bool {
		if e.Kind == LeafElement {
			n++
		}
		return true
	})
	return n
}
