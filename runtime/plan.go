package runtime

import (
	"fmt"
	"strings"

	"github.com/juju/errors"

	"github.com/warriorguo/featureflow/types"
	"github.com/warriorguo/featureflow/utils"
)

const (
	PlanPath = "/plan/"
)

func joinPath(p utils.Path) string {
	return strings.Join(p, ".")
}

/**
 * childNames gives every child of a container a name unique among its
 * siblings. Unnamed containers are called after their kind and index;
 * repeated names get a "#index" suffix. The renderer relies on the same
 * names, so both go through this function.
 */
func childNames(children []types.Element) []string {
	names := make([]string, len(children))
	seen := make(map[string]bool, len(children))
	for i := range children {
		name := elementName(&children[i], i)
		if seen[name] {
			name = fmt.Sprintf("%s#%d", name, i)
		}
		seen[name] = true
		names[i] = name
	}
	return names
}

func elementName(e *types.Element, idx int) string {
	if e.Name != "" {
		return e.Name
	}
	if e.Kind == types.LeafElement && e.FeatureType != "" {
		t := strings.TrimPrefix(e.FeatureType, "*")
		if dot := strings.LastIndex(t, "."); dot >= 0 {
			t = t[dot+1:]
		}
		return t
	}
	return fmt.Sprintf("%s%d", e.Kind, idx)
}

// conditionNames names the decider and the branches of a condition element.
func conditionNames(e *types.Element) (string, string, string) {
	parts := []types.Element{e.Children[0], {}, {}}
	if e.True != nil {
		parts[1] = *e.True
	}
	if e.False != nil {
		parts[2] = *e.False
	}
	names := childNames(parts)
	return names[0], names[1], names[2]
}

// planBuilder turns an element tree into its runtime tree.
type planBuilder struct {
	leaves []*nodeRuntime
}

func buildRuntime(root *types.Element, rootName string) (runContext, []*nodeRuntime, error) {
	b := &planBuilder{}
	rc, err := b.build(root, utils.NewPath(rootName), 0)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	if len(b.leaves) == 1 {
		b.leaves[0].terminal = true
	}
	return rc, b.leaves, nil
}

func (b *planBuilder) build(e *types.Element, path utils.Path, depth int) (runContext, error) {
	if depth > maxDepth {
		return nil, types.NewConstructionErrorf(joinPath(path), "tree deeper than %d", maxDepth)
	}

	switch e.Kind {
	case types.LeafElement:
		return b.buildLeaf(e, path)

	case types.SequenceElement:
		children, err := b.buildChildren(e.Children, path, depth)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return newSequenceRuntime(path, children), nil

	case types.LockstepElement:
		if len(e.Children) == 0 {
			return nil, types.NewConstructionErrorf(joinPath(path), "lockstep group is empty")
		}
		children, err := b.buildChildren(e.Children, path, depth)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return newLockstepRuntime(path, children), nil

	case types.LoopElement:
		if e.FieldPath == "" {
			return nil, types.NewConstructionErrorf(joinPath(path), "loop has no field path")
		}
		children, err := b.buildChildren(e.Children, path, depth)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return newLoopRuntime(path, e.FieldPath, newSequenceRuntime(path, children)), nil

	case types.LoopWhileElement:
		if len(e.Children) == 0 {
			return nil, types.NewConstructionErrorf(joinPath(path), "loop-while body is empty")
		}
		if e.MaxIterations < 0 {
			return nil, types.NewConstructionErrorf(joinPath(path), "negative iteration cap %d", e.MaxIterations)
		}
		children, err := b.buildChildren(e.Children, path, depth)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return newLoopWhileRuntime(path, e.MaxIterations, newSequenceRuntime(path, children)), nil

	case types.ConditionElement:
		return b.buildCondition(e, path, depth)
	}
	return nil, types.NewConstructionErrorf(joinPath(path), "unknown element kind %v", e.Kind)
}

func (b *planBuilder) buildChildren(children []types.Element, path utils.Path, depth int) ([]runContext, error) {
	names := childNames(children)
	rcs := make([]runContext, 0, len(children))
	for i := range children {
		rc, err := b.build(&children[i], path.AddString(names[i]), depth+1)
		if err != nil {
			return nil, errors.Trace(err)
		}
		rcs = append(rcs, rc)
	}
	return rcs, nil
}

func (b *planBuilder) buildCondition(e *types.Element, path utils.Path, depth int) (runContext, error) {
	if len(e.Children) != 1 {
		return nil, types.NewConstructionErrorf(joinPath(path), "condition needs exactly one deciding element, got %d", len(e.Children))
	}
	ifName, thenName, elseName := conditionNames(e)

	decider, err := b.build(&e.Children[0], path.AddString(ifName), depth+1)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var onTrue, onFalse runContext
	if e.True != nil {
		if onTrue, err = b.build(e.True, path.AddString(thenName), depth+1); err != nil {
			return nil, errors.Trace(err)
		}
	}
	if e.False != nil {
		if onFalse, err = b.build(e.False, path.AddString(elseName), depth+1); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return newConditionRuntime(path, decider, onTrue, onFalse), nil
}

func (b *planBuilder) buildLeaf(e *types.Element, path utils.Path) (runContext, error) {
	name := joinPath(path)
	if e.Feature == nil {
		return nil, types.NewConstructionErrorf(name, "feature is nil")
	}
	caps := types.ResolveCapabilities(e.Feature)
	if caps.Empty() {
		return nil, types.NewConstructionErrorf(name, "%s has neither signal, data nor metadata callbacks", e.FeatureType)
	}

	needsResponse := caps.NeedsResponse || e.Response
	if needsResponse {
		if caps.SignalResponse == nil {
			return nil, types.NewConstructionErrorf(name, "needs a response but has no signal response callback")
		}
		if caps.Data == nil {
			return nil, types.NewConstructionErrorf(name, "needs a response but has no data callback to produce it")
		}
	}

	nr := newNodeRuntime(path[len(path)-1], path, caps)
	nr.needsResponse = needsResponse
	nr.critical = e.Critical
	b.leaves = append(b.leaves, nr)
	return nr, nil
}
