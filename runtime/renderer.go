package runtime

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/warriorguo/featureflow/types"
	"github.com/warriorguo/featureflow/utils"
)

func renderDOT(root *types.Element, records map[string]*types.NodeTraceRecord) (string, error) {
	r := newTreeRenderer(records)
	return r.generateDOT(root)
}

func newTreeRenderer(records map[string]*types.NodeTraceRecord) *treeRenderer {
	if records == nil {
		records = make(map[string]*types.NodeTraceRecord)
	}
	return &treeRenderer{records: records, sb: &strings.Builder{}}
}

/**
 * treeRenderer draws a feature tree as a DOT digraph. Containers become
 * clusters, leaves become records, the deciding leaf of a condition a
 * diamond. Node ids are the same dotted paths the trace records use, so
 * the nodes of a finished acquisition get colored by their records.
 */
type treeRenderer struct {
	records map[string]*types.NodeTraceRecord
	sb      *strings.Builder
}

func (d *treeRenderer) generateDOT(root *types.Element) (string, error) {
	name := root.Name
	if name == "" {
		name = "root"
	}
	d.write("digraph D {")
	d.write("compound=true")
	d.drawElement(root, name, utils.NewPath(name), false)
	d.write("}")
	return d.sb.String(), nil
}

func (d *treeRenderer) drawElement(e *types.Element, name string, path utils.Path, decider bool) {
	switch e.Kind {
	case types.LeafElement:
		d.drawNode(e, name, path, decider)

	case types.ConditionElement:
		d.drawCondition(e, name, path)

	default:
		d.write("subgraph cluster_%s {", idString(path.String()))
		d.write("style=%s", clusterStyle(e.Kind))
		d.write("color=lightgrey")
		d.write("label=%s", quoteString(clusterLabel(e, name)))

		names := childNames(e.Children)
		for i := range e.Children {
			d.drawElement(&e.Children[i], names[i], path.AddString(names[i]), false)
		}
		if e.Kind != types.LockstepElement {
			for i := 1; i < len(names); i++ {
				d.drawLinks(exitsOf(&e.Children[i-1], path.AddString(names[i-1])),
					entriesOf(&e.Children[i], path.AddString(names[i])), "")
			}
		}
		if (e.Kind == types.LoopElement || e.Kind == types.LoopWhileElement) && len(names) > 0 {
			last := len(names) - 1
			d.drawLinks(exitsOf(&e.Children[last], path.AddString(names[last])),
				entriesOf(&e.Children[0], path.AddString(names[0])), " [style=\"dashed\" constraint=false]")
		}
		d.write("}")
	}
}

func (d *treeRenderer) drawNode(e *types.Element, name string, path utils.Path, decider bool) {
	shape := "record"
	if decider {
		shape = "diamond"
	}
	label := name
	if e.Critical {
		label += " (critical)"
	}
	d.write("%s [label=%s shape=\"%s\"%s]", idString(path.String()), quoteString(label), shape, d.calcAttr(path.String()))
}

func (d *treeRenderer) drawCondition(e *types.Element, name string, path utils.Path) {
	if len(e.Children) != 1 {
		return
	}
	ifName, thenName, elseName := conditionNames(e)
	deciderPath := path.AddString(ifName)

	d.write("subgraph cluster_%s {", idString(path.String()))
	d.write("style=dotted")
	d.write("label=%s", quoteString(name))
	d.drawElement(&e.Children[0], ifName, deciderPath, e.Children[0].Kind == types.LeafElement)
	if e.True != nil {
		d.drawElement(e.True, thenName, path.AddString(thenName), false)
		d.drawLinks(exitsOf(&e.Children[0], deciderPath), entriesOf(e.True, path.AddString(thenName)), " [label=\"True\"]")
	}
	if e.False != nil {
		d.drawElement(e.False, elseName, path.AddString(elseName), false)
		d.drawLinks(exitsOf(&e.Children[0], deciderPath), entriesOf(e.False, path.AddString(elseName)), " [label=\"False\"]")
	}
	d.write("}")
}

func (d *treeRenderer) drawLinks(from, to []string, attr string) {
	for _, fv := range from {
		for _, tv := range to {
			d.write("%s -> %s%s", idString(fv), idString(tv), attr)
		}
	}
}

/**
 * calcAttr colors a leaf by its records: red when any phase failed,
 * yellow while a phase is still open, green otherwise.
 */
func (d *treeRenderer) calcAttr(path string) string {
	var found []*types.NodeTraceRecord
	for _, phase := range []types.Phase{types.InitPhase, types.SignalPhase, types.ResponsePhase, types.DataPhase, types.MetaPhase} {
		if record, exists := d.records[recordKey(path, phase)]; exists {
			found = append(found, record)
		}
	}
	if len(found) == 0 {
		return ""
	}

	color := "green"
	for _, record := range found {
		switch {
		case record.Error != "":
			color = "red"
		case record.EndTime.IsZero() && color != "red":
			color = "yellow"
		}
	}
	return fmt.Sprintf(" style=\"filled\" color=\"%s\" comment=\"%s\"", color, packToComment(found))
}

// entriesOf returns the leaf paths that fire first when e is entered.
func entriesOf(e *types.Element, path utils.Path) []string {
	switch e.Kind {
	case types.LeafElement:
		return []string{path.String()}

	case types.SequenceElement, types.LoopElement, types.LoopWhileElement:
		if len(e.Children) == 0 {
			return nil
		}
		names := childNames(e.Children)
		return entriesOf(&e.Children[0], path.AddString(names[0]))

	case types.LockstepElement:
		names := childNames(e.Children)
		var entries []string
		for i := range e.Children {
			entries = append(entries, entriesOf(&e.Children[i], path.AddString(names[i]))...)
		}
		return utils.UniqueSlice(entries)

	case types.ConditionElement:
		if len(e.Children) != 1 {
			return nil
		}
		ifName, _, _ := conditionNames(e)
		return entriesOf(&e.Children[0], path.AddString(ifName))
	}
	return nil
}

// exitsOf returns the leaf paths that can fire last before e completes.
func exitsOf(e *types.Element, path utils.Path) []string {
	switch e.Kind {
	case types.LeafElement:
		return []string{path.String()}

	case types.SequenceElement, types.LoopElement, types.LoopWhileElement:
		if len(e.Children) == 0 {
			return nil
		}
		names := childNames(e.Children)
		last := len(names) - 1
		return exitsOf(&e.Children[last], path.AddString(names[last]))

	case types.LockstepElement:
		names := childNames(e.Children)
		var exits []string
		for i := range e.Children {
			exits = append(exits, exitsOf(&e.Children[i], path.AddString(names[i]))...)
		}
		return utils.UniqueSlice(exits)

	case types.ConditionElement:
		if len(e.Children) != 1 {
			return nil
		}
		ifName, thenName, elseName := conditionNames(e)
		var exits []string
		if e.True == nil || e.False == nil {
			exits = append(exits, exitsOf(&e.Children[0], path.AddString(ifName))...)
		}
		if e.True != nil {
			exits = append(exits, exitsOf(e.True, path.AddString(thenName))...)
		}
		if e.False != nil {
			exits = append(exits, exitsOf(e.False, path.AddString(elseName))...)
		}
		return utils.UniqueSlice(exits)
	}
	return nil
}

func clusterStyle(kind types.ElementKind) string {
	if kind == types.LockstepElement {
		return "dashed"
	}
	return "filled"
}

func clusterLabel(e *types.Element, name string) string {
	switch e.Kind {
	case types.LoopElement:
		return fmt.Sprintf("%s: loop over %s", name, e.FieldPath)
	case types.LoopWhileElement:
		if e.MaxIterations > 0 {
			return fmt.Sprintf("%s: while true (max %d)", name, e.MaxIterations)
		}
		return fmt.Sprintf("%s: while true", name)
	case types.LockstepElement:
		return fmt.Sprintf("%s: lockstep", name)
	}
	return name
}

func packToComment(records []*types.NodeTraceRecord) string {
	sort.Slice(records, func(i, j int) bool { return records[i].Phase < records[j].Phase })
	s, _ := json.Marshal(records)
	return formatNL(addSlashes(string(s)))
}

func (d *treeRenderer) write(format string, s ...any) {
	d.sb.WriteString(fmt.Sprintf(format+"\n", s...))
}

var (
	slashesToken = []string{"\\", "\"", "'", " "}
)

func addSlashes(s string) string {
	for _, token := range slashesToken {
		s = strings.ReplaceAll(s, token, "\\"+token)
	}
	return s
}

func formatNL(s string) string {
	return strings.ReplaceAll(s, "\n", "\\n")
}

func quoteString(s string) string {
	return "\"" + strings.ReplaceAll(s, "\"", "\\\"") + "\""
}

var idleChars = []string{" ", "'", "\"", "(", ")", "*", "&", "^", "%", "$", "#", "@", "!", "?", "<", ">", "[", "]", "{", "}", ".", "-", ":"}

func idString(s string) string {
	for _, ch := range idleChars {
		s = strings.ReplaceAll(s, ch, "_")
	}
	return s
}
