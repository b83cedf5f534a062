package diagram

import (
	"fmt"
	"strings"
)

// RenderDOT renders the model as Graphviz DOT text, for callers that feed
// an external graphviz toolchain instead of the embedded PNG renderer.
func RenderDOT(model *Model) string {
	var b strings.Builder

	b.WriteString("digraph behaviortree {\n")
	b.WriteString("    rankdir=TB;\n")
	b.WriteString("    node [fontname=\"Helvetica\"];\n")
	if model.Title != "" {
		b.WriteString(fmt.Sprintf("    label=%q;\n", model.Title))
		b.WriteString("    labelloc=t;\n")
	}

	model.Root.Walk(func(n *Node) {
		b.WriteString(fmt.Sprintf("    n%d [label=%q shape=%s%s];\n",
			n.UID, n.Label, dotShape(n.Kind), dotStatusAttrs(n.Status)))
		for _, child := range n.Children {
			b.WriteString(fmt.Sprintf("    n%d -> n%d;\n", n.UID, child.UID))
		}
	})

	b.WriteString("}\n")
	return b.String()
}

func dotShape(kind string) string {
	switch kind {
	case "condition":
		return "diamond"
	case "decorator":
		return "ellipse"
	case "subtree":
		return "hexagon"
	default: // control, action
		return "box"
	}
}

func dotStatusAttrs(status string) string {
	switch status {
	case "success":
		return ` style=filled fillcolor="#2d6a2d" fontcolor=white`
	case "failure":
		return ` style=filled fillcolor="#8b1a1a" fontcolor=white`
	case "running":
		return ` style=filled fillcolor="#1a5276" fontcolor=white`
	default:
		return ""
	}
}
