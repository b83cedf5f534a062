package diagram

import (
	"fmt"
	"strings"
)

// RenderMermaid renders the model as a Mermaid flowchart string. Node IDs
// are the build-order UIDs, so the output is stable across renders.
func RenderMermaid(model *Model) string {
	var b strings.Builder

	b.WriteString("graph TD\n")
	if model.Title != "" {
		b.WriteString(fmt.Sprintf("    %%%% %s\n", model.Title))
	}

	model.Root.Walk(func(n *Node) {
		b.WriteString(fmt.Sprintf("    %s\n", mermaidNodeDef(n)))
		for _, child := range n.Children {
			b.WriteString(fmt.Sprintf("    %s --> %s\n", mermaidID(n), mermaidID(child)))
		}
	})

	// Status class definitions.
	b.WriteString("\n")
	b.WriteString("    classDef success fill:#2d6a2d,stroke:#1a4a1a,color:#fff\n")
	b.WriteString("    classDef failure fill:#8b1a1a,stroke:#5c0e0e,color:#fff\n")
	b.WriteString("    classDef running fill:#1a5276,stroke:#0e3a52,color:#fff\n")

	model.Root.Walk(func(n *Node) {
		switch n.Status {
		case "success", "failure", "running":
			b.WriteString(fmt.Sprintf("    class %s %s\n", mermaidID(n), n.Status))
		}
	})

	return b.String()
}

// mermaidNodeDef returns a Mermaid node definition with a shape per kind:
// controls get subroutine boxes, conditions diamonds, decorators stadiums,
// subtrees parallelograms and actions plain boxes.
func mermaidNodeDef(n *Node) string {
	id := mermaidID(n)
	switch n.Kind {
	case "control":
		return fmt.Sprintf("%s[[%q]]", id, n.Label)
	case "condition":
		return fmt.Sprintf("%s{%q}", id, n.Label)
	case "decorator":
		return fmt.Sprintf("%s([%q])", id, n.Label)
	case "subtree":
		return fmt.Sprintf("%s[/%q/]", id, n.Label)
	default: // action
		return fmt.Sprintf("%s[%q]", id, n.Label)
	}
}

func mermaidID(n *Node) string {
	return fmt.Sprintf("n%d", n.UID)
}
