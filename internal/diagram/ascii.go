package diagram

import (
	"fmt"
	"strings"
)

// statusTag returns a short ASCII indicator for a node status. Idle nodes
// get no tag to keep never-ticked trees clean.
func statusTag(status string) string {
	switch status {
	case "success":
		return "[OK]"
	case "failure":
		return "[FAIL]"
	case "running":
		return "[RUN]"
	default:
		return ""
	}
}

// RenderASCII renders the model as an indented tree with box-drawing
// connectors:
//
//	=== Patrol ===
//
//	Sequence [RUN]
//	├── BatteryOK [OK]
//	├── approach (MoveTo) [RUN]
//	└── Recharge
//	    └── Fallback
func RenderASCII(model *Model) string {
	var b strings.Builder

	if model.Title != "" {
		b.WriteString(fmt.Sprintf("=== %s ===\n\n", model.Title))
	}
	writeNode(&b, model.Root, "", "")
	return b.String()
}

// writeNode writes one node line and recurses. lead prefixes this node's
// line, childLead prefixes the connector of every child line.
func writeNode(b *strings.Builder, n *Node, lead, childLead string) {
	b.WriteString(lead)
	b.WriteString(n.Label)
	if tag := statusTag(n.Status); tag != "" {
		b.WriteString(" " + tag)
	}
	b.WriteByte('\n')

	for i, child := range n.Children {
		last := i == len(n.Children)-1
		if last {
			writeNode(b, child, childLead+"└── ", childLead+"    ")
		} else {
			writeNode(b, child, childLead+"├── ", childLead+"│   ")
		}
	}
}
