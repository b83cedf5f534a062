package diagram

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

// RenderImage renders the model as a PNG image using graphviz.
func RenderImage(model *Model) ([]byte, error) {
	ctx := context.Background()

	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("diagram: create graphviz: %w", err)
	}
	defer gv.Close()

	gv.SetLayout(graphviz.DOT)

	graph, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("diagram: create graph: %w", err)
	}
	defer graph.Close()

	graph.SetRankDir(cgraph.TBRank)
	if model.Title != "" {
		graph.SetLabel(model.Title)
	}

	if err := addNode(graph, model.Root, nil); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, graphviz.PNG, &buf); err != nil {
		return nil, fmt.Errorf("diagram: render PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// addNode creates the graphviz node for n, links it to its parent and
// recurses into the children.
func addNode(graph *cgraph.Graph, n *Node, parent *cgraph.Node) error {
	gvNode, err := graph.CreateNodeByName(fmt.Sprintf("n%d", n.UID))
	if err != nil {
		return fmt.Errorf("diagram: create node %s: %w", n.Label, err)
	}
	gvNode.SetLabel(n.Label)
	applyNodeStyle(gvNode, n)

	if parent != nil {
		if _, err := graph.CreateEdgeByName("", parent, gvNode); err != nil {
			return fmt.Errorf("diagram: create edge to %s: %w", n.Label, err)
		}
	}

	for _, child := range n.Children {
		if err := addNode(graph, child, gvNode); err != nil {
			return err
		}
	}
	return nil
}

// applyNodeStyle sets graphviz attributes based on node kind and status.
func applyNodeStyle(gvNode *cgraph.Node, n *Node) {
	switch n.Kind {
	case "condition":
		gvNode.SetShape(cgraph.DiamondShape)
	case "decorator":
		gvNode.SetShape(cgraph.EllipseShape)
	case "subtree":
		gvNode.SetShape(cgraph.HexagonShape)
	default: // control, action
		gvNode.SetShape(cgraph.BoxShape)
	}

	applyStatusColor(gvNode, n.Status)
}

// applyStatusColor sets fill color and style based on status. Idle nodes
// keep the default unfilled look.
func applyStatusColor(gvNode *cgraph.Node, status string) {
	switch status {
	case "success":
		gvNode.SetStyle(cgraph.FilledNodeStyle)
		gvNode.SetFillColor("#2d6a2d")
		gvNode.SetFontColor("white")
	case "failure":
		gvNode.SetStyle(cgraph.FilledNodeStyle)
		gvNode.SetFillColor("#8b1a1a")
		gvNode.SetFontColor("white")
	case "running":
		gvNode.SetStyle(cgraph.FilledNodeStyle)
		gvNode.SetFillColor("#1a5276")
		gvNode.SetFontColor("white")
	}
}
