// Package diagram renders behavior trees as ASCII art, Mermaid flowcharts,
// Graphviz DOT text and PNG images. All renderers consume the same Model,
// a snapshot of the tree's shape and per-node statuses taken at build time.
package diagram

// Model is the renderer-independent view of one behavior tree.
type Model struct {
	Title string
	Root  *Node
}

// Node is a single tree node with its display label and captured status.
type Node struct {
	UID      uint16
	Label    string
	Kind     string // action, condition, control, decorator, subtree
	Status   string // idle, running, success, failure
	Children []*Node
}

// Walk visits the node and its descendants in depth-first preorder.
func (n *Node) Walk(visit func(*Node)) {
	visit(n)
	for _, child := range n.Children {
		child.Walk(visit)
	}
}

// Count returns the number of nodes in the subtree rooted at n.
func (n *Node) Count() int {
	count := 0
	n.Walk(func(*Node) { count++ })
	return count
}
