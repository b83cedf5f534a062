package bt

import "github.com/rendis/arbor/pkg/schema"

// SubtreeNode stitches another tree definition into its parent at build
// time. The builder expands the referenced definition into the same flat
// node list and attaches its root as the sole child, so at tick time the
// node is a plain pass-through decorator.
//
// Each subtree instance owns a child blackboard scope: nodes below it read
// through to the parent scope on a miss, while their writes stay local.
type SubtreeNode struct {
	DecoratorNode
	ref   string
	scope *Blackboard
}

// NewSubtree creates a detached subtree reference. ref is the ID of the
// tree definition to expand.
func NewSubtree(ref, name string, params map[string]string) *SubtreeNode {
	n := &SubtreeNode{
		DecoratorNode: newDecoratorNode("SubTree", name, params),
		ref:           ref,
	}
	n.kind = KindSubtree
	return n
}

// Ref returns the ID of the referenced tree definition.
func (n *SubtreeNode) Ref() string { return n.ref }

// Scope returns the blackboard scope created for the expanded definition.
func (n *SubtreeNode) Scope() *Blackboard { return n.scope }

func (n *SubtreeNode) setScope(bb *Blackboard) { n.scope = bb }

// Tick forwards to the expanded root and mirrors its status.
func (n *SubtreeNode) Tick() schema.Status {
	return n.applyStatus(n.child.Tick())
}
