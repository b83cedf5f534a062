package diagram

import (
	"fmt"

	"github.com/rendis/arbor/pkg/bt"
	"github.com/rendis/arbor/pkg/schema"
)

// Build captures the tree's shape and current node statuses into a Model.
// The model is a snapshot; later ticks do not change it.
func Build(tree *bt.Tree) (*Model, error) {
	if tree == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "tree is nil")
	}
	return &Model{
		Title: tree.Name(),
		Root:  buildNode(tree.Root()),
	}, nil
}

func buildNode(n bt.Node) *Node {
	node := &Node{
		UID:    n.UID(),
		Label:  nodeLabel(n),
		Kind:   string(n.Kind()),
		Status: string(n.Status()),
	}
	if lister, ok := n.(bt.ChildLister); ok {
		for _, child := range lister.ChildNodes() {
			node.Children = append(node.Children, buildNode(child))
		}
	}
	return node
}

// nodeLabel pairs the instance name with the registration ID when they
// differ, e.g. "approach (MoveTo)". Subtree nodes show only the instance
// name since their registration ID is always SubTree.
func nodeLabel(n bt.Node) string {
	if n.Kind() == bt.KindSubtree || n.Name() == n.RegistrationID() {
		return n.Name()
	}
	return fmt.Sprintf("%s (%s)", n.Name(), n.RegistrationID())
}
