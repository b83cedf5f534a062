package bt

import (
	"context"
	"time"

	"github.com/rendis/arbor/pkg/schema"
)

// Tree is an executable behavior tree: the root node plus the flat list of
// every node instantiated for it, in build order. The flat list is the
// canonical teardown and introspection surface; node UIDs index into it
// starting at 1.
type Tree struct {
	uid   string
	name  string
	root  Node
	nodes []Node
	bb    *Blackboard
}

// UID returns the unique identifier assigned to this tree instance.
func (t *Tree) UID() string { return t.uid }

// Name returns the ID of the definition the tree was built from.
func (t *Tree) Name() string { return t.name }

// Root returns the root node.
func (t *Tree) Root() Node { return t.root }

// Nodes returns every node in build order. The slice is shared; callers
// must not mutate it.
func (t *Tree) Nodes() []Node { return t.nodes }

// Node returns the node with the given UID, or nil.
func (t *Tree) Node(uid uint16) Node {
	if uid == 0 || int(uid) > len(t.nodes) {
		return nil
	}
	return t.nodes[uid-1]
}

// Blackboard returns the root blackboard scope.
func (t *Tree) Blackboard() *Blackboard { return t.bb }

// Status returns the root's status, which is the status of the whole tree.
func (t *Tree) Status() schema.Status { return t.root.Status() }

// Tick propagates one tick from the root.
func (t *Tree) Tick() schema.Status { return t.root.Tick() }

// HaltAll forcibly resets every node to IDLE by walking the flat list,
// so even nodes a halted ancestor no longer reaches are reset.
func (t *Tree) HaltAll() {
	for _, n := range t.nodes {
		if n.Status() != schema.StatusIdle {
			n.Halt()
		}
	}
}

// TickWhileRunning ticks the tree until it reaches a terminal status,
// sleeping interval between RUNNING passes. On context cancellation it
// halts the tree and returns the context error.
func (t *Tree) TickWhileRunning(ctx context.Context, interval time.Duration) (schema.Status, error) {
	for {
		status := t.Tick()
		if status != schema.StatusRunning {
			return status, nil
		}

		if interval <= 0 {
			if err := ctx.Err(); err != nil {
				t.HaltAll()
				return schema.StatusIdle, err
			}
			continue
		}

		select {
		case <-ctx.Done():
			t.HaltAll()
			return schema.StatusIdle, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// OnTransition subscribes fn to every node of the tree. Callbacks fire
// synchronously on the ticking goroutine.
func (t *Tree) OnTransition(fn TransitionFunc) {
	for _, n := range t.nodes {
		n.base().OnTransition(fn)
	}
}
