package bt

import (
	"strconv"

	"github.com/rendis/arbor/pkg/schema"
)

// ParallelNode ticks every child on each pass and resolves against a
// success threshold. Children are ticked sequentially, in declaration
// order, on the single ticking goroutine; "parallel" refers to the logical
// composition, not to concurrency.
//
// With N children and threshold M: the node succeeds once M children have
// succeeded, fails once more than N-M children have failed (M successes are
// no longer reachable), and reports RUNNING otherwise. Children that already
// reached a terminal status are not re-ticked until the parallel itself
// resolves, at which point every child is reset.
type ParallelNode struct {
	controlNode
	threshold    int
	hasThreshold bool
}

// NewParallel creates an empty Parallel control. The success_threshold
// parameter sets M; when absent, every child must succeed.
func NewParallel(regID, name string, params map[string]string) (*ParallelNode, error) {
	n := &ParallelNode{controlNode: newControlNode(regID, name, params)}
	if raw, ok := params["success_threshold"]; ok {
		m, err := strconv.Atoi(raw)
		if err != nil || m < 1 {
			return nil, schema.NewErrorf(schema.ErrCodeBuild,
				"invalid success_threshold %q: must be a positive integer", raw).
				WithNode(n.Name())
		}
		n.threshold = m
		n.hasThreshold = true
	}
	return n, nil
}

// Tick advances every unresolved child and applies the threshold.
func (n *ParallelNode) Tick() schema.Status {
	total := len(n.children)
	m := total
	if n.hasThreshold && n.threshold < total {
		m = n.threshold
	}

	success, failure := 0, 0
	for _, child := range n.children {
		status := child.Status()
		if !status.IsTerminal() {
			status = child.Tick()
		}
		switch status {
		case schema.StatusSuccess:
			success++
		case schema.StatusFailure:
			failure++
		}
	}

	switch {
	case success >= m:
		n.haltChildren(0)
		return n.applyStatus(schema.StatusSuccess)
	case failure > total-m:
		n.haltChildren(0)
		return n.applyStatus(schema.StatusFailure)
	default:
		return n.applyStatus(schema.StatusRunning)
	}
}
