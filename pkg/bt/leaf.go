package bt

import "github.com/rendis/arbor/pkg/schema"

// TickFunc is the behavior of a leaf node. It receives the node itself so it
// can reach its parameters and blackboard scope.
type TickFunc func(n Node) schema.Status

// ActionNode is a leaf that performs work. A long-running action returns
// StatusRunning and is re-ticked until it reaches a terminal status; keeping
// enough state to resume is the action's own concern (typically via the
// blackboard).
type ActionNode struct {
	BaseNode
	fn TickFunc
}

// NewAction creates a detached action leaf. Nodes built from a document get
// their UID and blackboard assigned by the builder.
func NewAction(regID, name string, params map[string]string, fn TickFunc) *ActionNode {
	return &ActionNode{
		BaseNode: newBaseNode(KindAction, regID, name, params),
		fn:       fn,
	}
}

// Tick runs the action behavior and records its status verbatim. The engine
// does not second-guess leaf results.
func (n *ActionNode) Tick() schema.Status {
	return n.applyStatus(n.fn(n))
}

// Halt resets the action to IDLE. An action that holds resume state in the
// blackboard should treat its next tick as a fresh evaluation.
func (n *ActionNode) Halt() {
	n.resetStatus()
}

// ConditionNode is a leaf that checks a predicate. Conditions must resolve
// instantly: the tick contract forbids them from returning RUNNING.
type ConditionNode struct {
	BaseNode
	fn         TickFunc
	violations int
}

// NewCondition creates a detached condition leaf.
func NewCondition(regID, name string, params map[string]string, fn TickFunc) *ConditionNode {
	return &ConditionNode{
		BaseNode: newBaseNode(KindCondition, regID, name, params),
		fn:       fn,
	}
}

// Tick runs the predicate. A RUNNING result is a contract violation: it is
// coerced to FAILURE and counted, so misbehaving conditions surface in
// statistics instead of wedging their parent control.
func (n *ConditionNode) Tick() schema.Status {
	status := n.fn(n)
	if status == schema.StatusRunning {
		n.violations++
		status = schema.StatusFailure
	}
	return n.applyStatus(status)
}

// Halt resets the condition to IDLE.
func (n *ConditionNode) Halt() {
	n.resetStatus()
}

// ContractViolations returns how many ticks returned RUNNING and were
// coerced to FAILURE.
func (n *ConditionNode) ContractViolations() int { return n.violations }
