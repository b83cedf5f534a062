package bt

import (
	"strconv"

	"github.com/rendis/arbor/pkg/schema"
)

// DecoratorNode is the shared base of nodes that wrap exactly one child and
// reshape its status. Concrete decorators embed it and provide Tick.
type DecoratorNode struct {
	BaseNode
	child Node
}

func newDecoratorNode(regID, name string, params map[string]string) DecoratorNode {
	return DecoratorNode{BaseNode: newBaseNode(KindDecorator, regID, name, params)}
}

// SetChild attaches the wrapped child. A decorator holds exactly one.
func (d *DecoratorNode) SetChild(child Node) error {
	if child == nil {
		return schema.NewError(schema.ErrCodeContractViolation, "decorator child must not be nil").
			WithNode(d.name)
	}
	if d.child != nil {
		return schema.NewError(schema.ErrCodeContractViolation, "decorator already has a child").
			WithNode(d.name)
	}
	d.child = child
	return nil
}

// Child returns the wrapped node, or nil when detached.
func (d *DecoratorNode) Child() Node { return d.child }

// ChildNodes returns the wrapped node as a one-element list, for walkers.
func (d *DecoratorNode) ChildNodes() []Node {
	if d.child == nil {
		return nil
	}
	return []Node{d.child}
}

// Halt resets the decorator and its active child to IDLE.
func (d *DecoratorNode) Halt() {
	d.haltChild()
	d.resetStatus()
}

func (d *DecoratorNode) haltChild() {
	if d.child != nil && d.child.Status() != schema.StatusIdle {
		d.child.Halt()
	}
}

// --- Inverter ---

// InverterNode swaps SUCCESS and FAILURE; RUNNING passes through.
type InverterNode struct {
	DecoratorNode
}

// NewInverter creates a detached Inverter decorator.
func NewInverter(regID, name string, params map[string]string) *InverterNode {
	return &InverterNode{DecoratorNode: newDecoratorNode(regID, name, params)}
}

// Tick ticks the child and inverts its terminal status.
func (n *InverterNode) Tick() schema.Status {
	switch status := n.child.Tick(); status {
	case schema.StatusSuccess:
		return n.applyStatus(schema.StatusFailure)
	case schema.StatusFailure:
		return n.applyStatus(schema.StatusSuccess)
	default:
		return n.applyStatus(status)
	}
}

// --- ForceSuccess ---

// ForceSuccessNode reports SUCCESS for any terminal child status.
type ForceSuccessNode struct {
	DecoratorNode
}

// NewForceSuccess creates a detached ForceSuccess decorator.
func NewForceSuccess(regID, name string, params map[string]string) *ForceSuccessNode {
	return &ForceSuccessNode{DecoratorNode: newDecoratorNode(regID, name, params)}
}

// Tick ticks the child and coerces terminal results to SUCCESS.
func (n *ForceSuccessNode) Tick() schema.Status {
	if status := n.child.Tick(); !status.IsTerminal() {
		return n.applyStatus(status)
	}
	return n.applyStatus(schema.StatusSuccess)
}

// --- ForceFailure ---

// ForceFailureNode reports FAILURE for any terminal child status.
type ForceFailureNode struct {
	DecoratorNode
}

// NewForceFailure creates a detached ForceFailure decorator.
func NewForceFailure(regID, name string, params map[string]string) *ForceFailureNode {
	return &ForceFailureNode{DecoratorNode: newDecoratorNode(regID, name, params)}
}

// Tick ticks the child and coerces terminal results to FAILURE.
func (n *ForceFailureNode) Tick() schema.Status {
	if status := n.child.Tick(); !status.IsTerminal() {
		return n.applyStatus(status)
	}
	return n.applyStatus(schema.StatusFailure)
}

// --- RetryUntilSuccessful ---

// RetryNode re-runs a failing child up to num_attempts times, halting it
// between attempts so each retry is a fresh evaluation. It succeeds as soon
// as the child does and fails once the attempts are exhausted. The attempt
// counter survives RUNNING ticks and resets on any terminal outcome or Halt.
type RetryNode struct {
	DecoratorNode
	maxAttempts int
	attempts    int
}

// NewRetry creates a detached RetryUntilSuccessful decorator. The
// num_attempts parameter defaults to 1.
func NewRetry(regID, name string, params map[string]string) (*RetryNode, error) {
	n := &RetryNode{DecoratorNode: newDecoratorNode(regID, name, params), maxAttempts: 1}
	if raw, ok := params["num_attempts"]; ok {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return nil, schema.NewErrorf(schema.ErrCodeBuild,
				"invalid num_attempts %q: must be a positive integer", raw).
				WithNode(n.Name())
		}
		n.maxAttempts = v
	}
	return n, nil
}

// Tick retries the child synchronously until it succeeds, runs long or
// exhausts the attempt budget.
func (n *RetryNode) Tick() schema.Status {
	for n.attempts < n.maxAttempts {
		switch status := n.child.Tick(); status {
		case schema.StatusSuccess:
			n.attempts = 0
			return n.applyStatus(schema.StatusSuccess)
		case schema.StatusRunning:
			return n.applyStatus(schema.StatusRunning)
		case schema.StatusFailure:
			n.attempts++
			if n.attempts < n.maxAttempts {
				n.haltChild()
			}
		default:
			return n.applyStatus(status)
		}
	}
	n.attempts = 0
	return n.applyStatus(schema.StatusFailure)
}

// Halt resets the decorator, its child and the attempt counter.
func (n *RetryNode) Halt() {
	n.attempts = 0
	n.DecoratorNode.Halt()
}

// --- Repeat ---

// RepeatNode re-runs a succeeding child num_cycles times, halting it between
// cycles. It fails as soon as the child does and succeeds once every cycle
// completed. The cycle counter survives RUNNING ticks and resets on any
// terminal outcome or Halt.
type RepeatNode struct {
	DecoratorNode
	numCycles int
	cycles    int
}

// NewRepeat creates a detached Repeat decorator. The num_cycles parameter
// defaults to 1.
func NewRepeat(regID, name string, params map[string]string) (*RepeatNode, error) {
	n := &RepeatNode{DecoratorNode: newDecoratorNode(regID, name, params), numCycles: 1}
	if raw, ok := params["num_cycles"]; ok {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return nil, schema.NewErrorf(schema.ErrCodeBuild,
				"invalid num_cycles %q: must be a positive integer", raw).
				WithNode(n.Name())
		}
		n.numCycles = v
	}
	return n, nil
}

// Tick repeats the child synchronously until it fails, runs long or
// completes the cycle budget.
func (n *RepeatNode) Tick() schema.Status {
	for n.cycles < n.numCycles {
		switch status := n.child.Tick(); status {
		case schema.StatusSuccess:
			n.cycles++
			if n.cycles < n.numCycles {
				n.haltChild()
			}
		case schema.StatusRunning:
			return n.applyStatus(schema.StatusRunning)
		case schema.StatusFailure:
			n.cycles = 0
			return n.applyStatus(schema.StatusFailure)
		default:
			return n.applyStatus(status)
		}
	}
	n.cycles = 0
	return n.applyStatus(schema.StatusSuccess)
}

// Halt resets the decorator, its child and the cycle counter.
func (n *RepeatNode) Halt() {
	n.cycles = 0
	n.DecoratorNode.Halt()
}
