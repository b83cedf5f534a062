// Package bt implements the behavior tree runtime: the node taxonomy, the
// tick/status contract, blackboard scopes, the node registry and the builder
// that turns declarative documents into executable trees.
package bt

import (
	"time"

	"github.com/rendis/arbor/pkg/schema"
)

// Kind classifies a node within the taxonomy.
type Kind string

const (
	KindAction    Kind = "action"
	KindCondition Kind = "condition"
	KindControl   Kind = "control"
	KindDecorator Kind = "decorator"
	KindSubtree   Kind = "subtree"
)

// Node is a single executable unit of a behavior tree.
//
// Tick performs one unit of work and returns the resulting status. Ticking a
// RUNNING node resumes its in-progress work; ticking an IDLE or terminal node
// begins a fresh evaluation. Tick never returns an engine error: a node
// expresses failure through StatusFailure.
//
// Halt forcibly resets the node, and any active descendants, to IDLE. It must
// be safe to call at any time, including on nodes that are already IDLE.
//
// Concrete nodes embed BaseNode and are not safe for concurrent ticking; a
// tree is ticked from one goroutine at a time while Status, Params and
// Blackboard may be read from others.
type Node interface {
	Name() string
	RegistrationID() string
	UID() uint16
	Kind() Kind
	Status() schema.Status
	Params() map[string]string
	Blackboard() *Blackboard
	Tick() schema.Status
	Halt()

	base() *BaseNode
}

// ChildAdder is the capability of composite nodes that accept an ordered
// list of children. The builder probes for it when attaching children.
type ChildAdder interface {
	AddChild(child Node) error
}

// ChildSetter is the capability of nodes that wrap exactly one child. The
// builder probes for it after ChildAdder.
type ChildSetter interface {
	SetChild(child Node) error
}

// ChildLister is the capability of nodes whose children can be inspected.
// Walkers (observers, diagram renderers, status reporters) rely on it.
type ChildLister interface {
	ChildNodes() []Node
}

// TransitionCause distinguishes how a node arrived at a status.
type TransitionCause string

const (
	// CauseTick marks a status produced by a Tick call. Emitted on every
	// tick, even when the status did not change.
	CauseTick TransitionCause = "tick"
	// CauseHalt marks a reset to IDLE performed by Halt. Emitted only when
	// the node was not already IDLE.
	CauseHalt TransitionCause = "halt"
)

// Transition is one observed step of a node's status history.
type Transition struct {
	NodeUID   uint16
	NodeName  string
	NodeKind  Kind
	Prev      schema.Status
	Status    schema.Status
	Cause     TransitionCause
	Timestamp time.Time
}

// TransitionFunc receives node transitions. Callbacks run synchronously on
// the ticking goroutine and must not block.
type TransitionFunc func(Transition)

// BaseNode carries the state every node shares: identity, parameters, the
// blackboard handle and the current status. Concrete node types embed it;
// custom implementations outside this package must do the same to satisfy
// Node.
type BaseNode struct {
	name      string
	regID     string
	uid       uint16
	kind      Kind
	params    map[string]string
	bb        *Blackboard
	status    schema.Status
	callbacks []TransitionFunc
}

func newBaseNode(kind Kind, regID, name string, params map[string]string) BaseNode {
	if name == "" {
		name = regID
	}
	return BaseNode{
		name:   name,
		regID:  regID,
		kind:   kind,
		params: params,
		status: schema.StatusIdle,
	}
}

// Name returns the instance name the node was declared with.
func (b *BaseNode) Name() string { return b.name }

// RegistrationID returns the factory ID the node was instantiated from.
func (b *BaseNode) RegistrationID() string { return b.regID }

// UID returns the build-order identifier assigned by the builder, starting
// at 1. Zero means the node was never attached to a tree.
func (b *BaseNode) UID() uint16 { return b.uid }

// Kind returns the node's place in the taxonomy.
func (b *BaseNode) Kind() Kind { return b.kind }

// Status returns the status produced by the most recent Tick or Halt.
func (b *BaseNode) Status() schema.Status { return b.status }

// Params returns the construction-time parameters. The map is shared; the
// caller must not mutate it.
func (b *BaseNode) Params() map[string]string { return b.params }

// Param returns one construction-time parameter and whether it was declared.
func (b *BaseNode) Param(key string) (string, bool) {
	v, ok := b.params[key]
	return v, ok
}

// Blackboard returns the blackboard scope the node was built against, or nil
// for detached nodes.
func (b *BaseNode) Blackboard() *Blackboard { return b.bb }

// OnTransition registers a callback invoked after every tick of this node
// and after every effective halt.
func (b *BaseNode) OnTransition(fn TransitionFunc) {
	b.callbacks = append(b.callbacks, fn)
}

func (b *BaseNode) base() *BaseNode { return b }

func (b *BaseNode) setUID(uid uint16)            { b.uid = uid }
func (b *BaseNode) setBlackboard(bb *Blackboard) { b.bb = bb }

// applyStatus records the result of a tick and notifies subscribers.
func (b *BaseNode) applyStatus(s schema.Status) schema.Status {
	prev := b.status
	b.status = s
	b.notify(prev, s, CauseTick)
	return s
}

// resetStatus moves the node back to IDLE, notifying subscribers only when
// the node was not IDLE already.
func (b *BaseNode) resetStatus() {
	if b.status == schema.StatusIdle {
		return
	}
	prev := b.status
	b.status = schema.StatusIdle
	b.notify(prev, schema.StatusIdle, CauseHalt)
}

func (b *BaseNode) notify(prev, next schema.Status, cause TransitionCause) {
	if len(b.callbacks) == 0 {
		return
	}
	tr := Transition{
		NodeUID:   b.uid,
		NodeName:  b.name,
		NodeKind:  b.kind,
		Prev:      prev,
		Status:    next,
		Cause:     cause,
		Timestamp: time.Now(),
	}
	for _, fn := range b.callbacks {
		fn(tr)
	}
}
