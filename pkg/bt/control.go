package bt

import "github.com/rendis/arbor/pkg/schema"

// controlNode is the shared base of composite nodes: an ordered child list
// plus the running-child cursor. The cursor is the index of the child
// currently in progress, so that re-ticking the control resumes at that
// child instead of re-ticking already-resolved siblings.
type controlNode struct {
	BaseNode
	children []Node
	cursor   int
}

func newControlNode(regID, name string, params map[string]string) controlNode {
	return controlNode{BaseNode: newBaseNode(KindControl, regID, name, params)}
}

// AddChild appends a child, preserving declaration order.
func (c *controlNode) AddChild(child Node) error {
	if child == nil {
		return schema.NewError(schema.ErrCodeContractViolation, "control child must not be nil").
			WithNode(c.name)
	}
	c.children = append(c.children, child)
	return nil
}

// ChildNodes returns the ordered children. The slice is shared; callers must
// not mutate it.
func (c *controlNode) ChildNodes() []Node { return c.children }

// Halt resets the control and every active child to IDLE and rewinds the
// cursor, so the next tick starts a clean pass.
func (c *controlNode) Halt() {
	c.haltChildren(0)
	c.cursor = 0
	c.resetStatus()
}

// haltChildren halts every non-IDLE child at index from onwards.
func (c *controlNode) haltChildren(from int) {
	for i := from; i < len(c.children); i++ {
		if c.children[i].Status() != schema.StatusIdle {
			c.children[i].Halt()
		}
	}
}

// --- Sequence ---

// SequenceNode ticks children in order and succeeds only when all of them
// succeed. The first FAILURE fails the whole sequence and rewinds the
// cursor, so the next pass starts again from the first child.
type SequenceNode struct {
	controlNode
}

// NewSequence creates an empty Sequence control.
func NewSequence(regID, name string, params map[string]string) *SequenceNode {
	return &SequenceNode{controlNode: newControlNode(regID, name, params)}
}

// Tick resumes at the cursor and advances while children succeed.
func (n *SequenceNode) Tick() schema.Status {
	for i := n.cursor; i < len(n.children); i++ {
		switch status := n.children[i].Tick(); status {
		case schema.StatusSuccess:
			continue
		case schema.StatusRunning:
			n.cursor = i
			return n.applyStatus(schema.StatusRunning)
		case schema.StatusFailure:
			n.haltChildren(i + 1)
			n.cursor = 0
			return n.applyStatus(schema.StatusFailure)
		default:
			return n.applyStatus(status)
		}
	}
	n.cursor = 0
	return n.applyStatus(schema.StatusSuccess)
}

// --- Fallback ---

// FallbackNode ticks children in order until one succeeds. The first
// SUCCESS succeeds the whole fallback; it fails only when every child
// failed. Either terminal outcome rewinds the cursor.
type FallbackNode struct {
	controlNode
}

// NewFallback creates an empty Fallback control.
func NewFallback(regID, name string, params map[string]string) *FallbackNode {
	return &FallbackNode{controlNode: newControlNode(regID, name, params)}
}

// Tick resumes at the cursor and advances while children fail.
func (n *FallbackNode) Tick() schema.Status {
	for i := n.cursor; i < len(n.children); i++ {
		switch status := n.children[i].Tick(); status {
		case schema.StatusFailure:
			continue
		case schema.StatusRunning:
			n.cursor = i
			return n.applyStatus(schema.StatusRunning)
		case schema.StatusSuccess:
			n.haltChildren(i + 1)
			n.cursor = 0
			return n.applyStatus(schema.StatusSuccess)
		default:
			return n.applyStatus(status)
		}
	}
	n.cursor = 0
	return n.applyStatus(schema.StatusFailure)
}

// --- SequenceStar ---

// SequenceStarNode is the memory variant of Sequence: a child that failed
// keeps the cursor, so the next pass retries that child directly instead of
// re-ticking the siblings that already succeeded. The cursor rewinds only
// when the whole sequence succeeds, or on Halt.
type SequenceStarNode struct {
	controlNode
}

// NewSequenceStar creates an empty SequenceStar control.
func NewSequenceStar(regID, name string, params map[string]string) *SequenceStarNode {
	return &SequenceStarNode{controlNode: newControlNode(regID, name, params)}
}

// Tick resumes at the cursor; on FAILURE the cursor stays on the failing
// child.
func (n *SequenceStarNode) Tick() schema.Status {
	for i := n.cursor; i < len(n.children); i++ {
		switch status := n.children[i].Tick(); status {
		case schema.StatusSuccess:
			n.cursor = i + 1
			continue
		case schema.StatusRunning:
			n.cursor = i
			return n.applyStatus(schema.StatusRunning)
		case schema.StatusFailure:
			n.haltChildren(i + 1)
			n.cursor = i
			return n.applyStatus(schema.StatusFailure)
		default:
			return n.applyStatus(status)
		}
	}
	n.cursor = 0
	return n.applyStatus(schema.StatusSuccess)
}

// --- FallbackStar ---

// FallbackStarNode is the memory variant of Fallback: a child that
// succeeded keeps the cursor, so the next pass retries that child directly
// instead of re-ticking the siblings that already failed. The cursor rewinds
// only when every child has failed, or on Halt.
type FallbackStarNode struct {
	controlNode
}

// NewFallbackStar creates an empty FallbackStar control.
func NewFallbackStar(regID, name string, params map[string]string) *FallbackStarNode {
	return &FallbackStarNode{controlNode: newControlNode(regID, name, params)}
}

// Tick resumes at the cursor; on SUCCESS the cursor stays on the succeeding
// child.
func (n *FallbackStarNode) Tick() schema.Status {
	for i := n.cursor; i < len(n.children); i++ {
		switch status := n.children[i].Tick(); status {
		case schema.StatusFailure:
			n.cursor = i + 1
			continue
		case schema.StatusRunning:
			n.cursor = i
			return n.applyStatus(schema.StatusRunning)
		case schema.StatusSuccess:
			n.haltChildren(i + 1)
			n.cursor = i
			return n.applyStatus(schema.StatusSuccess)
		default:
			return n.applyStatus(status)
		}
	}
	n.cursor = 0
	return n.applyStatus(schema.StatusFailure)
}
