package bt

import (
	"sort"
	"sync"

	"github.com/rendis/arbor/pkg/schema"
)

// Constructor builds a node instance. name is the declared instance name and
// params are the construction-time parameters from the document.
type Constructor func(name string, params map[string]string) (Node, error)

// RegisteredNode describes one entry of a Registry, for tooling.
type RegisteredNode struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`
}

type registryEntry struct {
	kind Kind
	ctor Constructor
}

// Registry maps registration IDs to node constructors. A fresh registry
// ships with the built-in controls, decorators and utility leaves already
// registered; embedders add their domain actions and conditions on top.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registryEntry
}

// NewRegistry creates a registry pre-populated with the built-in node types.
func NewRegistry() *Registry {
	r := &Registry{entries: make(map[string]registryEntry)}
	registerBuiltins(r)
	return r
}

// Register adds a node constructor under the given ID. Returns an error on
// duplicate ID, so built-ins cannot be silently shadowed.
func (r *Registry) Register(id string, kind Kind, ctor Constructor) error {
	if id == "" {
		return schema.NewError(schema.ErrCodeValidation, "registration ID is empty")
	}
	if ctor == nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "constructor for %q is nil", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[id]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "node type %q already registered", id)
	}
	r.entries[id] = registryEntry{kind: kind, ctor: ctor}
	return nil
}

// RegisterAction registers a TickFunc as an action leaf type.
func (r *Registry) RegisterAction(id string, fn TickFunc) error {
	if fn == nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "tick func for %q is nil", id)
	}
	return r.Register(id, KindAction, func(name string, params map[string]string) (Node, error) {
		return NewAction(id, name, params, fn), nil
	})
}

// RegisterCondition registers a TickFunc as a condition leaf type. A
// RUNNING result from the func is coerced to FAILURE at tick time.
func (r *Registry) RegisterCondition(id string, fn TickFunc) error {
	if fn == nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "tick func for %q is nil", id)
	}
	return r.Register(id, KindCondition, func(name string, params map[string]string) (Node, error) {
		return NewCondition(id, name, params, fn), nil
	})
}

// Instantiate builds a fresh node of the given type. Unknown IDs report
// ErrCodeUnknownNode; the builder aborts the whole build on that.
func (r *Registry) Instantiate(id, name string, params map[string]string) (Node, error) {
	r.mu.RLock()
	entry, ok := r.entries[id]
	r.mu.RUnlock()

	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeUnknownNode, "node type %q not registered", id)
	}
	return entry.ctor(name, params)
}

// Has checks whether a node type is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[id]
	return ok
}

// Count returns the number of registered node types.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Describe lists the registered node types, sorted by ID.
func (r *Registry) Describe() []RegisteredNode {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RegisteredNode, 0, len(r.entries))
	for id, e := range r.entries {
		out = append(out, RegisteredNode{ID: id, Kind: e.kind})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func registerBuiltins(r *Registry) {
	// Controls.
	mustRegister(r, "Sequence", KindControl, func(name string, params map[string]string) (Node, error) {
		return NewSequence("Sequence", name, params), nil
	})
	mustRegister(r, "SequenceStar", KindControl, func(name string, params map[string]string) (Node, error) {
		return NewSequenceStar("SequenceStar", name, params), nil
	})
	mustRegister(r, "Fallback", KindControl, func(name string, params map[string]string) (Node, error) {
		return NewFallback("Fallback", name, params), nil
	})
	mustRegister(r, "FallbackStar", KindControl, func(name string, params map[string]string) (Node, error) {
		return NewFallbackStar("FallbackStar", name, params), nil
	})
	mustRegister(r, "Parallel", KindControl, func(name string, params map[string]string) (Node, error) {
		return NewParallel("Parallel", name, params)
	})

	// Decorators.
	mustRegister(r, "Inverter", KindDecorator, func(name string, params map[string]string) (Node, error) {
		return NewInverter("Inverter", name, params), nil
	})
	mustRegister(r, "ForceSuccess", KindDecorator, func(name string, params map[string]string) (Node, error) {
		return NewForceSuccess("ForceSuccess", name, params), nil
	})
	mustRegister(r, "ForceFailure", KindDecorator, func(name string, params map[string]string) (Node, error) {
		return NewForceFailure("ForceFailure", name, params), nil
	})
	mustRegister(r, "RetryUntilSuccessful", KindDecorator, func(name string, params map[string]string) (Node, error) {
		return NewRetry("RetryUntilSuccessful", name, params)
	})
	mustRegister(r, "Repeat", KindDecorator, func(name string, params map[string]string) (Node, error) {
		return NewRepeat("Repeat", name, params)
	})

	// Utility leaves.
	mustRegister(r, "AlwaysSuccess", KindAction, func(name string, params map[string]string) (Node, error) {
		return NewAction("AlwaysSuccess", name, params, func(Node) schema.Status {
			return schema.StatusSuccess
		}), nil
	})
	mustRegister(r, "AlwaysFailure", KindAction, func(name string, params map[string]string) (Node, error) {
		return NewAction("AlwaysFailure", name, params, func(Node) schema.Status {
			return schema.StatusFailure
		}), nil
	})
	mustRegister(r, "SetBlackboard", KindAction, newSetBlackboard)
	mustRegister(r, "CheckBlackboard", KindCondition, newCheckBlackboard)
	mustRegister(r, "Script", KindAction, newScriptAction)
	mustRegister(r, "ScriptCondition", KindCondition, newScriptCondition)
}

// mustRegister is for built-ins only: the registry starts empty, so a
// duplicate here is a programming error.
func mustRegister(r *Registry, id string, kind Kind, ctor Constructor) {
	if err := r.Register(id, kind, ctor); err != nil {
		panic(err)
	}
}

// newSetBlackboard builds the SetBlackboard leaf: writes the value parameter
// under the key parameter into the node's scope and succeeds.
func newSetBlackboard(name string, params map[string]string) (Node, error) {
	key, ok := params["key"]
	if !ok || key == "" {
		return nil, schema.NewError(schema.ErrCodeBuild, "SetBlackboard requires a key parameter").
			WithNode(name)
	}
	raw := params["value"]
	return NewAction("SetBlackboard", name, params, func(n Node) schema.Status {
		n.Blackboard().Set(key, schema.ValueFromString(raw))
		return schema.StatusSuccess
	}), nil
}

// newCheckBlackboard builds the CheckBlackboard leaf: succeeds when the key
// parameter is visible from the node's scope and, if a value parameter was
// given, matches it.
func newCheckBlackboard(name string, params map[string]string) (Node, error) {
	key, ok := params["key"]
	if !ok || key == "" {
		return nil, schema.NewError(schema.ErrCodeBuild, "CheckBlackboard requires a key parameter").
			WithNode(name)
	}
	raw, hasExpected := params["value"]
	return NewCondition("CheckBlackboard", name, params, func(n Node) schema.Status {
		got, found := n.Blackboard().Get(key)
		if !found {
			return schema.StatusFailure
		}
		if hasExpected && !got.Equal(schema.ValueFromString(raw)) {
			return schema.StatusFailure
		}
		return schema.StatusSuccess
	}), nil
}
