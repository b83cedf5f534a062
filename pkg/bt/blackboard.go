package bt

import (
	"sort"
	"sync"

	"github.com/rendis/arbor/pkg/schema"
)

// Blackboard is a key/value scope shared by the nodes of one (sub)tree.
// Reads that miss locally fall through to the parent scope; writes always
// land in the local scope, so a subtree can read its parent's state but can
// never mutate it.
//
// Ticking is single-goroutine, but observers (status reporters, stream
// publishers) read blackboards from other goroutines, so access is guarded.
type Blackboard struct {
	mu     sync.RWMutex
	parent *Blackboard
	data   map[string]schema.Value
}

// NewBlackboard creates a scope chained to parent. A nil parent creates a
// root scope.
func NewBlackboard(parent *Blackboard) *Blackboard {
	return &Blackboard{
		parent: parent,
		data:   make(map[string]schema.Value),
	}
}

// Parent returns the enclosing scope, or nil for a root blackboard.
func (b *Blackboard) Parent() *Blackboard { return b.parent }

// Get looks the key up locally, then walks up the parent chain.
func (b *Blackboard) Get(key string) (schema.Value, bool) {
	b.mu.RLock()
	v, ok := b.data[key]
	b.mu.RUnlock()
	if ok {
		return v, true
	}
	if b.parent != nil {
		return b.parent.Get(key)
	}
	return schema.Value{}, false
}

// Has reports whether the key is visible from this scope.
func (b *Blackboard) Has(key string) bool {
	_, ok := b.Get(key)
	return ok
}

// Set writes the key into this scope only.
func (b *Blackboard) Set(key string, v schema.Value) {
	b.mu.Lock()
	b.data[key] = v
	b.mu.Unlock()
}

// Delete removes the key from this scope. Parent scopes are untouched, so a
// shadowed parent value becomes visible again.
func (b *Blackboard) Delete(key string) {
	b.mu.Lock()
	delete(b.data, key)
	b.mu.Unlock()
}

// Keys returns the keys stored in this scope, sorted. Inherited keys are not
// included.
func (b *Blackboard) Keys() []string {
	b.mu.RLock()
	keys := make([]string, 0, len(b.data))
	for k := range b.data {
		keys = append(keys, k)
	}
	b.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Len returns the number of keys stored in this scope.
func (b *Blackboard) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data)
}

// Snapshot flattens the scope chain into a plain map, with local values
// shadowing inherited ones. The result is a copy and safe to hand to
// scripting engines or serializers.
func (b *Blackboard) Snapshot() map[string]any {
	var out map[string]any
	if b.parent != nil {
		out = b.parent.Snapshot()
	} else {
		out = make(map[string]any)
	}
	b.mu.RLock()
	for k, v := range b.data {
		out[k] = v.Interface()
	}
	b.mu.RUnlock()
	return out
}
