// Package observer collects per-node execution statistics from a live tree
// and resolves nodes by hierarchical path. Paths are flat within a tree:
// only subtree boundaries add a "/" segment, and unnamed nodes get a
// "::uid" suffix so every default-named node stays addressable.
package observer

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rendis/arbor/pkg/bt"
	"github.com/rendis/arbor/pkg/schema"
)

// NodeStatistics accumulates what happened to a single node since the
// observer attached (or since the last Reset).
type NodeStatistics struct {
	TickCount       uint64        `json:"tick_count"`
	TransitionCount uint64        `json:"transition_count"`
	SuccessCount    uint64        `json:"success_count"`
	FailureCount    uint64        `json:"failure_count"`
	LastResult      schema.Status `json:"last_result"`
	CurrentStatus   schema.Status `json:"current_status"`
	LastTimestamp   time.Time     `json:"last_timestamp,omitempty"`
}

// TreeObserver subscribes to every node of one tree and keeps statistics
// per node UID. It is safe for concurrent use: ticks write from the
// execution goroutine while readers query from anywhere.
type TreeObserver struct {
	treeUID string

	mu    sync.RWMutex
	stats map[uint16]*NodeStatistics

	// path index, immutable after Attach
	uids  map[string][]uint16
	paths map[uint16]string
}

// Attach builds the path index for the tree and subscribes the observer
// to all of its nodes. Call it before the first tick so no transition is
// missed.
func Attach(tree *bt.Tree) *TreeObserver {
	o := &TreeObserver{
		treeUID: tree.UID(),
		stats:   make(map[uint16]*NodeStatistics, len(tree.Nodes())),
		uids:    make(map[string][]uint16, len(tree.Nodes())),
		paths:   make(map[uint16]string, len(tree.Nodes())),
	}
	for _, n := range tree.Nodes() {
		o.stats[n.UID()] = &NodeStatistics{
			LastResult:    schema.StatusIdle,
			CurrentStatus: n.Status(),
		}
	}
	if root := tree.Root(); root != nil {
		o.indexPaths(root, "")
	}
	tree.OnTransition(o.record)
	return o
}

// TreeUID returns the UID of the observed tree.
func (o *TreeObserver) TreeUID() string { return o.treeUID }

// Statistics returns a copy of the statistics for a node UID.
func (o *TreeObserver) Statistics(uid uint16) (NodeStatistics, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	s, ok := o.stats[uid]
	if !ok {
		return NodeStatistics{}, false
	}
	return *s, true
}

// UID resolves a node path to its UID. Unknown paths report
// ErrCodeNotFound; paths shared by several nodes report ErrCodeConflict.
func (o *TreeObserver) UID(path string) (uint16, error) {
	uids, ok := o.uids[path]
	if !ok {
		return 0, schema.NewErrorf(schema.ErrCodeNotFound, "no node with path %q", path)
	}
	if len(uids) > 1 {
		return 0, schema.NewErrorf(schema.ErrCodeConflict,
			"path %q matches %d nodes", path, len(uids))
	}
	return uids[0], nil
}

// StatisticsByPath resolves a path and returns the node's statistics.
func (o *TreeObserver) StatisticsByPath(path string) (NodeStatistics, error) {
	uid, err := o.UID(path)
	if err != nil {
		return NodeStatistics{}, err
	}
	s, _ := o.Statistics(uid)
	return s, nil
}

// Path returns the hierarchical path of a node UID, or "".
func (o *TreeObserver) Path(uid uint16) string { return o.paths[uid] }

// Paths lists every indexed node path, sorted.
func (o *TreeObserver) Paths() []string {
	out := make([]string, 0, len(o.uids))
	for p := range o.uids {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Snapshot returns a copy of all statistics keyed by node UID.
func (o *TreeObserver) Snapshot() map[uint16]NodeStatistics {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make(map[uint16]NodeStatistics, len(o.stats))
	for uid, s := range o.stats {
		out[uid] = *s
	}
	return out
}

// Reset zeroes all statistics while keeping the path index.
func (o *TreeObserver) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()

	for uid := range o.stats {
		o.stats[uid] = &NodeStatistics{
			LastResult:    schema.StatusIdle,
			CurrentStatus: schema.StatusIdle,
		}
	}
}

// record is the transition callback. It runs on the ticking goroutine.
func (o *TreeObserver) record(tr bt.Transition) {
	o.mu.Lock()
	defer o.mu.Unlock()

	s, ok := o.stats[tr.NodeUID]
	if !ok {
		s = &NodeStatistics{LastResult: schema.StatusIdle}
		o.stats[tr.NodeUID] = s
	}

	if tr.Cause == bt.CauseTick {
		s.TickCount++
		switch tr.Status {
		case schema.StatusSuccess:
			s.SuccessCount++
			s.LastResult = tr.Status
		case schema.StatusFailure:
			s.FailureCount++
			s.LastResult = tr.Status
		}
	}
	if tr.Prev != tr.Status {
		s.TransitionCount++
	}
	s.CurrentStatus = tr.Status
	s.LastTimestamp = tr.Timestamp
}

// indexPaths walks the tree assigning a path to every reachable node.
// Children of controls and decorators stay in their parent's scope;
// descending into a subtree appends the subtree's segment.
func (o *TreeObserver) indexPaths(n bt.Node, prefix string) {
	seg := n.Name()
	if seg == n.RegistrationID() {
		seg = fmt.Sprintf("%s::%d", seg, n.UID())
	}
	path := prefix + seg
	o.uids[path] = append(o.uids[path], n.UID())
	o.paths[n.UID()] = path

	childPrefix := prefix
	if n.Kind() == bt.KindSubtree {
		childPrefix = path + "/"
	}
	if lister, ok := n.(bt.ChildLister); ok {
		for _, c := range lister.ChildNodes() {
			o.indexPaths(c, childPrefix)
		}
	}
}
