package e2e

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/arbor/internal/jsondoc"
	"github.com/rendis/arbor/internal/runner"
	"github.com/rendis/arbor/internal/store"
	"github.com/rendis/arbor/internal/streaming"
	"github.com/rendis/arbor/internal/xmldoc"
	"github.com/rendis/arbor/pkg/bt"
	"github.com/rendis/arbor/pkg/schema"
)

// --- Test harness ---

// harness wires the full pipeline against a real libSQL store: parser,
// registry, builder, runner, transition log and event hub.
type harness struct {
	t        *testing.T
	store    *store.LibSQLStore
	translog *store.TransitionLog
	hub      *streaming.MemoryHub
	registry *bt.Registry
	builder  *bt.Builder
	runner   *runner.Runner
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "e2e.db")
	s, err := store.NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))

	hub := streaming.NewMemoryHub()
	reg := bt.NewRegistry()
	run := runner.New(runner.Deps{
		Store:        s,
		Hub:          hub,
		Logger:       quietLogger(),
		TickInterval: time.Millisecond,
	})
	t.Cleanup(func() {
		run.Close()
		_ = s.Close()
	})

	return &harness{
		t:        t,
		store:    s,
		translog: store.NewTransitionLog(s),
		hub:      hub,
		registry: reg,
		builder:  bt.NewBuilder(reg),
		runner:   run,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// buildXML parses and builds a document without handing it to the runner.
func (h *harness) buildXML(text string) *bt.Tree {
	h.t.Helper()
	doc, err := xmldoc.Parse([]byte(text))
	require.NoError(h.t, err)
	tree, err := h.builder.Build(doc)
	require.NoError(h.t, err)
	return tree
}

// loadXML builds the document and registers the tree for on-demand runs.
func (h *harness) loadXML(text string) *bt.Tree {
	h.t.Helper()
	tree := h.buildXML(text)
	require.NoError(h.t, h.runner.Add(context.Background(), tree, "inline"))
	return tree
}

// loadJSON is loadXML for the JSON document format.
func (h *harness) loadJSON(text string) *bt.Tree {
	h.t.Helper()
	parser, err := jsondoc.NewParser()
	require.NoError(h.t, err)
	doc, err := parser.Parse([]byte(text))
	require.NoError(h.t, err)
	tree, err := h.builder.Build(doc)
	require.NoError(h.t, err)
	require.NoError(h.t, h.runner.Add(context.Background(), tree, "inline"))
	return tree
}

func (h *harness) treeRunning(uid string) bool {
	for _, info := range h.runner.List() {
		if info.UID == uid {
			return info.Running
		}
	}
	return false
}

// nodeByName finds a node in the tree's flat list by instance name.
func nodeByName(t *testing.T, tree *bt.Tree, name string) bt.Node {
	t.Helper()
	for _, n := range tree.Nodes() {
		if n.Name() == name {
			return n
		}
	}
	t.Fatalf("node %q not found in tree %s", name, tree.Name())
	return nil
}

// drainEvents empties whatever the hub buffered for a subscription.
func drainEvents(ch <-chan streaming.StreamEvent) []streaming.StreamEvent {
	var out []streaming.StreamEvent
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

// --- Fixtures ---

const deliverXML = `<root BTCPP_format="4" main_tree_to_execute="Deliver">
  <BehaviorTree ID="Deliver">
    <Sequence name="deliver">
      <Action ID="PickUp" name="pick_up"/>
      <Action ID="Move" name="move"/>
      <Condition ID="HasPayload" name="has_payload"/>
    </Sequence>
  </BehaviorTree>
</root>`

const rescueXML = `<root BTCPP_format="4" main_tree_to_execute="Rescue">
  <BehaviorTree ID="Rescue">
    <Fallback name="rescue">
      <Action ID="Primary" name="primary"/>
      <Action ID="Backup" name="backup"/>
    </Fallback>
  </BehaviorTree>
</root>`

const blockerXML = `<root BTCPP_format="4" main_tree_to_execute="Blocker">
  <BehaviorTree ID="Blocker">
    <Action ID="Block" name="block"/>
  </BehaviorTree>
</root>`

const pipelineJSON = `{
  "main_tree": "Pipeline",
  "trees": [
    {
      "id": "Pipeline",
      "root": {
        "node": "Sequence",
        "name": "pipeline",
        "children": [
          {"node": "Action", "id": "SetBlackboard", "name": "set_target",
           "params": {"key": "target", "value": "dock_7"}},
          {"node": "Action", "id": "Script", "name": "plan_route",
           "params": {"code": "target + ':9'", "output": "route"}},
          {"node": "Condition", "id": "CheckBlackboard", "name": "route_set",
           "params": {"key": "route", "value": "dock_7:9"}},
          {"node": "Condition", "id": "ScriptCondition", "name": "route_long",
           "params": {"code": "len(route) > 5"}}
        ]
      }
    }
  ]
}`

// --- Run lifecycle ---

// TestRunToCompletionSuccess drives a sequence whose middle action stays
// RUNNING for a few ticks, and checks the final statuses plus the per-node
// tick accounting collected by the runner's observer.
func TestRunToCompletionSuccess(t *testing.T) {
	h := newHarness(t)

	var mu sync.Mutex
	moveTicks := 0
	require.NoError(t, h.registry.RegisterAction("PickUp", func(bt.Node) schema.Status {
		return schema.StatusSuccess
	}))
	require.NoError(t, h.registry.RegisterAction("Move", func(bt.Node) schema.Status {
		mu.Lock()
		defer mu.Unlock()
		moveTicks++
		if moveTicks < 4 {
			return schema.StatusRunning
		}
		return schema.StatusSuccess
	}))
	require.NoError(t, h.registry.RegisterCondition("HasPayload", func(bt.Node) schema.Status {
		return schema.StatusSuccess
	}))

	tree := h.loadXML(deliverXML)
	require.Len(t, tree.Nodes(), 4)

	status, err := h.runner.RunToCompletion(context.Background(), tree.UID())
	require.NoError(t, err)
	assert.Equal(t, schema.StatusSuccess, status)
	assert.Equal(t, schema.StatusSuccess, tree.Status())
	assert.Equal(t, schema.StatusSuccess, nodeByName(t, tree, "pick_up").Status())
	assert.Equal(t, schema.StatusSuccess, nodeByName(t, tree, "move").Status())
	assert.Equal(t, schema.StatusSuccess, nodeByName(t, tree, "has_payload").Status())

	// The sequence resumes at the running child, so pick_up ticks once
	// while move ticks on every pass.
	obs, err := h.runner.Observer(tree.UID())
	require.NoError(t, err)
	pickStats, err := obs.StatisticsByPath("pick_up")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), pickStats.TickCount)
	moveStats, err := obs.StatisticsByPath("move")
	require.NoError(t, err)
	assert.Equal(t, uint64(4), moveStats.TickCount)
	assert.Equal(t, uint64(1), moveStats.SuccessCount)
}

// TestFallbackRecovery checks that a failing primary hands over to the
// backup branch and the failure is still visible on the primary node.
func TestFallbackRecovery(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.registry.RegisterAction("Primary", func(bt.Node) schema.Status {
		return schema.StatusFailure
	}))
	require.NoError(t, h.registry.RegisterAction("Backup", func(bt.Node) schema.Status {
		return schema.StatusSuccess
	}))

	tree := h.loadXML(rescueXML)
	status, err := h.runner.RunToCompletion(context.Background(), tree.UID())
	require.NoError(t, err)

	assert.Equal(t, schema.StatusSuccess, status)
	assert.Equal(t, schema.StatusFailure, nodeByName(t, tree, "primary").Status())
	assert.Equal(t, schema.StatusSuccess, nodeByName(t, tree, "backup").Status())
}

// TestRunOnceAdvancesOneTick verifies that RunOnce performs exactly one
// tick per call instead of driving the tree to completion.
func TestRunOnceAdvancesOneTick(t *testing.T) {
	h := newHarness(t)

	var mu sync.Mutex
	ticks := 0
	require.NoError(t, h.registry.RegisterAction("Block", func(bt.Node) schema.Status {
		mu.Lock()
		defer mu.Unlock()
		ticks++
		if ticks < 2 {
			return schema.StatusRunning
		}
		return schema.StatusSuccess
	}))

	tree := h.loadXML(blockerXML)
	ctx := context.Background()

	status, err := h.runner.RunOnce(ctx, tree.UID())
	require.NoError(t, err)
	assert.Equal(t, schema.StatusRunning, status)

	status, err = h.runner.RunOnce(ctx, tree.UID())
	require.NoError(t, err)
	assert.Equal(t, schema.StatusSuccess, status)

	mu.Lock()
	assert.Equal(t, 2, ticks)
	mu.Unlock()
}

// TestHaltDuringRun aborts an in-flight run and expects the whole tree back
// at IDLE with the run reporting a cancellation error.
func TestHaltDuringRun(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.registry.RegisterAction("Block", func(bt.Node) schema.Status {
		return schema.StatusRunning
	}))

	tree := h.loadXML(blockerXML)

	errCh := make(chan error, 1)
	go func() {
		_, err := h.runner.RunToCompletion(context.Background(), tree.UID())
		errCh <- err
	}()

	require.Eventually(t, func() bool {
		return h.treeRunning(tree.UID())
	}, 3*time.Second, 5*time.Millisecond, "run never started")

	require.NoError(t, h.runner.Halt(tree.UID()))

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("run did not stop after halt")
	}

	assert.Equal(t, schema.StatusIdle, tree.Status())
	for _, n := range tree.Nodes() {
		assert.Equal(t, schema.StatusIdle, n.Status(), "node %s", n.Name())
	}
}

// TestConflictingRunsRejected starts a long run and expects a second run
// request for the same tree to be refused while the first is in flight.
func TestConflictingRunsRejected(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.registry.RegisterAction("Block", func(bt.Node) schema.Status {
		return schema.StatusRunning
	}))

	tree := h.loadXML(blockerXML)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = h.runner.RunToCompletion(context.Background(), tree.UID())
	}()

	require.Eventually(t, func() bool {
		return h.treeRunning(tree.UID())
	}, 3*time.Second, 5*time.Millisecond)

	_, err := h.runner.RunOnce(context.Background(), tree.UID())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")

	require.NoError(t, h.runner.Halt(tree.UID()))
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("halted run did not return")
	}
}

// TestDoubleAddRejected checks the duplicate-management guard.
func TestDoubleAddRejected(t *testing.T) {
	h := newHarness(t)

	tree := h.loadXML(`<root BTCPP_format="4">
  <BehaviorTree ID="Solo">
    <Action ID="AlwaysSuccess" name="noop"/>
  </BehaviorTree>
</root>`)

	err := h.runner.Add(context.Background(), tree, "inline")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already managed")
}

// TestRemoveKeepsHistory removes a tree from management and expects the
// persisted transitions to survive while the live handle disappears.
func TestRemoveKeepsHistory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tree := h.loadXML(`<root BTCPP_format="4">
  <BehaviorTree ID="Ephemeral">
    <Action ID="AlwaysSuccess" name="noop"/>
  </BehaviorTree>
</root>`)

	_, err := h.runner.RunToCompletion(ctx, tree.UID())
	require.NoError(t, err)

	require.NoError(t, h.runner.Remove(tree.UID()))

	_, err = h.runner.Tree(tree.UID())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not managed")

	recs, err := h.store.Transitions(ctx, tree.UID(), 0)
	require.NoError(t, err)
	assert.NotEmpty(t, recs)

	rec, err := h.store.GetTree(ctx, tree.UID())
	require.NoError(t, err)
	assert.Equal(t, "Ephemeral", rec.Name)
}

// TestListReportsManagedTrees checks the runner's inventory view.
func TestListReportsManagedTrees(t *testing.T) {
	h := newHarness(t)

	alpha := h.loadXML(`<root BTCPP_format="4">
  <BehaviorTree ID="Alpha">
    <Action ID="AlwaysSuccess" name="noop"/>
  </BehaviorTree>
</root>`)
	beta := h.loadXML(`<root BTCPP_format="4">
  <BehaviorTree ID="Beta">
    <Sequence name="pair">
      <Action ID="AlwaysSuccess" name="first"/>
      <Action ID="AlwaysSuccess" name="second"/>
    </Sequence>
  </BehaviorTree>
</root>`)

	infos := h.runner.List()
	require.Len(t, infos, 2)

	// Sorted by name.
	assert.Equal(t, "Alpha", infos[0].Name)
	assert.Equal(t, alpha.UID(), infos[0].UID)
	assert.Equal(t, 1, infos[0].NodeCount)
	assert.Equal(t, schema.StatusIdle, infos[0].Status)
	assert.Equal(t, "inline", infos[0].Source)
	assert.False(t, infos[0].Running)

	assert.Equal(t, "Beta", infos[1].Name)
	assert.Equal(t, beta.UID(), infos[1].UID)
	assert.Equal(t, 3, infos[1].NodeCount)
}

// --- Blackboard pipeline ---

// TestBlackboardPipeline runs a JSON-defined tree whose leaves communicate
// exclusively through the blackboard: a literal write, a script that
// derives a value from it, and two checks on the derived value.
func TestBlackboardPipeline(t *testing.T) {
	h := newHarness(t)

	tree := h.loadJSON(pipelineJSON)
	status, err := h.runner.RunToCompletion(context.Background(), tree.UID())
	require.NoError(t, err)
	require.Equal(t, schema.StatusSuccess, status)

	target, ok := tree.Blackboard().Get("target")
	require.True(t, ok)
	str, isStr := target.String()
	require.True(t, isStr)
	assert.Equal(t, "dock_7", str)

	route, ok := tree.Blackboard().Get("route")
	require.True(t, ok)
	str, isStr = route.String()
	require.True(t, isStr)
	assert.Equal(t, "dock_7:9", str)
}

// --- Transition persistence ---

// TestTransitionPersistenceOrder pins down exactly which transitions reach
// the store: one record per status change, in tick order, with contiguous
// per-tree sequence numbers. Repeated RUNNING passes must not add records.
func TestTransitionPersistenceOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var mu sync.Mutex
	moveTicks := 0
	require.NoError(t, h.registry.RegisterAction("PickUp", func(bt.Node) schema.Status {
		return schema.StatusSuccess
	}))
	require.NoError(t, h.registry.RegisterAction("Move", func(bt.Node) schema.Status {
		mu.Lock()
		defer mu.Unlock()
		moveTicks++
		if moveTicks < 4 {
			return schema.StatusRunning
		}
		return schema.StatusSuccess
	}))
	require.NoError(t, h.registry.RegisterCondition("HasPayload", func(bt.Node) schema.Status {
		return schema.StatusSuccess
	}))

	tree := h.loadXML(deliverXML)
	_, err := h.runner.RunToCompletion(ctx, tree.UID())
	require.NoError(t, err)

	recs, err := h.store.Transitions(ctx, tree.UID(), 0)
	require.NoError(t, err)
	require.Len(t, recs, 6)

	type step struct {
		node   string
		prev   schema.Status
		status schema.Status
	}
	want := []step{
		{"pick_up", schema.StatusIdle, schema.StatusSuccess},
		{"move", schema.StatusIdle, schema.StatusRunning},
		{"deliver", schema.StatusIdle, schema.StatusRunning},
		{"move", schema.StatusRunning, schema.StatusSuccess},
		{"has_payload", schema.StatusIdle, schema.StatusSuccess},
		{"deliver", schema.StatusRunning, schema.StatusSuccess},
	}
	for i, rec := range recs {
		assert.Equal(t, int64(i+1), rec.Sequence)
		assert.Equal(t, want[i].node, rec.NodeName, "record %d", i)
		assert.Equal(t, want[i].prev, rec.Prev, "record %d", i)
		assert.Equal(t, want[i].status, rec.Status, "record %d", i)
		assert.Equal(t, "tick", rec.Cause)
	}
}

// TestTransitionReplayReconstructsStatuses replays the persisted log and
// expects the reconstructed statuses to match the live tree.
func TestTransitionReplayReconstructsStatuses(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.registry.RegisterAction("Primary", func(bt.Node) schema.Status {
		return schema.StatusFailure
	}))
	require.NoError(t, h.registry.RegisterAction("Backup", func(bt.Node) schema.Status {
		return schema.StatusSuccess
	}))

	tree := h.loadXML(rescueXML)
	_, err := h.runner.RunToCompletion(ctx, tree.UID())
	require.NoError(t, err)

	replayed, err := h.translog.ReplayStatuses(ctx, tree.UID())
	require.NoError(t, err)

	for _, n := range tree.Nodes() {
		if n.Status() == schema.StatusIdle {
			continue
		}
		assert.Equal(t, n.Status(), replayed[n.UID()], "node %s", n.Name())
	}
	assert.Equal(t, schema.StatusFailure, replayed[nodeByName(t, tree, "primary").UID()])
	assert.Equal(t, schema.StatusSuccess, replayed[nodeByName(t, tree, "backup").UID()])
}

// TestTransitionsByNodeFilter reads back the history of a single node,
// newest first.
func TestTransitionsByNodeFilter(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var mu sync.Mutex
	moveTicks := 0
	require.NoError(t, h.registry.RegisterAction("PickUp", func(bt.Node) schema.Status {
		return schema.StatusSuccess
	}))
	require.NoError(t, h.registry.RegisterAction("Move", func(bt.Node) schema.Status {
		mu.Lock()
		defer mu.Unlock()
		moveTicks++
		if moveTicks < 3 {
			return schema.StatusRunning
		}
		return schema.StatusSuccess
	}))
	require.NoError(t, h.registry.RegisterCondition("HasPayload", func(bt.Node) schema.Status {
		return schema.StatusSuccess
	}))

	tree := h.loadXML(deliverXML)
	_, err := h.runner.RunToCompletion(ctx, tree.UID())
	require.NoError(t, err)

	moveUID := nodeByName(t, tree, "move").UID()
	recs, err := h.store.TransitionsByNode(ctx, tree.UID(), moveUID, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, schema.StatusSuccess, recs[0].Status)
	assert.Equal(t, schema.StatusRunning, recs[1].Status)

	recs, err = h.store.TransitionsByNode(ctx, tree.UID(), moveUID, 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, schema.StatusSuccess, recs[0].Status)
}

// --- Scheduling ---

// TestScheduledRunFires registers an every-second schedule, starts the
// scheduler loop and waits for the tree to run on its own.
func TestScheduledRunFires(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var mu sync.Mutex
	runs := 0
	require.NoError(t, h.registry.RegisterAction("Beat", func(bt.Node) schema.Status {
		mu.Lock()
		defer mu.Unlock()
		runs++
		return schema.StatusSuccess
	}))

	tree := h.buildXML(`<root BTCPP_format="4">
  <BehaviorTree ID="Heartbeat">
    <Action ID="Beat" name="beat"/>
  </BehaviorTree>
</root>`)
	require.NoError(t, h.runner.AddScheduled(ctx, tree, "inline", "* * * * * *"))

	infos := h.runner.List()
	require.Len(t, infos, 1)
	assert.Equal(t, "* * * * * *", infos[0].Schedule)
	assert.False(t, infos[0].NextRun.IsZero())

	require.NoError(t, h.runner.Start(ctx))
	defer h.runner.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return runs >= 1
	}, 5*time.Second, 50*time.Millisecond, "scheduled tree never ran")

	require.Eventually(t, func() bool {
		return !h.runner.List()[0].LastRun.IsZero()
	}, 3*time.Second, 50*time.Millisecond)
}

// TestScheduleValidation rejects malformed cron expressions at Add time.
func TestScheduleValidation(t *testing.T) {
	h := newHarness(t)

	tree := h.buildXML(`<root BTCPP_format="4">
  <BehaviorTree ID="Never">
    <Action ID="AlwaysSuccess" name="noop"/>
  </BehaviorTree>
</root>`)

	err := h.runner.AddScheduled(context.Background(), tree, "inline", "bogus")
	require.Error(t, err)

	// The rejected tree must not be managed.
	_, err = h.runner.Tree(tree.UID())
	require.Error(t, err)
}

// TestCalculateNextRun checks cron evaluation for both 6-field and 5-field
// expressions.
func TestCalculateNextRun(t *testing.T) {
	h := newHarness(t)

	after := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	next, err := h.runner.CalculateNextRun("0 0 * * * *", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 2, 4, 0, 0, 0, time.UTC), next)

	// Five fields: seconds default to zero.
	next, err = h.runner.CalculateNextRun("30 * * * *", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 30, 0, 0, time.UTC), next)

	_, err = h.runner.CalculateNextRun("not a cron", after)
	require.Error(t, err)
}

// --- Event streaming ---

// TestEventStreamOrdering subscribes before a run and checks the framing:
// tree.started first, node transitions in between, tree.finished last.
func TestEventStreamOrdering(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.registry.RegisterAction("PickUp", func(bt.Node) schema.Status {
		return schema.StatusSuccess
	}))
	require.NoError(t, h.registry.RegisterAction("Move", func(bt.Node) schema.Status {
		return schema.StatusSuccess
	}))
	require.NoError(t, h.registry.RegisterCondition("HasPayload", func(bt.Node) schema.Status {
		return schema.StatusSuccess
	}))

	tree := h.loadXML(deliverXML)

	events, cancel, err := h.hub.Subscribe(ctx, streaming.EventFilter{TreeUID: tree.UID()})
	require.NoError(t, err)
	defer cancel()

	_, err = h.runner.RunToCompletion(ctx, tree.UID())
	require.NoError(t, err)

	got := drainEvents(events)
	require.GreaterOrEqual(t, len(got), 3)

	assert.Equal(t, streaming.EventTreeStarted, got[0].EventType)

	last := got[len(got)-1]
	assert.Equal(t, streaming.EventTreeFinished, last.EventType)
	payload, ok := last.Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "success", payload["status"])

	transitions := 0
	for _, ev := range got[1 : len(got)-1] {
		require.Equal(t, streaming.EventNodeTransition, ev.EventType)
		assert.NotEmpty(t, ev.NodeName)
		transitions++
	}
	// One transition per node: four nodes, each resolving in one tick.
	assert.Equal(t, 4, transitions)
}

// TestEventFilterByType checks that a type-filtered subscription sees only
// the requested events.
func TestEventFilterByType(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tree := h.loadXML(`<root BTCPP_format="4">
  <BehaviorTree ID="Quick">
    <Action ID="AlwaysSuccess" name="noop"/>
  </BehaviorTree>
</root>`)

	events, cancel, err := h.hub.Subscribe(ctx, streaming.EventFilter{
		TreeUID:    tree.UID(),
		EventTypes: []string{streaming.EventTreeFinished},
	})
	require.NoError(t, err)
	defer cancel()

	_, err = h.runner.RunToCompletion(ctx, tree.UID())
	require.NoError(t, err)

	got := drainEvents(events)
	require.Len(t, got, 1)
	assert.Equal(t, streaming.EventTreeFinished, got[0].EventType)
}

// TestHaltEventPublished halts an idle tree and expects a tree.halted
// event on the hub.
func TestHaltEventPublished(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tree := h.loadXML(`<root BTCPP_format="4">
  <BehaviorTree ID="Quick">
    <Action ID="AlwaysSuccess" name="noop"/>
  </BehaviorTree>
</root>`)

	_, err := h.runner.RunToCompletion(ctx, tree.UID())
	require.NoError(t, err)

	events, cancel, err := h.hub.Subscribe(ctx, streaming.EventFilter{
		TreeUID:    tree.UID(),
		EventTypes: []string{streaming.EventTreeHalted},
	})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, h.runner.Halt(tree.UID()))
	assert.Equal(t, schema.StatusIdle, tree.Status())

	got := drainEvents(events)
	require.Len(t, got, 1)
	assert.Equal(t, streaming.EventTreeHalted, got[0].EventType)
}
