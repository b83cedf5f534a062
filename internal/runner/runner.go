// Package runner manages the lifecycle of built behavior trees: on-demand
// runs, cron-scheduled runs and the wiring of node transitions into the
// transition store and the event hub.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/arbor/internal/logging"
	"github.com/rendis/arbor/internal/observer"
	"github.com/rendis/arbor/internal/store"
	"github.com/rendis/arbor/internal/streaming"
	"github.com/rendis/arbor/pkg/bt"
	"github.com/rendis/arbor/pkg/schema"
)

const (
	defaultWorkers      = 4
	defaultPollInterval = 1 * time.Second
	defaultTickInterval = 10 * time.Millisecond
)

// Deps carries the runner's dependencies. Store and Hub are optional:
// without a store nothing is persisted, without a hub nothing is streamed.
type Deps struct {
	Store  store.Store
	Hub    streaming.EventHub
	Logger *slog.Logger

	// Workers caps concurrent scheduled runs. Defaults to 4.
	Workers int
	// PollInterval is how often the scheduler loop checks for due trees.
	// Defaults to 1s.
	PollInterval time.Duration
	// TickInterval is the sleep between RUNNING passes of a managed run.
	// Defaults to 10ms.
	TickInterval time.Duration
}

// TreeInfo is the runner's public view of one managed tree.
type TreeInfo struct {
	UID       string        `json:"uid"`
	Name      string        `json:"name"`
	Status    schema.Status `json:"status"`
	NodeCount int           `json:"node_count"`
	Source    string        `json:"source,omitempty"`
	Schedule  string        `json:"schedule,omitempty"`
	NextRun   time.Time     `json:"next_run,omitzero"`
	LastRun   time.Time     `json:"last_run,omitzero"`
	Running   bool          `json:"running"`
}

// managedTree is the runner's bookkeeping for one tree. Mutable fields are
// guarded by Runner.mu.
type managedTree struct {
	tree   *bt.Tree
	obs    *observer.TreeObserver
	source string

	schedule cron.Schedule
	spec     string
	nextRun  time.Time
	lastRun  time.Time

	// cancelRun aborts the in-flight RunToCompletion, if any.
	cancelRun context.CancelFunc
}

// Runner owns the set of managed trees. All methods are safe for concurrent
// use.
type Runner struct {
	store  store.Store
	hub    streaming.EventHub
	logger *slog.Logger
	parser cron.Parser
	pool   *WorkerPool

	pollInterval time.Duration
	tickInterval time.Duration

	mu    sync.RWMutex
	trees map[string]*managedTree

	// inflight tracks trees currently ticking so that a tree never runs
	// twice at once.
	inflightMu sync.Mutex
	inflight   map[string]struct{}

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a runner. Zero-value Deps fields fall back to defaults.
func New(deps Deps) *Runner {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := deps.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	poll := deps.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	tick := deps.TickInterval
	if tick <= 0 {
		tick = defaultTickInterval
	}

	return &Runner{
		store:        deps.Store,
		hub:          deps.Hub,
		logger:       logger,
		parser:       cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		pool:         NewWorkerPool(workers),
		pollInterval: poll,
		tickInterval: tick,
		trees:        make(map[string]*managedTree),
		inflight:     make(map[string]struct{}),
	}
}

// Add places a tree under management: it attaches an observer, subscribes
// the transition sink and registers the tree in the store. The source is
// the path or identifier of the definition the tree was built from.
func (r *Runner) Add(ctx context.Context, tree *bt.Tree, source string) error {
	if tree == nil {
		return schema.NewError(schema.ErrCodeValidation, "tree is nil")
	}

	r.mu.Lock()
	if _, exists := r.trees[tree.UID()]; exists {
		r.mu.Unlock()
		return schema.NewErrorf(schema.ErrCodeConflict, "tree %s is already managed", tree.UID())
	}
	mt := &managedTree{
		tree:   tree,
		obs:    observer.Attach(tree),
		source: source,
	}
	r.trees[tree.UID()] = mt
	r.mu.Unlock()

	tree.OnTransition(r.transitionSink(tree.UID()))

	if r.store != nil {
		rec := &store.TreeRecord{
			UID:       tree.UID(),
			Name:      tree.Name(),
			Source:    source,
			NodeCount: len(tree.Nodes()),
		}
		if err := r.store.RegisterTree(ctx, rec); err != nil {
			return fmt.Errorf("register tree: %w", err)
		}
	}

	r.logger.Info("tree registered",
		slog.String("tree_uid", tree.UID()),
		slog.String("tree", tree.Name()),
		slog.Int("nodes", len(tree.Nodes())))
	return nil
}

// AddScheduled is Add plus a cron schedule. The expression uses the standard
// five-field form with an optional leading seconds field.
func (r *Runner) AddScheduled(ctx context.Context, tree *bt.Tree, source, cronExpr string) error {
	schedule, err := r.parser.Parse(cronExpr)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "invalid cron expression %q: %s", cronExpr, err).
			WithCause(err)
	}
	if err := r.Add(ctx, tree, source); err != nil {
		return err
	}

	r.mu.Lock()
	mt := r.trees[tree.UID()]
	mt.schedule = schedule
	mt.spec = cronExpr
	mt.nextRun = schedule.Next(time.Now().UTC())
	r.mu.Unlock()

	r.logger.Info("tree scheduled",
		slog.String("tree_uid", tree.UID()),
		slog.String("cron", cronExpr))
	return nil
}

// Remove takes a tree out of management, aborting its in-flight run if any.
// Persisted transition history is kept.
func (r *Runner) Remove(uid string) error {
	r.mu.Lock()
	mt, ok := r.trees[uid]
	if !ok {
		r.mu.Unlock()
		return schema.NewErrorf(schema.ErrCodeNotFound, "tree %s is not managed", uid)
	}
	cancelRun := mt.cancelRun
	delete(r.trees, uid)
	r.mu.Unlock()

	if cancelRun != nil {
		cancelRun()
	} else {
		mt.tree.HaltAll()
	}
	r.logger.Info("tree removed", slog.String("tree_uid", uid))
	return nil
}

// Tree returns the managed tree with the given UID.
func (r *Runner) Tree(uid string) (*bt.Tree, error) {
	mt, err := r.managed(uid)
	if err != nil {
		return nil, err
	}
	return mt.tree, nil
}

// Observer returns the statistics observer attached to a managed tree.
func (r *Runner) Observer(uid string) (*observer.TreeObserver, error) {
	mt, err := r.managed(uid)
	if err != nil {
		return nil, err
	}
	return mt.obs, nil
}

// List returns every managed tree sorted by name.
func (r *Runner) List() []TreeInfo {
	r.mu.RLock()
	infos := make([]TreeInfo, 0, len(r.trees))
	for uid, mt := range r.trees {
		infos = append(infos, TreeInfo{
			UID:       uid,
			Name:      mt.tree.Name(),
			Status:    mt.tree.Status(),
			NodeCount: len(mt.tree.Nodes()),
			Source:    mt.source,
			Schedule:  mt.spec,
			NextRun:   mt.nextRun,
			LastRun:   mt.lastRun,
			Running:   r.isRunning(uid),
		})
	}
	r.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Name != infos[j].Name {
			return infos[i].Name < infos[j].Name
		}
		return infos[i].UID < infos[j].UID
	})
	return infos
}

// RunOnce propagates a single tick through the tree and returns the root
// status. Concurrent runs of the same tree are rejected with a conflict.
func (r *Runner) RunOnce(ctx context.Context, uid string) (schema.Status, error) {
	if err := ctx.Err(); err != nil {
		return schema.StatusIdle, err
	}
	mt, err := r.managed(uid)
	if err != nil {
		return schema.StatusIdle, err
	}
	if !r.tryAcquire(uid) {
		return schema.StatusIdle, schema.NewErrorf(schema.ErrCodeConflict, "tree %s is already running", uid)
	}
	defer r.release(uid)

	status := mt.tree.Tick()

	r.mu.Lock()
	mt.lastRun = time.Now().UTC()
	r.mu.Unlock()
	return status, nil
}

// RunToCompletion ticks the tree until it leaves RUNNING, publishing
// started/finished events around the run. Cancelling ctx (or calling Halt)
// aborts the run, halts the tree and returns the context error.
func (r *Runner) RunToCompletion(ctx context.Context, uid string) (schema.Status, error) {
	mt, err := r.managed(uid)
	if err != nil {
		return schema.StatusIdle, err
	}
	if !r.tryAcquire(uid) {
		return schema.StatusIdle, schema.NewErrorf(schema.ErrCodeConflict, "tree %s is already running", uid)
	}
	defer r.release(uid)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.mu.Lock()
	mt.cancelRun = cancel
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		mt.cancelRun = nil
		r.mu.Unlock()
	}()

	logCtx := logging.WithTree(ctx, uid, mt.tree.Name())
	r.publish(streaming.StreamEvent{TreeUID: uid, EventType: streaming.EventTreeStarted})

	start := time.Now()
	status, runErr := mt.tree.TickWhileRunning(runCtx, r.tickInterval)

	r.mu.Lock()
	mt.lastRun = time.Now().UTC()
	r.mu.Unlock()

	if runErr != nil {
		r.publish(streaming.StreamEvent{
			TreeUID:   uid,
			EventType: streaming.EventTreeHalted,
			Payload:   map[string]any{"reason": runErr.Error()},
		})
		logging.LogWith(logCtx, r.logger).Warn("tree run halted",
			slog.String("error", runErr.Error()))
		return status, runErr
	}

	r.publish(streaming.StreamEvent{
		TreeUID:   uid,
		EventType: streaming.EventTreeFinished,
		Payload: map[string]any{
			"status":      string(status),
			"duration_ms": time.Since(start).Milliseconds(),
		},
	})
	logging.LogWith(logCtx, r.logger).Info("tree run finished",
		slog.String("status", string(status)),
		slog.Duration("duration", time.Since(start)))
	return status, nil
}

// Halt aborts the tree's in-flight run, or resets the tree to IDLE if no
// run is active.
func (r *Runner) Halt(uid string) error {
	r.mu.RLock()
	mt, ok := r.trees[uid]
	var cancelRun context.CancelFunc
	if ok {
		cancelRun = mt.cancelRun
	}
	r.mu.RUnlock()
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "tree %s is not managed", uid)
	}

	// An in-flight RunToCompletion owns the halt: cancelling its context
	// makes it halt the tree and publish the halted event itself.
	if cancelRun != nil {
		cancelRun()
		return nil
	}

	mt.tree.HaltAll()
	r.publish(streaming.StreamEvent{TreeUID: uid, EventType: streaming.EventTreeHalted})
	return nil
}

// Start launches the scheduler loop. Returns an error if already started.
func (r *Runner) Start(ctx context.Context) error {
	r.loopMu.Lock()
	defer r.loopMu.Unlock()
	if r.cancel != nil {
		return schema.NewError(schema.ErrCodeConflict, "runner already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.loop(loopCtx)

	r.logger.Info("runner started",
		slog.Duration("poll_interval", r.pollInterval),
		slog.Int("workers", cap(r.pool.sem)))
	return nil
}

// Stop halts the scheduler loop and waits for it to exit. Scheduled runs
// already submitted keep draining in the pool; use Close to wait for them.
func (r *Runner) Stop() {
	r.loopMu.Lock()
	defer r.loopMu.Unlock()
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	r.cancel = nil
	r.done = nil
	r.logger.Info("runner stopped")
}

// Close stops the scheduler loop and shuts down the worker pool, waiting
// for in-flight scheduled runs to finish.
func (r *Runner) Close() {
	r.Stop()
	r.pool.Shutdown()
}

// PoolMetrics returns a snapshot of the scheduled-run pool metrics.
func (r *Runner) PoolMetrics() PoolMetrics {
	return r.pool.Metrics()
}

// CalculateNextRun parses a cron expression and returns the next fire time
// after the given instant.
func (r *Runner) CalculateNextRun(cronExpr string, after time.Time) (time.Time, error) {
	schedule, err := r.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, schema.NewErrorf(schema.ErrCodeValidation, "invalid cron expression %q: %s", cronExpr, err).
			WithCause(err)
	}
	return schedule.Next(after), nil
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	// Immediate first pass so due trees do not wait a full poll interval.
	r.dispatchDue(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.dispatchDue(ctx)
		}
	}
}

// dispatchDue submits every due scheduled tree to the pool and advances its
// nextRun. Trees still running from a previous fire are skipped, not queued.
func (r *Runner) dispatchDue(ctx context.Context) {
	now := time.Now().UTC()

	r.mu.Lock()
	var due []string
	for uid, mt := range r.trees {
		if mt.schedule == nil {
			continue
		}
		if mt.nextRun.After(now) {
			continue
		}
		mt.nextRun = mt.schedule.Next(now)
		due = append(due, uid)
	}
	r.mu.Unlock()

	for _, uid := range due {
		if r.isRunning(uid) {
			r.logger.Debug("scheduled run skipped, tree still running",
				slog.String("tree_uid", uid))
			continue
		}
		err := r.pool.Submit(ctx, func(runCtx context.Context) error {
			_, runErr := r.RunToCompletion(runCtx, uid)
			return runErr
		})
		if err != nil {
			r.logger.Error("submit scheduled run",
				slog.String("tree_uid", uid),
				slog.String("error", err.Error()))
		}
	}
}

// transitionSink fans a node transition out to the hub and the store. Every
// transition is streamed; only status changes are persisted, so RUNNING
// re-ticks do not flood the log.
func (r *Runner) transitionSink(treeUID string) bt.TransitionFunc {
	return func(tr bt.Transition) {
		if r.hub != nil {
			_ = r.hub.Publish(context.Background(), streaming.StreamEvent{
				TreeUID:   treeUID,
				NodeUID:   tr.NodeUID,
				NodeName:  tr.NodeName,
				EventType: streaming.EventNodeTransition,
				Payload: map[string]any{
					"kind":   string(tr.NodeKind),
					"prev":   string(tr.Prev),
					"status": string(tr.Status),
					"cause":  string(tr.Cause),
				},
			})
		}
		if r.store != nil && tr.Prev != tr.Status {
			rec := &store.TransitionRecord{
				TreeUID:   treeUID,
				NodeUID:   tr.NodeUID,
				NodeName:  tr.NodeName,
				NodeKind:  string(tr.NodeKind),
				Prev:      tr.Prev,
				Status:    tr.Status,
				Cause:     string(tr.Cause),
				Timestamp: tr.Timestamp,
			}
			if err := r.store.AppendTransition(context.Background(), rec); err != nil {
				r.logger.Error("append transition",
					slog.String("tree_uid", treeUID),
					slog.String("node", tr.NodeName),
					slog.String("error", err.Error()))
			}
		}
	}
}

func (r *Runner) managed(uid string) (*managedTree, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mt, ok := r.trees[uid]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "tree %s is not managed", uid)
	}
	return mt, nil
}

func (r *Runner) publish(event streaming.StreamEvent) {
	if r.hub == nil {
		return
	}
	_ = r.hub.Publish(context.Background(), event)
}

func (r *Runner) tryAcquire(uid string) bool {
	r.inflightMu.Lock()
	defer r.inflightMu.Unlock()
	if _, running := r.inflight[uid]; running {
		return false
	}
	r.inflight[uid] = struct{}{}
	return true
}

func (r *Runner) release(uid string) {
	r.inflightMu.Lock()
	defer r.inflightMu.Unlock()
	delete(r.inflight, uid)
}

func (r *Runner) isRunning(uid string) bool {
	r.inflightMu.Lock()
	defer r.inflightMu.Unlock()
	_, running := r.inflight[uid]
	return running
}
