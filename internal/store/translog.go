package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rendis/arbor/pkg/schema"
)

// TransitionLog provides log-sourcing operations on top of a LibSQLStore.
type TransitionLog struct {
	store *LibSQLStore
}

// NewTransitionLog wraps a LibSQLStore to provide log-sourcing operations.
func NewTransitionLog(s *LibSQLStore) *TransitionLog {
	return &TransitionLog{store: s}
}

// Append appends a transition with a monotonically increasing per-tree
// sequence, forcing write-lock acquisition so concurrent appenders cannot
// interleave sequence reads and writes.
func (tl *TransitionLog) Append(ctx context.Context, rec *TransitionRecord) error {
	db := tl.store.DB()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin immediate tx: %w", err)
	}
	defer tx.Rollback()

	// In WAL mode, BeginTx alone may start a deferred transaction.
	// We use an immediate-mode write to force lock acquisition.
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, name) VALUES (-1, '_lock_noop')`); err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}
	// Clean up the noop row.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM schema_version WHERE version = -1`); err != nil {
		return fmt.Errorf("cleanup write lock: %w", err)
	}

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM transitions WHERE tree_uid = ?`, rec.TreeUID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	rec.Sequence = seq

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO transitions (tree_uid, sequence, node_uid, node_name, node_kind, prev_status, status, cause, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TreeUID, seq, rec.NodeUID, rec.NodeName, rec.NodeKind,
		string(rec.Prev), string(rec.Status), rec.Cause, rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transition: %w", err)
	}
	return nil
}

// Transitions returns transitions for a tree with sequence > since, ordered
// by sequence ASC.
func (tl *TransitionLog) Transitions(ctx context.Context, treeUID string, since int64) ([]*TransitionRecord, error) {
	return tl.store.Transitions(ctx, treeUID, since)
}

// ReplayStatuses replays the full log of a tree and returns the
// reconstructed per-node statuses. Returns an error if sequence gaps are
// detected.
func (tl *TransitionLog) ReplayStatuses(ctx context.Context, treeUID string) (map[uint16]schema.Status, error) {
	recs, err := tl.store.Transitions(ctx, treeUID, 0)
	if err != nil {
		return nil, fmt.Errorf("get transitions for replay: %w", err)
	}

	statuses := make(map[uint16]schema.Status, len(recs))
	if len(recs) == 0 {
		return statuses, nil
	}

	// Validate sequence contiguity.
	for i, rec := range recs {
		expected := int64(i + 1)
		if rec.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in tree %s: expected %d, got %d", treeUID, expected, rec.Sequence)
		}
	}

	for _, rec := range recs {
		statuses[rec.NodeUID] = rec.Status
	}
	return statuses, nil
}
