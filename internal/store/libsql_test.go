package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/arbor/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() {
		_ = s.Close()
		_ = os.RemoveAll(dir)
	})
	return s
}

func seedTree(t *testing.T, s *LibSQLStore) *TreeRecord {
	t.Helper()
	rec := &TreeRecord{
		UID:       uuid.New().String(),
		Name:      "Patrol",
		Source:    "examples/patrol.xml",
		NodeCount: 7,
	}
	require.NoError(t, s.RegisterTree(context.Background(), rec))
	return rec
}

func tick(treeUID string, nodeUID uint16, prev, status schema.Status) *TransitionRecord {
	return &TransitionRecord{
		TreeUID:  treeUID,
		NodeUID:  nodeUID,
		NodeName: "MoveTo",
		NodeKind: "action",
		Prev:     prev,
		Status:   status,
		Cause:    "tick",
	}
}

func TestRegisterAndGetTree(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec := seedTree(t, s)

	got, err := s.GetTree(ctx, rec.UID)
	require.NoError(t, err)
	assert.Equal(t, rec.UID, got.UID)
	assert.Equal(t, "Patrol", got.Name)
	assert.Equal(t, "examples/patrol.xml", got.Source)
	assert.Equal(t, 7, got.NodeCount)
	assert.False(t, got.RegisteredAt.IsZero())
}

func TestRegisterTree_RefreshOnConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec := seedTree(t, s)

	rec.Name = "PatrolV2"
	rec.NodeCount = 9
	require.NoError(t, s.RegisterTree(ctx, rec))

	got, err := s.GetTree(ctx, rec.UID)
	require.NoError(t, err)
	assert.Equal(t, "PatrolV2", got.Name)
	assert.Equal(t, 9, got.NodeCount)

	trees, err := s.ListTrees(ctx)
	require.NoError(t, err)
	assert.Len(t, trees, 1)
}

func TestRegisterTree_RequiresUID(t *testing.T) {
	s := newTestStore(t)

	err := s.RegisterTree(context.Background(), &TreeRecord{Name: "NoUID"})
	require.Error(t, err)

	schemaErr, ok := err.(*schema.Error)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeValidation, schemaErr.Code)
}

func TestGetTree_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetTree(context.Background(), "nope")
	require.Error(t, err)

	schemaErr, ok := err.(*schema.Error)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeNotFound, schemaErr.Code)
}

func TestListTrees(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := seedTree(t, s)
	second := &TreeRecord{UID: uuid.New().String(), Name: "Recharge", NodeCount: 3}
	require.NoError(t, s.RegisterTree(ctx, second))

	trees, err := s.ListTrees(ctx)
	require.NoError(t, err)
	require.Len(t, trees, 2)

	uids := []string{trees[0].UID, trees[1].UID}
	assert.Contains(t, uids, first.UID)
	assert.Contains(t, uids, second.UID)
}

func TestDeleteTree(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec := seedTree(t, s)

	require.NoError(t, s.DeleteTree(ctx, rec.UID))

	_, err := s.GetTree(ctx, rec.UID)
	require.Error(t, err)

	err = s.DeleteTree(ctx, rec.UID)
	require.Error(t, err)
	schemaErr, ok := err.(*schema.Error)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeNotFound, schemaErr.Code)
}

func TestDeleteTree_CascadesTransitions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec := seedTree(t, s)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendTransition(ctx, tick(rec.UID, 1, schema.StatusIdle, schema.StatusRunning)))
	}

	require.NoError(t, s.DeleteTree(ctx, rec.UID))

	recs, err := s.Transitions(ctx, rec.UID, 0)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestAppendTransition_MonotonicSequence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec := seedTree(t, s)

	for i := 0; i < 5; i++ {
		tr := tick(rec.UID, 1, schema.StatusIdle, schema.StatusRunning)
		require.NoError(t, s.AppendTransition(ctx, tr))
		assert.Equal(t, int64(i+1), tr.Sequence, "sequence should be monotonic")
	}
}

func TestTransitions_RoundTripFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec := seedTree(t, s)

	now := time.Now().UTC().Truncate(time.Millisecond)
	in := &TransitionRecord{
		TreeUID:   rec.UID,
		NodeUID:   4,
		NodeName:  "approach",
		NodeKind:  "action",
		Prev:      schema.StatusRunning,
		Status:    schema.StatusSuccess,
		Cause:     "tick",
		Timestamp: now,
	}
	require.NoError(t, s.AppendTransition(ctx, in))

	recs, err := s.Transitions(ctx, rec.UID, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	got := recs[0]
	assert.NotZero(t, got.ID)
	assert.Equal(t, rec.UID, got.TreeUID)
	assert.Equal(t, int64(1), got.Sequence)
	assert.Equal(t, uint16(4), got.NodeUID)
	assert.Equal(t, "approach", got.NodeName)
	assert.Equal(t, "action", got.NodeKind)
	assert.Equal(t, schema.StatusRunning, got.Prev)
	assert.Equal(t, schema.StatusSuccess, got.Status)
	assert.Equal(t, "tick", got.Cause)
	assert.WithinDuration(t, now, got.Timestamp, time.Second)
}

func TestTransitions_Since(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec := seedTree(t, s)

	for i := 0; i < 4; i++ {
		require.NoError(t, s.AppendTransition(ctx, tick(rec.UID, uint16(i+1), schema.StatusIdle, schema.StatusSuccess)))
	}

	recs, err := s.Transitions(ctx, rec.UID, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(3), recs[0].Sequence)
	assert.Equal(t, int64(4), recs[1].Sequence)
}

func TestTransitionsByNode_Limit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec := seedTree(t, s)

	require.NoError(t, s.AppendTransition(ctx, tick(rec.UID, 1, schema.StatusIdle, schema.StatusRunning)))
	require.NoError(t, s.AppendTransition(ctx, tick(rec.UID, 2, schema.StatusIdle, schema.StatusSuccess)))
	require.NoError(t, s.AppendTransition(ctx, tick(rec.UID, 1, schema.StatusRunning, schema.StatusSuccess)))
	require.NoError(t, s.AppendTransition(ctx, tick(rec.UID, 1, schema.StatusSuccess, schema.StatusIdle)))

	recs, err := s.TransitionsByNode(ctx, rec.UID, 1, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	// Newest first.
	assert.Equal(t, int64(4), recs[0].Sequence)
	assert.Equal(t, int64(3), recs[1].Sequence)
	for _, r := range recs {
		assert.Equal(t, uint16(1), r.NodeUID)
	}
}
