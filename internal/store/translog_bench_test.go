package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rendis/arbor/pkg/schema"
)

func newBenchStore(b *testing.B) (*LibSQLStore, *TransitionLog) {
	b.Helper()
	dir := b.TempDir()
	s, err := NewLibSQLStore("file:" + dir + "/bench.db")
	if err != nil {
		b.Fatal(err)
	}
	if err := s.Migrate(context.Background()); err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = s.Close() })
	return s, NewTransitionLog(s)
}

func seedBenchTree(b *testing.B, s *LibSQLStore) string {
	b.Helper()
	uid := uuid.New().String()
	if err := s.RegisterTree(context.Background(), &TreeRecord{
		UID:       uid,
		Name:      "bench-tree",
		NodeCount: 10,
	}); err != nil {
		b.Fatal(err)
	}
	return uid
}

func benchRecord(treeUID string, nodeUID uint16) *TransitionRecord {
	return &TransitionRecord{
		TreeUID:  treeUID,
		NodeUID:  nodeUID,
		NodeName: "MoveTo",
		NodeKind: "action",
		Prev:     schema.StatusIdle,
		Status:   schema.StatusRunning,
		Cause:    "tick",
	}
}

func BenchmarkTransitionAppend_Sequential(b *testing.B) {
	s, tl := newBenchStore(b)
	treeUID := seedBenchTree(b, s)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tl.Append(ctx, benchRecord(treeUID, uint16(i%10+1)))
	}
}

func BenchmarkTransitionAppend_Concurrent(b *testing.B) {
	for _, writers := range []int{10, 50} {
		b.Run(fmt.Sprintf("writers=%d", writers), func(b *testing.B) {
			benchTransitionAppendConcurrent(b, writers)
		})
	}
}

func benchTransitionAppendConcurrent(b *testing.B, writers int) {
	s, tl := newBenchStore(b)
	ctx := context.Background()

	// Each writer gets its own tree to avoid sequence contention.
	treeUIDs := make([]string, writers)
	for i := range treeUIDs {
		treeUIDs[i] = seedBenchTree(b, s)
	}

	b.ResetTimer()
	var wg sync.WaitGroup
	perWriter := b.N / writers
	if perWriter == 0 {
		perWriter = 1
	}

	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(treeUID string) {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				tl.Append(ctx, benchRecord(treeUID, uint16(j%10+1)))
			}
		}(treeUIDs[w])
	}
	wg.Wait()
}

func BenchmarkTransitionReplay(b *testing.B) {
	for _, count := range []int{10, 100, 1000} {
		b.Run(fmt.Sprintf("transitions=%d", count), func(b *testing.B) {
			s, tl := newBenchStore(b)
			treeUID := seedBenchTree(b, s)
			ctx := context.Background()

			for i := 0; i < count; i++ {
				tl.Append(ctx, benchRecord(treeUID, uint16(i%10+1)))
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				tl.ReplayStatuses(ctx, treeUID)
			}
		})
	}
}
