package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_RunsSubmittedWork(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Shutdown()

	var ran int64
	err := pool.Submit(context.Background(), func(ctx context.Context) error {
		atomic.AddInt64(&ran, 1)
		return nil
	})
	require.NoError(t, err)

	pool.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt64(&ran))
	assert.EqualValues(t, 1, pool.Metrics().Completed)
}

func TestWorkerPool_ConcurrencyLimit(t *testing.T) {
	const poolSize = 3
	pool := NewWorkerPool(poolSize)
	defer pool.Shutdown()

	var maxConcurrent, current int64
	var mu sync.Mutex

	for range 10 {
		err := pool.Submit(context.Background(), func(ctx context.Context) error {
			c := atomic.AddInt64(&current, 1)
			mu.Lock()
			if c > maxConcurrent {
				maxConcurrent = c
			}
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)
			atomic.AddInt64(&current, -1)
			return nil
		})
		require.NoError(t, err)
	}

	pool.Wait()

	assert.LessOrEqual(t, maxConcurrent, int64(poolSize))
	assert.Positive(t, maxConcurrent)
}

func TestWorkerPool_Backpressure(t *testing.T) {
	pool := NewWorkerPool(1)
	defer pool.Shutdown()

	started := make(chan struct{})
	block := make(chan struct{})

	// Fill the single slot with a blocking run.
	err := pool.Submit(context.Background(), func(ctx context.Context) error {
		close(started)
		<-block
		return nil
	})
	require.NoError(t, err)
	<-started

	// The next submit must block until the slot frees up.
	submitted := make(chan struct{})
	go func() {
		pool.Submit(context.Background(), func(ctx context.Context) error { return nil })
		close(submitted)
	}()

	select {
	case <-submitted:
		t.Fatal("submit should have blocked while the pool was full")
	case <-time.After(50 * time.Millisecond):
	}

	close(block)

	select {
	case <-submitted:
	case <-time.After(time.Second):
		t.Fatal("submit did not unblock after the slot freed")
	}

	pool.Wait()
}

func TestWorkerPool_PanicRecovery(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Shutdown()

	err := pool.Submit(context.Background(), func(ctx context.Context) error {
		panic("tick exploded")
	})
	require.NoError(t, err)

	pool.Wait()

	m := pool.Metrics()
	assert.EqualValues(t, 1, m.Panics)
	assert.EqualValues(t, 1, m.Failed)

	// The pool keeps working after a panic.
	var ran int64
	err = pool.Submit(context.Background(), func(ctx context.Context) error {
		atomic.AddInt64(&ran, 1)
		return nil
	})
	require.NoError(t, err)

	pool.Wait()
	assert.EqualValues(t, 1, atomic.LoadInt64(&ran))
}

func TestWorkerPool_SubmitContextCancelled(t *testing.T) {
	pool := NewWorkerPool(1)
	defer pool.Shutdown()

	block := make(chan struct{})
	require.NoError(t, pool.Submit(context.Background(), func(ctx context.Context) error {
		<-block
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- pool.Submit(ctx, func(ctx context.Context) error { return nil })
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("submit did not return after context cancellation")
	}

	close(block)
	pool.Wait()
}

func TestWorkerPool_Shutdown(t *testing.T) {
	pool := NewWorkerPool(2)

	var completed int64
	for range 5 {
		require.NoError(t, pool.Submit(context.Background(), func(ctx context.Context) error {
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt64(&completed, 1)
			return nil
		}))
	}

	// Shutdown waits for everything already submitted.
	pool.Shutdown()
	assert.EqualValues(t, 5, atomic.LoadInt64(&completed))

	err := pool.Submit(context.Background(), func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolShutdown)

	pool.Shutdown() // must not panic
}

func TestWorkerPool_MetricsCounts(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Shutdown()

	errRun := errors.New("run failed")
	for range 3 {
		require.NoError(t, pool.Submit(context.Background(), func(ctx context.Context) error { return nil }))
	}
	for range 2 {
		require.NoError(t, pool.Submit(context.Background(), func(ctx context.Context) error { return errRun }))
	}

	pool.Wait()

	m := pool.Metrics()
	assert.EqualValues(t, 3, m.Completed)
	assert.EqualValues(t, 2, m.Failed)
	assert.Zero(t, m.Active)
}
