package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrite_IsExclusive(t *testing.T) {
	reg := NewRegistry()
	ctx := context.Background()

	var (
		inside  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := reg.Call(ctx, "acct1", Write, func(context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxSeen)
					if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen)
	assert.Zero(t, reg.Len(), "entry must be evicted once nobody holds or waits")
}

func TestRead_IsShared(t *testing.T) {
	reg := NewRegistry()
	ctx := context.Background()

	_, release1, err := reg.Acquire(ctx, "acct1", Read)
	require.NoError(t, err)
	defer release1()

	done := make(chan struct{})
	go func() {
		_, release2, err := reg.Acquire(ctx, "acct1", Read)
		assert.NoError(t, err)
		release2()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second reader blocked behind first reader")
	}
}

func TestWrite_WaitsForReader(t *testing.T) {
	reg := NewRegistry()
	ctx := context.Background()

	_, releaseRead, err := reg.Acquire(ctx, "acct1", Read)
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		_, release, err := reg.Acquire(ctx, "acct1", Write)
		assert.NoError(t, err)
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("writer acquired while a reader held the key")
	case <-time.After(20 * time.Millisecond):
	}

	releaseRead()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("writer never acquired after reader released")
	}
}

func TestDifferentKeys_DoNotBlock(t *testing.T) {
	reg := NewRegistry()
	ctx := context.Background()

	_, release1, err := reg.Acquire(ctx, "acct1", Write)
	require.NoError(t, err)
	defer release1()

	_, release2, err := reg.Acquire(ctx, "acct2", Write)
	require.NoError(t, err)
	release2()

	assert.Equal(t, 1, reg.Len())
}

func TestReentrant_SameContext(t *testing.T) {
	reg := NewRegistry()

	ctx, release, err := reg.Acquire(context.Background(), "acct1", Write)
	require.NoError(t, err)

	// Nested Write and Read through the owning context are no-ops
	inner, releaseInner, err := reg.Acquire(ctx, "acct1", Write)
	require.NoError(t, err)
	_, releaseRead, err := reg.Acquire(inner, "acct1", Read)
	require.NoError(t, err)
	releaseRead()
	releaseInner()

	assert.True(t, reg.Holds(ctx, "acct1", Write))
	assert.Equal(t, 1, reg.Len())

	release()
	release() // second call is ignored
	assert.Zero(t, reg.Len())
}

func TestUpgrade_FailsFast(t *testing.T) {
	reg := NewRegistry()

	ctx, release, err := reg.Acquire(context.Background(), "acct1", Read)
	require.NoError(t, err)
	defer release()

	_, _, err = reg.Acquire(ctx, "acct1", Write)
	require.ErrorIs(t, err, ErrLockUpgrade)
}

func TestAcquire_CancelledContext(t *testing.T) {
	reg := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, release, err := reg.Acquire(ctx, "acct1", Write)
	require.ErrorIs(t, err, context.Canceled)
	release()
	assert.Zero(t, reg.Len())
}

func TestCall_ReleasesOnError(t *testing.T) {
	reg := NewRegistry()
	ctx := context.Background()

	err := reg.Call(ctx, "acct1", Write, func(context.Context) error {
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	// Key is free again
	_, release, err := reg.Acquire(ctx, "acct1", Write)
	require.NoError(t, err)
	release()
	assert.Zero(t, reg.Len())
}
