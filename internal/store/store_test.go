package store

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

func TestMemoryKV(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	kv.now = func() time.Time { return now }

	_, err := kv.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, kv.Set(ctx, "k", "v", time.Minute))
	v, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	ok, err := kv.SetNX(ctx, "k", "other", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, _ = kv.DelIfEqual(ctx, "k", "other")
	assert.False(t, ok)
	ok, _ = kv.DelIfEqual(ctx, "k", "v")
	assert.True(t, ok)

	ok, _ = kv.SetNX(ctx, "lease", "a", time.Second)
	assert.True(t, ok)
	now = now.Add(2 * time.Second)
	ok, _ = kv.SetNX(ctx, "lease", "b", time.Second)
	assert.True(t, ok, "expired lease can be taken")
}

func TestLocalLocker_MutualExclusion(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	var inside int32
	var maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "member:7")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)

	l.mu.Lock()
	assert.Empty(t, l.locks, "idle keys are released")
	l.mu.Unlock()
}

func TestLocalLocker_DifferentKeysDoNotBlock(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	unlockA, err := l.Lock(ctx, "a")
	require.NoError(t, err)
	defer unlockA()

	ctx2, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx2, "b")
	require.NoError(t, err)
	unlockB()
}

func TestLocalLocker_ContextCanceled(t *testing.T) {
	l := NewLocalLocker()
	unlock, err := l.Lock(context.Background(), "x")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "x")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // second call is a no-op
	again, err := l.Lock(context.Background(), "x")
	require.NoError(t, err)
	again()
}

func TestKVLocker(t *testing.T) {
	kv := NewMemoryKV()
	l := NewKVLocker(kv, "lock:", time.Minute)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "town_chair:3")
	require.NoError(t, err)
	v, err := kv.Get(ctx, "lock:town_chair:3")
	require.NoError(t, err)
	assert.NotEmpty(t, v)

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = l.Lock(waitCtx, "town_chair:3")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	acquired := make(chan struct{})
	go func() {
		u, err := l.Lock(ctx, "town_chair:3")
		if err == nil {
			u()
		}
		close(acquired)
	}()
	unlock()
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never acquired the lock")
	}

	_, err = kv.Get(ctx, "lock:town_chair:3")
	assert.ErrorIs(t, err, ErrMiss)
}

type failingKV struct{ KV }

func (failingKV) SetNX(context.Context, string, string, time.Duration) (bool, error) {
	return false, errors.New("redis down")
}

func TestKVLocker_BackendError(t *testing.T) {
	l := NewKVLocker(failingKV{}, "lock:", time.Second)
	_, err := l.Lock(context.Background(), "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
}
