package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Locker serializes work on one key. The returned unlock must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// LocalLocker is an in-process keyed mutex.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: map[string]*keyLock{}}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, kl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.ch
			l.release(key, kl)
		})
	}, nil
}

func (l *LocalLocker) release(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// KVLocker is a lease lock shared by every instance using the same KV.
// A holder that outlives ttl loses the lease.
type KVLocker struct {
	kv     KV
	prefix string
	ttl    time.Duration
	// retry backoff bounds
	minWait time.Duration
	maxWait time.Duration
}

// NewKVLocker 创建基于 KV 的分布式锁
func NewKVLocker(kv KV, prefix string, ttl time.Duration) *KVLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &KVLocker{
		kv:      kv,
		prefix:  prefix,
		ttl:     ttl,
		minWait: 20 * time.Millisecond,
		maxWait: 500 * time.Millisecond,
	}
}

func (l *KVLocker) Lock(ctx context.Context, key string) (func(), error) {
	fullKey := l.prefix + key
	token := uuid.NewString()
	wait := l.minWait
	for {
		ok, err := l.kv.SetNX(ctx, fullKey, token, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", fullKey, err)
		}
		if ok {
			break
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		wait *= 2
		if wait > l.maxWait {
			wait = l.maxWait
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// the caller's context may already be canceled
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_, _ = l.kv.DelIfEqual(ctx, fullKey, token)
		})
	}, nil
}
