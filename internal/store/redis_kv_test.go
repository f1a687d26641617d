package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisKV) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewRedisKV(client)
}

func TestRedisKV(t *testing.T) {
	mr, kv := setupTestRedis(t)
	ctx := context.Background()

	_, err := kv.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, kv.Set(ctx, "credentials:resync:last", `{"canceled":false}`, time.Hour))
	v, err := kv.Get(ctx, "credentials:resync:last")
	require.NoError(t, err)
	assert.Equal(t, `{"canceled":false}`, v)

	ok, err := kv.SetNX(ctx, "lock:member:7", "tok-a", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = kv.SetNX(ctx, "lock:member:7", "tok-b", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = kv.DelIfEqual(ctx, "lock:member:7", "tok-b")
	require.NoError(t, err)
	assert.False(t, ok, "foreign token must not release the lock")
	assert.True(t, mr.Exists("lock:member:7"))

	ok, err = kv.DelIfEqual(ctx, "lock:member:7", "tok-a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, mr.Exists("lock:member:7"))
}

func TestKVLocker_Redis_LeaseExpiry(t *testing.T) {
	mr, kv := setupTestRedis(t)
	l := NewKVLocker(kv, "lock:", time.Second)
	ctx := context.Background()

	_, err := l.Lock(ctx, "district_chair:1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	unlock, err := l.Lock(ctx, "district_chair:1")
	require.NoError(t, err)
	unlock()
	assert.False(t, mr.Exists("lock:district_chair:1"))
}
