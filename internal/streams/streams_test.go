package streams

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *redis.Client {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestPublishAndReadGroup(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, CreateConsumerGroup(ctx, client, "changes", "g1"))
	// second call hits BUSYGROUP and is ignored
	require.NoError(t, CreateConsumerGroup(ctx, client, "changes", "g1"))

	id, err := PublishJSON(ctx, client, "changes", map[string]string{"kind": "member", "ref": "7"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = Publish(ctx, client, "changes", map[string]interface{}{"kind": "town_chair", "ref": 3, "force": true})
	require.NoError(t, err)

	msgs, err := ReadGroup(ctx, client, "changes", "g1", "c1", 10, 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, id, msgs[0].ID)

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["data"].(string)), &payload))
	assert.Equal(t, "7", payload["ref"])
	assert.Equal(t, "3", msgs[1].Values["ref"])
	assert.Equal(t, "true", msgs[1].Values["force"])

	require.NoError(t, Ack(ctx, client, "changes", "g1", msgs[0].ID, msgs[1].ID))
	pending, err := client.XPending(ctx, "changes", "g1").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending.Count)
}

func TestReadGroup_Empty(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()
	require.NoError(t, CreateConsumerGroup(ctx, client, "changes", "g1"))

	msgs, err := ReadGroup(ctx, client, "changes", "g1", "c1", 10, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestReadPending_RedeliversUnacked(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()
	require.NoError(t, CreateConsumerGroup(ctx, client, "changes", "g1"))

	first, err := Publish(ctx, client, "changes", map[string]interface{}{"kind": "member", "ref": 1})
	require.NoError(t, err)
	second, err := Publish(ctx, client, "changes", map[string]interface{}{"kind": "member", "ref": 2})
	require.NoError(t, err)

	msgs, err := ReadGroup(ctx, client, "changes", "g1", "c1", 10, 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.NoError(t, Ack(ctx, client, "changes", "g1", first))

	// another consumer's pending list is separate
	other, err := ReadPending(ctx, client, "changes", "g1", "c2", 10)
	require.NoError(t, err)
	assert.Empty(t, other)

	pending, err := ReadPending(ctx, client, "changes", "g1", "c1", 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second, pending[0].ID)
	assert.Equal(t, "2", pending[0].Values["ref"])

	counts, err := DeliveryCounts(ctx, client, "changes", "g1", "c1", 10)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{second: 2}, counts)
}
