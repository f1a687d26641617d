// Package streams wraps the Redis Streams commands used for source change events.
package streams

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// Message Redis Streams 消息
type Message struct {
	Stream string
	ID     string
	Values map[string]interface{}
}

// Publish 发布消息到 Redis Streams（值统一转为字符串）
func Publish(ctx context.Context, client redis.Cmdable, stream string, values map[string]interface{}) (string, error) {
	streamValues := make(map[string]interface{}, len(values))
	for k, v := range values {
		switch val := v.(type) {
		case string:
			streamValues[k] = val
		case []byte:
			streamValues[k] = string(val)
		case int, int32, int64:
			streamValues[k] = fmt.Sprintf("%d", val)
		case bool:
			streamValues[k] = fmt.Sprintf("%t", val)
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			streamValues[k] = string(b)
		}
	}
	return client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: streamValues,
	}).Result()
}

// PublishJSON 发布 JSON 消息（data 字段）
func PublishJSON(ctx context.Context, client redis.Cmdable, stream string, data interface{}) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return Publish(ctx, client, stream, map[string]interface{}{
		"data":      string(b),
		"timestamp": time.Now().Unix(),
	})
}

// ReadGroup reads new messages for a consumer, blocking up to block. A timeout yields no messages.
func ReadGroup(ctx context.Context, client redis.Cmdable, stream, group, consumer string, count int64, block time.Duration) ([]Message, error) {
	return readGroup(ctx, client, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	})
}

// ReadPending re-reads messages already delivered to consumer but not yet
// acked. Each read counts as another delivery. It never blocks.
func ReadPending(ctx context.Context, client redis.Cmdable, stream, group, consumer string, count int64) ([]Message, error) {
	return readGroup(ctx, client, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, "0"},
		Count:    count,
		Block:    -1,
	})
}

func readGroup(ctx context.Context, client redis.Cmdable, args *redis.XReadGroupArgs) ([]Message, error) {
	res, err := client.XReadGroup(ctx, args).Result()
	if err != nil {
		if err == redis.Nil {
			return []Message{}, nil
		}
		return nil, err
	}

	var messages []Message
	for _, s := range res {
		for _, msg := range s.Messages {
			messages = append(messages, Message{
				Stream: s.Stream,
				ID:     msg.ID,
				Values: msg.Values,
			})
		}
	}
	return messages, nil
}

// DeliveryCounts 返回 consumer 未确认消息的投递次数（message ID -> count）
func DeliveryCounts(ctx context.Context, client redis.Cmdable, stream, group, consumer string, count int64) (map[string]int64, error) {
	pending, err := client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream:   stream,
		Group:    group,
		Start:    "-",
		End:      "+",
		Count:    count,
		Consumer: consumer,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return map[string]int64{}, nil
		}
		return nil, err
	}
	counts := make(map[string]int64, len(pending))
	for _, p := range pending {
		counts[p.ID] = p.RetryCount
	}
	return counts, nil
}

// Ack 确认消息
func Ack(ctx context.Context, client redis.Cmdable, stream, group string, ids ...string) error {
	return client.XAck(ctx, stream, group, ids...).Err()
}

// CreateConsumerGroup creates the group (and the stream) when missing.
func CreateConsumerGroup(ctx context.Context, client redis.Cmdable, stream, group string) error {
	err := client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}
