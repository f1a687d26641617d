package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"secretariat-data/internal/domain"
	"secretariat-data/internal/service"
	"secretariat-data/internal/streams"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// SourceChangeEvent 来源实体变更事件
type SourceChangeEvent struct {
	Kind      domain.SourceKind `json:"kind"`
	Ref       int64             `json:"ref"`
	Timestamp int64             `json:"timestamp"`
}

// SourceEventPublisher queues source changes on a Redis stream instead of
// reconciling in the caller's request.
type SourceEventPublisher struct {
	client redis.Cmdable
	stream string
	logger *zap.Logger
}

// NewSourceEventPublisher 创建来源变更事件发布者
func NewSourceEventPublisher(client redis.Cmdable, stream string, logger *zap.Logger) *SourceEventPublisher {
	return &SourceEventPublisher{client: client, stream: stream, logger: logger}
}

var _ service.SourceChangeNotifier = (*SourceEventPublisher)(nil)

func (p *SourceEventPublisher) SourceChanged(ctx context.Context, kind domain.SourceKind, id int64) error {
	if !kind.Valid() || id <= 0 {
		return fmt.Errorf("%w: %s %d", service.ErrInvalidInput, kind, id)
	}
	msgID, err := streams.PublishJSON(ctx, p.client, p.stream, SourceChangeEvent{
		Kind:      kind,
		Ref:       id,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to publish source change: %w", err)
	}
	p.logger.Debug("Source change queued",
		zap.String("source_kind", string(kind)),
		zap.Int64("source_ref", id),
		zap.String("message_id", msgID),
	)
	return nil
}

// SourceReconciler 增量协调入口
type SourceReconciler interface {
	ReconcileOne(ctx context.Context, kind domain.SourceKind, id int64) (service.Outcome, error)
}

// SourceEventConsumer 来源变更事件消费者
type SourceEventConsumer struct {
	client       redis.Cmdable
	reconciler   SourceReconciler
	logger       *zap.Logger
	stream       string
	groupName    string
	consumerName string
	batchSize    int64
	block        time.Duration
	// 超过该投递次数的消息转入死信流（<stream>:dead）并确认
	maxDeliveries int64
}

// NewSourceEventConsumer 创建事件消费者
func NewSourceEventConsumer(
	client redis.Cmdable,
	reconciler SourceReconciler,
	logger *zap.Logger,
	stream string,
	groupName string,
	consumerName string,
	batchSize int64,
) *SourceEventConsumer {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &SourceEventConsumer{
		client:        client,
		reconciler:    reconciler,
		logger:        logger,
		stream:        stream,
		groupName:     groupName,
		consumerName:  consumerName,
		batchSize:     batchSize,
		block:         5 * time.Second,
		maxDeliveries: 5,
	}
}

// Start 启动事件消费者（阻塞直到 ctx 结束）
func (c *SourceEventConsumer) Start(ctx context.Context) error {
	if err := streams.CreateConsumerGroup(ctx, c.client, c.stream, c.groupName); err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("Source event consumer started",
		zap.String("stream", c.stream),
		zap.String("consumer_group", c.groupName),
		zap.String("consumer_name", c.consumerName),
	)

	// 消费事件（带指数退避）
	backoffDuration := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := c.consumeEvents(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Failed to consume source events",
				zap.Error(err),
				zap.Duration("backoff", backoffDuration),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoffDuration):
				backoffDuration *= 2
				if backoffDuration > maxBackoff {
					backoffDuration = maxBackoff
				}
			}
			continue
		}
		backoffDuration = time.Second
	}
}

// consumeEvents retries this consumer's unacked messages, then reads one new
// batch. A message is acked once reconciled; failures are retried next round.
func (c *SourceEventConsumer) consumeEvents(ctx context.Context) error {
	if err := c.retryPending(ctx); err != nil {
		return err
	}

	messages, err := streams.ReadGroup(ctx, c.client, c.stream, c.groupName, c.consumerName, c.batchSize, c.block)
	if err != nil {
		return fmt.Errorf("failed to read from stream: %w", err)
	}
	for _, msg := range messages {
		c.handle(ctx, msg)
	}
	return nil
}

func (c *SourceEventConsumer) retryPending(ctx context.Context) error {
	messages, err := streams.ReadPending(ctx, c.client, c.stream, c.groupName, c.consumerName, c.batchSize)
	if err != nil {
		return fmt.Errorf("failed to read pending messages: %w", err)
	}
	if len(messages) == 0 {
		return nil
	}
	// pending entries come back in ID order, so the first len(messages) counts match
	deliveries, err := streams.DeliveryCounts(ctx, c.client, c.stream, c.groupName, c.consumerName, int64(len(messages)))
	if err != nil {
		return fmt.Errorf("failed to read delivery counts: %w", err)
	}

	for _, msg := range messages {
		if n := deliveries[msg.ID]; n > c.maxDeliveries {
			c.deadLetter(ctx, msg, n)
			continue
		}
		c.handle(ctx, msg)
	}
	return nil
}

func (c *SourceEventConsumer) handle(ctx context.Context, msg streams.Message) {
	ev, err := parseEvent(msg)
	if err != nil {
		// malformed messages can never succeed
		c.logger.Warn("Dropping malformed source event",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		c.ack(ctx, msg.ID)
		return
	}

	outcome, err := c.reconciler.ReconcileOne(ctx, ev.Kind, ev.Ref)
	if err != nil {
		c.logger.Error("Failed to reconcile source event",
			zap.String("message_id", msg.ID),
			zap.String("source_kind", string(ev.Kind)),
			zap.Int64("source_ref", ev.Ref),
			zap.Error(err),
		)
		return
	}
	c.logger.Debug("Source event reconciled",
		zap.String("message_id", msg.ID),
		zap.String("source_kind", string(ev.Kind)),
		zap.Int64("source_ref", ev.Ref),
		zap.String("outcome", string(outcome)),
	)
	c.ack(ctx, msg.ID)
}

// deadLetter copies msg to <stream>:dead and acks it. If the copy fails the
// message stays pending.
func (c *SourceEventConsumer) deadLetter(ctx context.Context, msg streams.Message, deliveries int64) {
	values := make(map[string]interface{}, len(msg.Values)+2)
	for k, v := range msg.Values {
		values[k] = v
	}
	values["message_id"] = msg.ID
	values["deliveries"] = deliveries

	if _, err := streams.Publish(ctx, c.client, c.deadStream(), values); err != nil {
		c.logger.Error("Failed to dead-letter source event",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		return
	}
	c.logger.Error("Source event dead-lettered after repeated failures",
		zap.String("message_id", msg.ID),
		zap.Int64("deliveries", deliveries),
		zap.String("dead_stream", c.deadStream()),
	)
	c.ack(ctx, msg.ID)
}

func (c *SourceEventConsumer) deadStream() string {
	return c.stream + ":dead"
}

func (c *SourceEventConsumer) ack(ctx context.Context, id string) {
	if err := streams.Ack(ctx, c.client, c.stream, c.groupName, id); err != nil {
		c.logger.Warn("Failed to ack message",
			zap.String("message_id", id),
			zap.Error(err),
		)
	}
}

// parseEvent accepts the JSON "data" field or flat kind/ref fields.
func parseEvent(msg streams.Message) (*SourceChangeEvent, error) {
	ev := &SourceChangeEvent{}
	if data, ok := msg.Values["data"].(string); ok {
		if err := json.Unmarshal([]byte(data), ev); err != nil {
			return nil, fmt.Errorf("invalid event data: %w", err)
		}
	} else {
		kind, _ := msg.Values["kind"].(string)
		ref, _ := msg.Values["ref"].(string)
		id, err := strconv.ParseInt(ref, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid event ref %q", ref)
		}
		ev.Kind = domain.SourceKind(kind)
		ev.Ref = id
	}
	if !ev.Kind.Valid() || ev.Ref <= 0 {
		return nil, fmt.Errorf("invalid event: kind=%q ref=%d", ev.Kind, ev.Ref)
	}
	return ev, nil
}
