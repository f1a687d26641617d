package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	"secretariat-data/internal/service"
)

// CredentialEventPublisher publishes credential events to <topic>/<kind>.
type CredentialEventPublisher struct {
	pub   Publisher
	topic string
	qos   byte
}

func NewCredentialEventPublisher(pub Publisher, topic string, qos byte) *CredentialEventPublisher {
	return &CredentialEventPublisher{pub: pub, topic: topic, qos: qos}
}

var _ service.EventPublisher = (*CredentialEventPublisher)(nil)

func (p *CredentialEventPublisher) PublishCredentialEvent(ctx context.Context, ev service.CredentialEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal credential event: %w", err)
	}
	topic := p.topic
	if ev.Kind != "" {
		topic = p.topic + "/" + string(ev.Kind)
	}
	return p.pub.Publish(ctx, topic, p.qos, false, payload)
}
