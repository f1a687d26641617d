package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"secretariat-data/internal/domain"
	"secretariat-data/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, topic string, qos byte, _ bool, payload []byte) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{topic: topic, qos: qos, payload: payload})
	return nil
}

func TestCredentialEventPublisher(t *testing.T) {
	fake := &fakePublisher{}
	p := NewCredentialEventPublisher(fake, "secretariat/credentials", 1)

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	err := p.PublishCredentialEvent(context.Background(), service.CredentialEvent{
		Type:     service.CredentialCreated,
		Kind:     domain.SourceTownChair,
		Ref:      "3",
		Username: "merkez",
		At:       at,
	})
	require.NoError(t, err)
	require.Len(t, fake.msgs, 1)
	assert.Equal(t, "secretariat/credentials/town_chair", fake.msgs[0].topic)
	assert.Equal(t, byte(1), fake.msgs[0].qos)

	var got map[string]any
	require.NoError(t, json.Unmarshal(fake.msgs[0].payload, &got))
	assert.Equal(t, "credential.created", got["type"])
	assert.Equal(t, "merkez", got["username"])
	assert.Equal(t, "3", got["ref"])
}

func TestCredentialEventPublisher_Error(t *testing.T) {
	fake := &fakePublisher{err: errors.New("not connected")}
	p := NewCredentialEventPublisher(fake, "secretariat/credentials", 0)

	err := p.PublishCredentialEvent(context.Background(), service.CredentialEvent{Type: service.CredentialDeleted})
	assert.EqualError(t, err, "not connected")
}
