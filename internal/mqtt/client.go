package mqtt

import (
	"context"
	"fmt"
	"time"

	"secretariat-data/internal/config"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	statusOnline   = "online"
	statusOffline  = "offline"
	defaultPublish = 5 * time.Second
)

// Publisher is the part of the client the event publisher needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error
}

// Client is a publish-only broker connection. It keeps a retained
// "<topic>/status" message (online/offline, the latter as last will) so
// subscribers can tell when credential events may have been missed.
type Client struct {
	client paho.Client
	logger *zap.Logger
}

// NewClient connects to cfg.Broker and blocks until the first connect succeeds.
func NewClient(cfg *config.MQTTConfig, logger *zap.Logger) (*Client, error) {
	statusTopic := cfg.Topic + "/status"

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetConnectTimeout(10*time.Second).
		SetWill(statusTopic, statusOffline, cfg.QoS, true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetOnConnectHandler(func(c paho.Client) {
		// runs on every (re)connect
		c.Publish(statusTopic, cfg.QoS, true, statusOnline)
		logger.Info("MQTT connected", zap.String("broker", cfg.Broker))
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	})

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.Broker, token.Error())
	}
	return &Client{client: client, logger: logger}, nil
}

// Publish waits for the broker until ctx's deadline, or 5s without one.
func (c *Client) Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error {
	wait := defaultPublish
	if deadline, ok := ctx.Deadline(); ok {
		wait = time.Until(deadline)
	}
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(wait) {
		return fmt.Errorf("timed out publishing to topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}
	return nil
}

// Disconnect waits up to 250ms for in-flight work.
func (c *Client) Disconnect() {
	c.client.Disconnect(250)
}

func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}
