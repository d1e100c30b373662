package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/saviobatista/iss-tracker/internal/types"
)

const (
	TopicTelemetry = "iss/telemetry"

	connectTimeout = 10 * time.Second
)

// PahoClient is the subset of the paho client used here (useful for testing)
type PahoClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// Client publishes samples to an MQTT broker
type Client struct {
	client PahoClient
	topic  string
}

// New connects to broker and returns a publishing client
func New(broker, clientID string) (*Client, error) {
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: timeout", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", broker, err)
	}

	return &Client{client: client, topic: TopicTelemetry}, nil
}

// NewWithClient wraps an existing paho client
func NewWithClient(client PahoClient, topic string) *Client {
	if topic == "" {
		topic = TopicTelemetry
	}
	return &Client{client: client, topic: topic}
}

// Name identifies the client as a sample sink
func (c *Client) Name() string {
	return "mqtt"
}

// Topic returns the topic samples are published on
func (c *Client) Topic() string {
	return c.topic
}

// PublishSample publishes a retained sample so late subscribers get the
// latest position immediately.
func (c *Client) PublishSample(ctx context.Context, sample *types.PublishedSample) error {
	payload, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("failed to marshal sample: %w", err)
	}

	token := c.client.Publish(c.topic, 0, true, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("failed to publish sample: %w", ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish sample: %w", err)
	}
	return nil
}

// Close disconnects from the broker
func (c *Client) Close() {
	c.client.Disconnect(250)
}
