package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/saviobatista/iss-tracker/internal/types"
)

const (
	StreamTelemetry  = "ISS_TELEMETRY"
	SubjectTelemetry = "iss.telemetry"
)

// Client represents a NATS client
type Client struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// New creates a new NATS client
func New(url string) (*Client, error) {
	nc, err := nats.Connect(url, nats.Name("iss-tracker"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	// Create stream if it doesn't exist
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     StreamTelemetry,
		Subjects: []string{SubjectTelemetry},
		Storage:  nats.FileStorage,
		MaxAge:   24 * time.Hour,
	})
	if err != nil && !strings.Contains(err.Error(), "stream name already in use") {
		nc.Close()
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	return &Client{
		conn: nc,
		js:   js,
	}, nil
}

// Name identifies the client as a sample sink
func (c *Client) Name() string {
	return "nats"
}

// PublishSample publishes a telemetry sample to the stream
func (c *Client) PublishSample(ctx context.Context, sample *types.PublishedSample) error {
	data, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("failed to marshal sample: %w", err)
	}

	_, err = c.js.Publish(SubjectTelemetry, data, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to publish sample: %w", err)
	}

	return nil
}

// SubscribeSamples subscribes to published telemetry samples
func (c *Client) SubscribeSamples(handler func(*types.PublishedSample)) error {
	_, err := c.js.Subscribe(SubjectTelemetry, func(msg *nats.Msg) {
		var sample types.PublishedSample
		if err := json.Unmarshal(msg.Data, &sample); err != nil {
			log.Printf("Error unmarshaling sample: %v", err)
			return
		}
		handler(&sample)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	return nil
}

// Close closes the NATS connection
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}
