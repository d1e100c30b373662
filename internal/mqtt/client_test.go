package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/saviobatista/iss-tracker/internal/testutils"
	"github.com/saviobatista/iss-tracker/internal/types"
)

type mockToken struct {
	done chan struct{}
	err  error
}

func completedToken(err error) *mockToken {
	t := &mockToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *mockToken) Wait() bool {
	<-t.done
	return true
}

func (t *mockToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *mockToken) Done() <-chan struct{} { return t.done }

func (t *mockToken) Error() error { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type mockPaho struct {
	token        paho.Token
	published    []published
	disconnected bool
}

func (m *mockPaho) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	m.published = append(m.published, published{topic, qos, retained, payload.([]byte)})
	return m.token
}

func (m *mockPaho) Disconnect(quiesce uint) {
	m.disconnected = true
}

func TestNew_UnreachableBroker(t *testing.T) {
	client, err := New("tcp://127.0.0.1:1", "test")
	if err == nil {
		t.Error("Expected error connecting to closed port")
		client.Close()
		return
	}
	if client != nil {
		t.Error("Expected nil client on error")
	}
}

func TestNewWithClient_DefaultTopic(t *testing.T) {
	c := NewWithClient(&mockPaho{}, "")
	if c.Topic() != TopicTelemetry {
		t.Errorf("Expected default topic %s, got %s", TopicTelemetry, c.Topic())
	}
	if c.Name() != "mqtt" {
		t.Errorf("Expected name 'mqtt', got %s", c.Name())
	}
}

func TestClient_PublishSample(t *testing.T) {
	mock := &mockPaho{token: completedToken(nil)}
	c := NewWithClient(mock, "")

	sample := testutils.MockPublishedSample("run-1", 51.5, -0.12)
	if err := c.PublishSample(context.Background(), sample); err != nil {
		t.Fatalf("PublishSample() failed: %v", err)
	}

	if len(mock.published) != 1 {
		t.Fatalf("Expected 1 publish, got %d", len(mock.published))
	}
	p := mock.published[0]
	if p.topic != "iss/telemetry" || p.qos != 0 || !p.retained {
		t.Errorf("Unexpected publish parameters: topic=%s qos=%d retained=%v", p.topic, p.qos, p.retained)
	}

	var got types.PublishedSample
	if err := json.Unmarshal(p.payload, &got); err != nil {
		t.Fatalf("Payload is not JSON: %v", err)
	}
	if got.RunID != "run-1" || got.Sample.Latitude != 51.5 {
		t.Errorf("Unexpected payload: %+v", got)
	}
}

func TestClient_PublishSample_Errors(t *testing.T) {
	t.Run("broker error", func(t *testing.T) {
		brokerErr := errors.New("not connected")
		c := NewWithClient(&mockPaho{token: completedToken(brokerErr)}, "")

		err := c.PublishSample(context.Background(), testutils.MockPublishedSample("r", 1, 2))
		if !errors.Is(err, brokerErr) {
			t.Errorf("Expected wrapped broker error, got %v", err)
		}
	})

	t.Run("context cancelled while waiting", func(t *testing.T) {
		pending := &mockToken{done: make(chan struct{})}
		c := NewWithClient(&mockPaho{token: pending}, "")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		err := c.PublishSample(ctx, testutils.MockPublishedSample("r", 1, 2))
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Expected deadline exceeded, got %v", err)
		}
	})
}

func TestClient_Close(t *testing.T) {
	mock := &mockPaho{}
	NewWithClient(mock, "").Close()
	if !mock.disconnected {
		t.Error("Expected Close to disconnect")
	}
}
