package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/saviobatista/iss-tracker/internal/types"
)

const (
	KeyLatestSample = "iss:sample:latest"
	KeyViewState    = "iss:view"

	stateTTL      = time.Hour
	notifyTimeout = 2 * time.Second
)

// RedisClientInterface defines the Redis operations used by our client
type RedisClientInterface interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Close() error
}

// Client manages Redis connections and operations
type Client struct {
	client RedisClientInterface
}

// New creates a new Redis client
func New(addr string) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "", // no password set
		DB:       0,  // use default DB
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{client: client}, nil
}

// NewWithClient creates a new Redis client with a custom RedisClientInterface (useful for testing)
func NewWithClient(client RedisClientInterface) *Client {
	return &Client{client: client}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}

// Name identifies the client as a sample sink
func (c *Client) Name() string {
	return "redis"
}

// PublishSample stores the sample as the latest known position
func (c *Client) PublishSample(ctx context.Context, sample *types.PublishedSample) error {
	return c.setData(ctx, KeyLatestSample, sample, "sample")
}

// GetLatestSample retrieves the latest sample. It returns nil if none is stored.
func (c *Client) GetLatestSample(ctx context.Context) (*types.PublishedSample, error) {
	var sample types.PublishedSample
	found, err := c.getData(ctx, KeyLatestSample, &sample, "sample")
	if err != nil || !found {
		return nil, err
	}
	return &sample, nil
}

// StoreViewState stores the current map viewport and marker
func (c *Client) StoreViewState(ctx context.Context, view types.ViewState) error {
	return c.setData(ctx, KeyViewState, view, "view state")
}

// GetViewState retrieves the stored view state. It returns nil if none is stored.
func (c *Client) GetViewState(ctx context.Context) (*types.ViewState, error) {
	var view types.ViewState
	found, err := c.getData(ctx, KeyViewState, &view, "view state")
	if err != nil || !found {
		return nil, err
	}
	return &view, nil
}

// Notify records the view after every successful tick
func (c *Client) Notify(update types.Update) {
	if !update.OK {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	if err := c.StoreViewState(ctx, update.View); err != nil {
		log.Printf("Warning: Failed to store view state in Redis: %v", err)
	}
}

func (c *Client) setData(ctx context.Context, key string, value interface{}, dataType string) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", dataType, err)
	}

	if err := c.client.Set(ctx, key, data, stateTTL).Err(); err != nil {
		return fmt.Errorf("failed to store %s: %w", dataType, err)
	}
	return nil
}

// getData retrieves data from Redis and unmarshals it into the target
func (c *Client) getData(ctx context.Context, key string, target interface{}, dataType string) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil // Data not found
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s data: %w", dataType, err)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s data: %w", dataType, err)
	}

	return true, nil
}
