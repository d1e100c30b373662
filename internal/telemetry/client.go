package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/saviobatista/iss-tracker/internal/types"
)

const (
	// DefaultURL is the wheretheiss.at endpoint for NORAD id 25544
	DefaultURL = "https://api.wheretheiss.at/v1/satellites/25544"

	maxBodySize = 1 << 20
)

// Kind classifies a fetch failure
type Kind int

const (
	KindNetwork Kind = iota
	KindStatus
	KindDecode
	KindField
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindStatus:
		return "status"
	case KindDecode:
		return "decode"
	case KindField:
		return "field"
	default:
		return "unknown"
	}
}

// FetchError describes why a sample could not be retrieved
type FetchError struct {
	Kind       Kind
	StatusCode int
	Status     string
	Field      string
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindStatus:
		return fmt.Sprintf("API error: %s", e.Status)
	case KindField:
		if e.Err != nil {
			return fmt.Sprintf("invalid field %q: %v", e.Field, e.Err)
		}
		return fmt.Sprintf("missing field %q", e.Field)
	case KindDecode:
		return fmt.Sprintf("failed to decode response: %v", e.Err)
	default:
		return fmt.Sprintf("request failed: %v", e.Err)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// HTTPDoer is the subset of *http.Client used by Client
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client fetches one telemetry sample per call
type Client struct {
	url     string
	http    HTTPDoer
	timeout time.Duration
	now     func() time.Time
}

// New creates a telemetry client. A zero timeout leaves requests bounded
// only by the caller's context.
func New(url string, timeout time.Duration) *Client {
	return NewWithHTTPClient(url, timeout, &http.Client{})
}

// NewWithHTTPClient creates a telemetry client with a custom HTTP client
func NewWithHTTPClient(url string, timeout time.Duration, doer HTTPDoer) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{
		url:     url,
		http:    doer,
		timeout: timeout,
		now:     time.Now,
	}
}

// URL returns the endpoint polled by the client
func (c *Client) URL() string {
	return c.url
}

var requiredFields = []string{"latitude", "longitude", "velocity", "altitude"}

// Fetch performs one GET against the endpoint. Every failure is returned as
// a *FetchError; no retry is attempted.
func (c *Client) Fetch(ctx context.Context) (*types.TelemetrySample, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, Err: fmt.Errorf("failed to build request: %w", err)}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		status := resp.Status
		if status == "" {
			status = fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		}
		return nil, &FetchError{Kind: KindStatus, StatusCode: resp.StatusCode, Status: status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, Err: fmt.Errorf("failed to read body: %w", err)}
	}

	return c.decode(body)
}

func (c *Client) decode(body []byte) (*types.TelemetrySample, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &FetchError{Kind: KindDecode, Err: err}
	}
	if raw == nil {
		return nil, &FetchError{Kind: KindDecode, Err: errors.New("body is not a JSON object")}
	}

	values := make(map[string]float64, len(requiredFields))
	for _, name := range requiredFields {
		msg, ok := raw[name]
		if !ok || string(msg) == "null" {
			return nil, &FetchError{Kind: KindField, Field: name}
		}
		var v float64
		if err := json.Unmarshal(msg, &v); err != nil {
			return nil, &FetchError{Kind: KindField, Field: name, Err: err}
		}
		values[name] = v
	}

	sample := &types.TelemetrySample{
		Latitude:  values["latitude"],
		Longitude: values["longitude"],
		Velocity:  values["velocity"],
		Altitude:  values["altitude"],
		FetchedAt: c.now().UTC(),
	}

	// optional fields never fail a fetch
	optional(raw, "visibility", &sample.Visibility)
	optional(raw, "footprint", &sample.Footprint)
	optional(raw, "timestamp", &sample.Timestamp)

	return sample, nil
}

func optional(raw map[string]json.RawMessage, name string, target interface{}) {
	if msg, ok := raw[name]; ok {
		_ = json.Unmarshal(msg, target)
	}
}
