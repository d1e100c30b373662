package testutils

import (
	"context"
	"fmt"
	"time"

	"github.com/saviobatista/iss-tracker/internal/types"
)

// MockSample creates a telemetry sample for testing
func MockSample(lat, lon, velocity, altitude float64) *types.TelemetrySample {
	return &types.TelemetrySample{
		Latitude:   lat,
		Longitude:  lon,
		Velocity:   velocity,
		Altitude:   altitude,
		Visibility: "daylight",
		Timestamp:  time.Now().Unix(),
		FetchedAt:  time.Now().UTC(),
	}
}

// MockPublishedSample wraps a mock sample with a run id
func MockPublishedSample(runID string, lat, lon float64) *types.PublishedSample {
	return &types.PublishedSample{
		RunID:  runID,
		Sample: *MockSample(lat, lon, 27600, 420),
	}
}

// MockResponse renders the JSON body the position API returns for a sample
func MockResponse(lat, lon, velocity, altitude float64) string {
	return fmt.Sprintf(`{"name":"iss","id":25544,"latitude":%g,"longitude":%g,"altitude":%g,"velocity":%g,"visibility":"daylight","footprint":4500.5,"timestamp":%d,"units":"kilometers"}`,
		lat, lon, altitude, velocity, time.Now().Unix())
}

// WaitForCondition waits for a condition to be true with timeout
func WaitForCondition(condition func() bool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if condition() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for condition")
		case <-ticker.C:
		}
	}
}
