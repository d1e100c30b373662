package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/saviobatista/iss-tracker/internal/stats"
	"github.com/saviobatista/iss-tracker/internal/types"
)

type Client struct {
	db *sql.DB
}

// New creates a new database client
func New(connStr string) (*Client, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	return &Client{db: db}, nil
}

// NewWithDB wraps an existing connection pool
func NewWithDB(db *sql.DB) *Client {
	return &Client{db: db}
}

// Ping verifies the database is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.db.Close()
}

// DB exposes the underlying pool for migrations
func (c *Client) DB() *sql.DB {
	return c.db
}

// Name identifies the client as a sample sink
func (c *Client) Name() string {
	return "postgres"
}

// PublishSample appends a sample to the telemetry log
func (c *Client) PublishSample(ctx context.Context, sample *types.PublishedSample) error {
	query := `
		INSERT INTO telemetry_samples (
			time, run_id, latitude, longitude, velocity, altitude,
			visibility, footprint, reported_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	s := sample.Sample

	var reportedAt sql.NullTime
	if s.Timestamp > 0 {
		reportedAt = sql.NullTime{Time: time.Unix(s.Timestamp, 0).UTC(), Valid: true}
	}

	_, err := c.db.ExecContext(ctx, query,
		s.FetchedAt, sample.RunID, s.Latitude, s.Longitude, s.Velocity, s.Altitude,
		s.Visibility, s.Footprint, reportedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store sample: %w", err)
	}
	return nil
}

// GetRecentSamples returns up to limit samples, newest first
func (c *Client) GetRecentSamples(ctx context.Context, limit int) ([]*types.PublishedSample, error) {
	query := `
		SELECT time, run_id, latitude, longitude, velocity, altitude,
			visibility, footprint, reported_at
		FROM telemetry_samples
		ORDER BY time DESC
		LIMIT $1
	`
	rows, err := c.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []*types.PublishedSample
	for rows.Next() {
		var (
			p          types.PublishedSample
			reportedAt sql.NullTime
		)
		if err := rows.Scan(
			&p.Sample.FetchedAt, &p.RunID, &p.Sample.Latitude, &p.Sample.Longitude,
			&p.Sample.Velocity, &p.Sample.Altitude, &p.Sample.Visibility,
			&p.Sample.Footprint, &reportedAt,
		); err != nil {
			return nil, err
		}
		if reportedAt.Valid {
			p.Sample.Timestamp = reportedAt.Time.Unix()
		}
		samples = append(samples, &p)
	}
	return samples, rows.Err()
}

// StoreTrackerStats stores update loop statistics
func (c *Client) StoreTrackerStats(snap stats.Snapshot) error {
	query := `
		INSERT INTO tracker_stats (
			time, total_ticks, tick_results, recenters,
			published_samples, sink_errors, fetch_time_ms, uptime_seconds
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	// successful, failed, skipped
	results := []int64{
		int64(snap.SuccessfulFetches),
		int64(snap.FailedFetches),
		int64(snap.SkippedTicks),
	}

	_, err := c.db.Exec(query,
		snap.Time,
		int64(snap.TotalTicks),
		pq.Array(results),
		int64(snap.Recenters),
		int64(snap.PublishedSamples),
		int64(snap.SinkErrors),
		snap.FetchTime.Milliseconds(),
		int64(snap.Uptime.Seconds()),
	)
	return err
}

// GetTrackerStats retrieves statistics for a time range
func (c *Client) GetTrackerStats(start, end time.Time) ([]stats.Snapshot, error) {
	query := `
		SELECT
			time, total_ticks, tick_results, recenters,
			published_samples, sink_errors, fetch_time_ms, uptime_seconds
		FROM tracker_stats
		WHERE time BETWEEN $1 AND $2
		ORDER BY time DESC
	`

	rows, err := c.db.Query(query, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []stats.Snapshot
	for rows.Next() {
		var (
			timestamp        time.Time
			totalTicks       int64
			results          []int64
			recenters        int64
			publishedSamples int64
			sinkErrors       int64
			fetchTimeMs      int64
			uptimeSeconds    int64
		)

		if err := rows.Scan(
			&timestamp,
			&totalTicks,
			pq.Array(&results),
			&recenters,
			&publishedSamples,
			&sinkErrors,
			&fetchTimeMs,
			&uptimeSeconds,
		); err != nil {
			return nil, err
		}

		var tickResults [3]uint64
		for i, v := range results {
			if i < len(tickResults) {
				tickResults[i] = uint64(v)
			}
		}

		snaps = append(snaps, stats.Snapshot{
			Time:              timestamp,
			TotalTicks:        uint64(totalTicks),
			SuccessfulFetches: tickResults[0],
			FailedFetches:     tickResults[1],
			SkippedTicks:      tickResults[2],
			Recenters:         uint64(recenters),
			PublishedSamples:  uint64(publishedSamples),
			SinkErrors:        uint64(sinkErrors),
			FetchTime:         time.Duration(fetchTimeMs) * time.Millisecond,
			Uptime:            time.Duration(uptimeSeconds) * time.Second,
		})
	}

	return snaps, rows.Err()
}
