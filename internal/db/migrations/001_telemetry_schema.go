package migrations

// TelemetrySchema creates the sample log and statistics tables
var TelemetrySchema = &Migration{
	Name: "001_telemetry_schema",
	UpSQL: `
		CREATE TABLE IF NOT EXISTS telemetry_samples (
			time TIMESTAMPTZ NOT NULL,
			run_id TEXT NOT NULL,
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL,
			velocity DOUBLE PRECISION NOT NULL,
			altitude DOUBLE PRECISION NOT NULL,
			visibility TEXT NOT NULL DEFAULT '',
			footprint DOUBLE PRECISION NOT NULL DEFAULT 0,
			reported_at TIMESTAMPTZ
		);

		CREATE INDEX IF NOT EXISTS idx_telemetry_samples_time ON telemetry_samples (time DESC);
		CREATE INDEX IF NOT EXISTS idx_telemetry_samples_run_id ON telemetry_samples (run_id);

		CREATE TABLE IF NOT EXISTS tracker_stats (
			time TIMESTAMPTZ NOT NULL,
			total_ticks BIGINT NOT NULL,
			tick_results BIGINT[] NOT NULL,
			recenters BIGINT NOT NULL,
			published_samples BIGINT NOT NULL,
			sink_errors BIGINT NOT NULL,
			fetch_time_ms BIGINT NOT NULL,
			uptime_seconds BIGINT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_tracker_stats_time ON tracker_stats (time DESC);
	`,
	DownSQL: `
		DROP TABLE IF EXISTS tracker_stats;
		DROP TABLE IF EXISTS telemetry_samples;
	`,
}
