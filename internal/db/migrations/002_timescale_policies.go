package migrations

// TimescalePolicies turns both tables into hypertables with retention
// and adds an hourly ground track aggregate.
var TimescalePolicies = &Migration{
	Name:              "002_timescale_policies",
	RequiresTimescale: true,
	UpSQL: `
	CREATE EXTENSION IF NOT EXISTS timescaledb;

	SELECT create_hypertable('telemetry_samples', 'time', migrate_data => true, if_not_exists => true);
	SELECT create_hypertable('tracker_stats', 'time', migrate_data => true, if_not_exists => true);

	-- samples arrive every few seconds; keep a week of raw data
	SELECT add_retention_policy('telemetry_samples', INTERVAL '7 days', if_not_exists => true);
	SELECT add_retention_policy('tracker_stats', INTERVAL '90 days', if_not_exists => true);

	CREATE MATERIALIZED VIEW IF NOT EXISTS telemetry_samples_hourly
	WITH (timescaledb.continuous) AS
	SELECT
		time_bucket('1 hour', time) AS hour,
		COUNT(*) AS sample_count,
		AVG(velocity) AS avg_velocity,
		MIN(altitude) AS min_altitude,
		MAX(altitude) AS max_altitude
	FROM telemetry_samples
	GROUP BY hour
	WITH NO DATA;
	`,
	DownSQL: `
	DROP MATERIALIZED VIEW IF EXISTS telemetry_samples_hourly;

	SELECT remove_retention_policy('telemetry_samples', if_exists => true);
	SELECT remove_retention_policy('tracker_stats', if_exists => true);
	`,
}
