package timescaledb

const createSeriesTableSQL = `
CREATE TABLE IF NOT EXISTS assessment_series (
    id uuid PRIMARY KEY,
    run_id uuid NOT NULL,
    name text NOT NULL,
    formula text NOT NULL,
    bandgap_ev float8 NOT NULL,
    latitude float8 NOT NULL,
    longitude float8 NOT NULL,
    period_start timestamp WITH TIME ZONE NOT NULL,
    period_end timestamp WITH TIME ZONE NOT NULL,
    total_kwh_per_square_m float8 NOT NULL,
    skipped_hours integer NOT NULL DEFAULT 0,
    created_at timestamp WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
);`

const createSeriesRunIndexSQL = `CREATE INDEX IF NOT EXISTS assessment_series_run_id_idx ON assessment_series (run_id);`

const createReadingsTableSQL = `
CREATE TABLE IF NOT EXISTS power_readings (
    time timestamp WITH TIME ZONE NOT NULL,
    series_id uuid NOT NULL,
    latitude float8 NULL,
    longitude float8 NULL,
    power_watts_per_sqm float8 NULL,
    optimal_voltage float8 NULL,
    t_sky float8 NULL,
    t_surf float8 NULL,
    at_boundary boolean NOT NULL DEFAULT false
);`

const createExtensionSQL = `CREATE EXTENSION IF NOT EXISTS timescaledb CASCADE;`

const createHypertableSQL = `SELECT create_hypertable('power_readings', 'time', if_not_exists => TRUE, migrate_data => TRUE);`

const createReadingsSeriesIndexSQL = `CREATE INDEX IF NOT EXISTS power_readings_series_id_time_idx ON power_readings (series_id, time DESC);`

// Daily mean, peak and positive energy per series
const create1dViewSQL = `
CREATE MATERIALIZED VIEW IF NOT EXISTS power_readings_1d
WITH (timescaledb.continuous) AS
SELECT
    time_bucket('1 day', time) AS bucket,
    series_id,
    avg(power_watts_per_sqm) AS mean_power,
    max(power_watts_per_sqm) AS max_power,
    sum(greatest(power_watts_per_sqm, 0)) / 1000 AS energy_kwh
FROM power_readings
GROUP BY bucket, series_id
WITH NO DATA;`

const addAggregationPolicy1dSQL = `
SELECT add_continuous_aggregate_policy('power_readings_1d',
    start_offset => NULL,
    end_offset => INTERVAL '1 hour',
    schedule_interval => INTERVAL '1 hour',
    if_not_exists => TRUE);`

type schemaStep struct {
	description string
	sql         string
}

var schema = []schemaStep{
	{"creating TimescaleDB extension", createExtensionSQL},
	{"creating series table", createSeriesTableSQL},
	{"creating series run index", createSeriesRunIndexSQL},
	{"creating power readings table", createReadingsTableSQL},
	{"creating hypertable", createHypertableSQL},
	{"creating power readings series index", createReadingsSeriesIndexSQL},
	{"creating 1d view", create1dViewSQL},
	{"adding 1d aggregation policy", addAggregationPolicy1dSQL},
}
