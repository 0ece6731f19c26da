package timescaledb

const createTableSQL = `
CREATE TABLE IF NOT EXISTS breath_metrics (
    time timestamp WITH TIME ZONE NOT NULL,
    session_id uuid NOT NULL,
    flow_time timestamp WITH TIME ZONE NULL,
    flow_slpm float8 NULL,
    co2_time timestamp WITH TIME ZONE NULL,
    co2_ppm float8 NULL,
    breath_time timestamp WITH TIME ZONE NULL,
    breath_start timestamp WITH TIME ZONE NULL,
    breath_samples integer NULL,
    breath_volume float8 NULL,
    ve_time timestamp WITH TIME ZONE NULL,
    ve_over_vco2 float8 NULL,
    ve_undefined boolean NOT NULL DEFAULT false,
    peak_time timestamp WITH TIME ZONE NULL,
    peak_co2_ppm float8 NULL
);`

const createExtensionSQL = `CREATE EXTENSION IF NOT EXISTS timescaledb;`

const createHypertableSQL = `SELECT create_hypertable('breath_metrics', 'time', if_not_exists => true);`

const createSessionIndexSQL = `CREATE INDEX IF NOT EXISTS breath_metrics_session_idx ON breath_metrics (session_id, time DESC);`
