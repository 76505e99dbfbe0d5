package database

// SQL schemas for all ClickHouse tables

const (
	// AirReadingsTableSQL creates the air_readings table, one row per published snapshot
	AirReadingsTableSQL = `
		CREATE TABLE IF NOT EXISTS air_readings (
			timestamp DateTime64(3),
			device_id String,
			cycle UInt64,
			pm1 Int32,
			pm25 Int32,
			pm10 Int32,
			pm1_corrected Int32,
			pm25_corrected Int32,
			pm10_corrected Int32,
			count_0_3 Int32,
			count_0_5 Int32,
			count_1_0 Int32,
			count_2_5 Int32,
			count_5_0 Int32,
			count_10_0 Int32,
			temperature Float64,
			humidity Float64,
			pressure Float64,
			sea_level_pressure Float64,
			dewpoint Float64,
			absolute_humidity Float64,
			heat_index Float64,
			air_quality LowCardinality(String),
			particles_stale Bool,
			environment_stale Bool
		) ENGINE = MergeTree()
		ORDER BY (device_id, timestamp)
		PARTITION BY toYYYYMM(timestamp)
	`

	// AlarmEventsTableSQL creates the alarm_events table
	AlarmEventsTableSQL = `
		CREATE TABLE IF NOT EXISTS alarm_events (
			timestamp DateTime64(3),
			event_id UUID,
			device_id String,
			reason String,
			exceeded String
		) ENGINE = MergeTree()
		ORDER BY (device_id, timestamp)
		PARTITION BY toYYYYMM(timestamp)
	`

	// SensorStatusTableSQL creates the sensor_status table of health transitions
	SensorStatusTableSQL = `
		CREATE TABLE IF NOT EXISTS sensor_status (
			timestamp DateTime64(3),
			device_id String,
			sensor LowCardinality(String),
			from_status LowCardinality(String),
			to_status LowCardinality(String)
		) ENGINE = MergeTree()
		ORDER BY (device_id, timestamp)
		PARTITION BY toYYYYMM(timestamp)
	`
)

// AllTables returns all table creation SQL statements
func AllTables() []string {
	return []string{
		AirReadingsTableSQL,
		AlarmEventsTableSQL,
		SensorStatusTableSQL,
	}
}
