package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	log "github.com/sirupsen/logrus"

	"air-monitor/internal/models"
)

type ClickHouseDB struct {
	conn driver.Conn
}

// HourlyAverage is one bucket of the reading history
type HourlyAverage struct {
	Hour        time.Time `json:"hour"`
	PM25        float64   `json:"pm25"`
	PM10        float64   `json:"pm10"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Samples     uint64    `json:"samples"`
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(addr, database, username, password string) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})

	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	log.Printf("Connected to ClickHouse at %s", addr)

	db := &ClickHouseDB{conn: conn}

	if err := db.InitSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// InitSchema creates the necessary tables if they don't exist
func (db *ClickHouseDB) InitSchema() error {
	ctx := context.Background()

	for _, tableSQL := range AllTables() {
		if err := db.conn.Exec(ctx, tableSQL); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	log.Println("Database schema initialized successfully")
	return nil
}

// SaveReading saves one published snapshot
func (db *ClickHouseDB) SaveReading(ctx context.Context, s *models.Snapshot) error {
	query := `
		INSERT INTO air_readings (
			timestamp, device_id, cycle,
			pm1, pm25, pm10, pm1_corrected, pm25_corrected, pm10_corrected,
			count_0_3, count_0_5, count_1_0, count_2_5, count_5_0, count_10_0,
			temperature, humidity, pressure, sea_level_pressure,
			dewpoint, absolute_humidity, heat_index,
			air_quality, particles_stale, environment_stale
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	pm := s.Reading.Particulates
	env := s.Reading.Environment
	err := db.conn.Exec(ctx, query,
		s.Timestamp, s.DeviceID, s.Cycle,
		int32(pm.PM1), int32(pm.PM25), int32(pm.PM10),
		int32(s.Derived.PM1Corrected), int32(s.Derived.PM25Corrected), int32(s.Derived.PM10Corrected),
		int32(pm.Count03), int32(pm.Count05), int32(pm.Count10),
		int32(pm.Count25), int32(pm.Count50), int32(pm.Count100),
		env.Temperature, env.Humidity, env.Pressure, s.Derived.SeaLevelPressure,
		s.Derived.Dewpoint, s.Derived.AbsoluteHumidity, s.Derived.HeatIndex,
		s.AirQuality.String(), s.Reading.ParticlesStale, s.Reading.EnvStale,
	)
	if err != nil {
		return fmt.Errorf("failed to insert air reading: %w", err)
	}
	return nil
}

// SaveAlarm saves an alarm event
func (db *ClickHouseDB) SaveAlarm(ctx context.Context, e *models.AlarmEvent) error {
	exceeded, err := json.Marshal(e.Exceeded)
	if err != nil {
		return fmt.Errorf("failed to marshal exceedances: %w", err)
	}

	query := `
		INSERT INTO alarm_events (timestamp, event_id, device_id, reason, exceeded)
		VALUES (?, ?, ?, ?, ?)
	`
	if err := db.conn.Exec(ctx, query, e.Timestamp, e.ID, e.DeviceID, e.Reason, string(exceeded)); err != nil {
		return fmt.Errorf("failed to insert alarm event: %w", err)
	}
	return nil
}

// SaveStatus saves a sensor status transition
func (db *ClickHouseDB) SaveStatus(ctx context.Context, c *models.StatusChange) error {
	query := `
		INSERT INTO sensor_status (timestamp, device_id, sensor, from_status, to_status)
		VALUES (?, ?, ?, ?, ?)
	`
	if err := db.conn.Exec(ctx, query, c.Timestamp, c.DeviceID, c.Sensor, c.From.String(), c.To.String()); err != nil {
		return fmt.Errorf("failed to insert sensor status: %w", err)
	}
	return nil
}

// HourlyAverages returns per-hour means of fresh readings over the last hours
func (db *ClickHouseDB) HourlyAverages(ctx context.Context, deviceID string, hours int) ([]HourlyAverage, error) {
	since := time.Now().Add(-time.Duration(hours) * time.Hour)

	query := `
		SELECT
			toStartOfHour(timestamp) AS hour,
			avgIf(pm25, NOT particles_stale) AS pm25,
			avgIf(pm10, NOT particles_stale) AS pm10,
			avgIf(temperature, NOT environment_stale) AS temperature,
			avgIf(humidity, NOT environment_stale) AS humidity,
			count() AS samples
		FROM air_readings
		WHERE device_id = ? AND timestamp >= ?
		GROUP BY hour
		ORDER BY hour
	`

	rows, err := db.conn.Query(ctx, query, deviceID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query hourly averages: %w", err)
	}
	defer rows.Close()

	var out []HourlyAverage
	for rows.Next() {
		var h HourlyAverage
		if err := rows.Scan(&h.Hour, &h.PM25, &h.PM10, &h.Temperature, &h.Humidity, &h.Samples); err != nil {
			return nil, fmt.Errorf("failed to scan hourly average: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// Close closes the database connection
func (db *ClickHouseDB) Close() error {
	return db.conn.Close()
}
