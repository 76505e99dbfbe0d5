package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"air-monitor/internal/models"
)

// MaxLogEntries caps the reading log; older entries are trimmed
const MaxLogEntries = 100

// kv is the subset of the Redis client the store uses
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
}

// LogEntry is one compact record of the reading log
type LogEntry struct {
	Timestamp   time.Time `json:"ts"`
	Cycle       uint64    `json:"cycle"`
	PM1         int       `json:"pm1"`
	PM25        int       `json:"pm25"`
	PM10        int       `json:"pm10"`
	Temperature float64   `json:"temp"`
	Humidity    float64   `json:"hum"`
	Pressure    float64   `json:"pres"`
	AirQuality  string    `json:"air_quality"`
}

// EntryFromSnapshot flattens a snapshot into a log entry
func EntryFromSnapshot(s *models.Snapshot) LogEntry {
	return LogEntry{
		Timestamp:   s.Timestamp,
		Cycle:       s.Cycle,
		PM1:         s.Reading.Particulates.PM1,
		PM25:        s.Reading.Particulates.PM25,
		PM10:        s.Reading.Particulates.PM10,
		Temperature: s.Reading.Environment.Temperature,
		Humidity:    s.Reading.Environment.Humidity,
		Pressure:    s.Reading.Environment.Pressure,
		AirQuality:  s.AirQuality.String(),
	}
}

// Store keeps device settings and the reading log in Redis
type Store struct {
	client   kv
	closer   func() error
	deviceID string

	SnapshotChan chan *models.Snapshot
}

// NewStore connects to Redis and verifies the connection
func NewStore(addr, password string, db int, deviceID string) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: 4,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Printf("Connected to Redis at %s", addr)

	s := newStore(client, deviceID)
	s.closer = client.Close
	return s, nil
}

func newStore(client kv, deviceID string) *Store {
	return &Store{client: client, deviceID: deviceID}
}

func (s *Store) settingsKey() string { return fmt.Sprintf("klimerko:%s:settings", s.deviceID) }
func (s *Store) logKey() string      { return fmt.Sprintf("klimerko:%s:log", s.deviceID) }

// SaveSettings writes the settings envelope
func (s *Store) SaveSettings(ctx context.Context, settings models.Settings) error {
	data, err := EncodeSettings(settings)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.settingsKey(), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// LoadSettings reads and verifies the stored settings. ErrSettingsAbsent,
// ErrCorrupt and ErrVersion all mean the caller should use defaults.
func (s *Store) LoadSettings(ctx context.Context) (models.Settings, error) {
	data, err := s.client.Get(ctx, s.settingsKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Settings{}, ErrSettingsAbsent
	}
	if err != nil {
		return models.Settings{}, fmt.Errorf("failed to load settings: %w", err)
	}
	return DecodeSettings(data)
}

// ResetSettings removes the stored settings
func (s *Store) ResetSettings(ctx context.Context) error {
	return s.client.Del(ctx, s.settingsKey()).Err()
}

// Append adds one entry to the reading log and trims it to MaxLogEntries
func (s *Store) Append(ctx context.Context, entry LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}
	if err := s.client.LPush(ctx, s.logKey(), data).Err(); err != nil {
		return fmt.Errorf("failed to append log entry: %w", err)
	}
	if err := s.client.LTrim(ctx, s.logKey(), 0, MaxLogEntries-1).Err(); err != nil {
		log.Warnf("Storage: failed to trim reading log: %v", err)
	}
	return nil
}

// Recent returns up to n log entries, newest first
func (s *Store) Recent(ctx context.Context, n int) ([]LogEntry, error) {
	if n <= 0 || n > MaxLogEntries {
		n = MaxLogEntries
	}
	raw, err := s.client.LRange(ctx, s.logKey(), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}

	entries := make([]LogEntry, 0, len(raw))
	for _, r := range raw {
		var e LogEntry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			log.Warnf("Storage: skipping unreadable log entry: %v", err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ClearLog drops the whole reading log
func (s *Store) ClearLog(ctx context.Context) error {
	return s.client.Del(ctx, s.logKey()).Err()
}

// Start appends every snapshot from SnapshotChan until ctx is cancelled or the channel closes
func (s *Store) Start(ctx context.Context) {
	log.Println("Storage: Starting...")

	for {
		select {
		case <-ctx.Done():
			log.Println("Storage: Context cancelled, shutting down...")
			return

		case snap, ok := <-s.SnapshotChan:
			if !ok {
				log.Println("Storage: Snapshot channel closed, shutting down...")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := s.Append(wctx, EntryFromSnapshot(snap)); err != nil {
				log.Errorf("Storage: %v", err)
			}
			cancel()
		}
	}
}

// PersistSettings saves every settings update until ctx is cancelled or updates closes
func (s *Store) PersistSettings(ctx context.Context, updates <-chan models.Settings) {
	for {
		select {
		case <-ctx.Done():
			return
		case settings, ok := <-updates:
			if !ok {
				return
			}
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := s.SaveSettings(wctx, settings); err != nil {
				log.Errorf("Storage: %v", err)
			} else {
				log.Infof("Storage: settings saved (interval %d min)", settings.PublishIntervalMinutes)
			}
			cancel()
		}
	}
}

// Close releases the Redis connection
func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
