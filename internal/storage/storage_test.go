package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"air-monitor/internal/models"
)

// memoryKV emulates the handful of Redis commands the store issues
type memoryKV struct {
	values map[string]string
	lists  map[string][]string
}

func newMemoryKV() *memoryKV {
	return &memoryKV{values: map[string]string{}, lists: map[string][]string{}}
}

func (m *memoryKV) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memoryKV) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		m.values[key] = string(v)
	default:
		m.values[key] = fmt.Sprint(v)
	}
	return redis.NewStatusResult("OK", nil)
}

func (m *memoryKV) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := m.values[k]; ok {
			delete(m.values, k)
			n++
		}
		if _, ok := m.lists[k]; ok {
			delete(m.lists, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (m *memoryKV) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	for _, v := range values {
		m.lists[key] = append([]string{string(v.([]byte))}, m.lists[key]...)
	}
	return redis.NewIntResult(int64(len(m.lists[key])), nil)
}

func (m *memoryKV) LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd {
	l := m.lists[key]
	if int(stop)+1 < len(l) {
		m.lists[key] = l[start : stop+1]
	}
	return redis.NewStatusResult("OK", nil)
}

func (m *memoryKV) LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd {
	l := m.lists[key]
	end := int(stop) + 1
	if end > len(l) {
		end = len(l)
	}
	return redis.NewStringSliceResult(append([]string(nil), l[start:end]...), nil)
}

func testSettings() models.Settings {
	return models.Settings{
		PublishIntervalMinutes: 5,
		AltitudeMeters:         320,
		Calibration:            models.Calibration{PM25Factor: 1.2, PM10Factor: 0.9, TemperatureOffset: -1.5},
		AlarmEnabled:           true,
		AlarmPM25Threshold:     40,
		AlarmPM10Threshold:     50,
		AlarmCooldownSeconds:   1800,
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	data, err := EncodeSettings(testSettings())
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeSettings(data)
	if err != nil {
		t.Fatal(err)
	}
	if got != testSettings() {
		t.Errorf("decoded %+v, want %+v", got, testSettings())
	}
}

func TestDecodeDetectsTampering(t *testing.T) {
	data, err := EncodeSettings(testSettings())
	if err != nil {
		t.Fatal(err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatal(err)
	}
	env.Settings = json.RawMessage(`{"publish_interval_minutes":60}`)
	tampered, _ := json.Marshal(env)

	if _, err := DecodeSettings(tampered); !errors.Is(err, ErrCorrupt) {
		t.Errorf("tampered body: err = %v, want ErrCorrupt", err)
	}
	if _, err := DecodeSettings([]byte("\x00\xff garbage")); !errors.Is(err, ErrCorrupt) {
		t.Errorf("garbage: err = %v, want ErrCorrupt", err)
	}
}

func TestDecodeRejectsOtherVersion(t *testing.T) {
	data, _ := EncodeSettings(testSettings())
	var env envelope
	json.Unmarshal(data, &env)
	env.Version = SettingsVersion + 1
	data, _ = json.Marshal(env)

	if _, err := DecodeSettings(data); !errors.Is(err, ErrVersion) {
		t.Errorf("err = %v, want ErrVersion", err)
	}
}

func TestStoreSettings(t *testing.T) {
	ctx := context.Background()
	s := newStore(newMemoryKV(), "k1")

	if _, err := s.LoadSettings(ctx); !errors.Is(err, ErrSettingsAbsent) {
		t.Fatalf("empty store: err = %v", err)
	}
	if err := s.SaveSettings(ctx, testSettings()); err != nil {
		t.Fatal(err)
	}
	got, err := s.LoadSettings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got != testSettings() {
		t.Errorf("loaded %+v", got)
	}

	if err := s.ResetSettings(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := s.LoadSettings(ctx); !errors.Is(err, ErrSettingsAbsent) {
		t.Errorf("after reset: err = %v", err)
	}
}

func TestLogIsCapped(t *testing.T) {
	ctx := context.Background()
	s := newStore(newMemoryKV(), "k1")

	for i := 1; i <= MaxLogEntries+5; i++ {
		if err := s.Append(ctx, LogEntry{Cycle: uint64(i), PM25: i}); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.Recent(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != MaxLogEntries {
		t.Fatalf("log holds %d entries, want %d", len(all), MaxLogEntries)
	}
	if all[0].Cycle != MaxLogEntries+5 || all[len(all)-1].Cycle != 6 {
		t.Errorf("log spans cycles %d..%d", all[0].Cycle, all[len(all)-1].Cycle)
	}

	latest, _ := s.Recent(ctx, 3)
	if len(latest) != 3 || latest[2].Cycle != MaxLogEntries+3 {
		t.Errorf("Recent(3) = %+v", latest)
	}

	if err := s.ClearLog(ctx); err != nil {
		t.Fatal(err)
	}
	if empty, _ := s.Recent(ctx, 10); len(empty) != 0 {
		t.Errorf("cleared log still has %d entries", len(empty))
	}
}

func TestStartLogsSnapshots(t *testing.T) {
	s := newStore(newMemoryKV(), "k1")
	s.SnapshotChan = make(chan *models.Snapshot, 2)
	s.SnapshotChan <- &models.Snapshot{Cycle: 1, Reading: models.ConditionedReading{Particulates: models.Particulates{PM25: 8}}}
	s.SnapshotChan <- &models.Snapshot{Cycle: 11, AirQuality: models.AirPolluted}
	close(s.SnapshotChan)

	s.Start(context.Background())

	entries, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Cycle != 11 || entries[1].PM25 != 8 {
		t.Errorf("entries = %+v", entries)
	}
	if entries[0].AirQuality != models.AirPolluted.String() {
		t.Errorf("air quality = %q", entries[0].AirQuality)
	}
}

func TestPersistSettings(t *testing.T) {
	s := newStore(newMemoryKV(), "k1")
	updates := make(chan models.Settings, 2)
	first := testSettings()
	second := testSettings()
	second.PublishIntervalMinutes = 30
	updates <- first
	updates <- second
	close(updates)

	s.PersistSettings(context.Background(), updates)

	got, err := s.LoadSettings(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got.PublishIntervalMinutes != 30 {
		t.Errorf("last update not persisted: %+v", got)
	}
}
