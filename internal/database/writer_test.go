package database

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"air-monitor/internal/models"
)

type memoryStore struct {
	mu       sync.Mutex
	readings []*models.Snapshot
	alarms   []*models.AlarmEvent
	statuses []*models.StatusChange
	fail     bool
}

func (m *memoryStore) SaveReading(ctx context.Context, s *models.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("connection refused")
	}
	m.readings = append(m.readings, s)
	return nil
}

func (m *memoryStore) SaveAlarm(ctx context.Context, e *models.AlarmEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alarms = append(m.alarms, e)
	return nil
}

func (m *memoryStore) SaveStatus(ctx context.Context, c *models.StatusChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, c)
	return nil
}

func TestWriterDrainsAllChannels(t *testing.T) {
	store := &memoryStore{}
	snapshots := make(chan *models.Snapshot, 2)
	alarms := make(chan *models.AlarmEvent, 1)
	statuses := make(chan *models.StatusChange, 1)

	snapshots <- &models.Snapshot{Cycle: 1}
	snapshots <- &models.Snapshot{Cycle: 11}
	alarms <- &models.AlarmEvent{ID: "a"}
	statuses <- &models.StatusChange{Sensor: "pms"}
	close(snapshots)
	close(alarms)
	close(statuses)

	done := make(chan struct{})
	go func() {
		NewWriter(store, snapshots, alarms, statuses).Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("writer did not stop after its channels closed")
	}

	if len(store.readings) != 2 || len(store.alarms) != 1 || len(store.statuses) != 1 {
		t.Errorf("stored %d readings, %d alarms, %d statuses", len(store.readings), len(store.alarms), len(store.statuses))
	}
}

func TestWriterSurvivesStoreErrors(t *testing.T) {
	store := &memoryStore{fail: true}
	snapshots := make(chan *models.Snapshot, 1)
	snapshots <- &models.Snapshot{Cycle: 1}
	close(snapshots)

	done := make(chan struct{})
	go func() {
		NewWriter(store, snapshots, nil, nil).Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("writer blocked on a failing store")
	}
}

func TestWriterStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewWriter(&memoryStore{}, make(chan *models.Snapshot), nil, nil).Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("writer ignored cancellation")
	}
}

func TestSchemaTables(t *testing.T) {
	want := []string{"air_readings", "alarm_events", "sensor_status"}
	tables := AllTables()
	if len(tables) != len(want) {
		t.Fatalf("AllTables() returned %d statements", len(tables))
	}
	for i, name := range want {
		if !strings.Contains(tables[i], "CREATE TABLE IF NOT EXISTS "+name) {
			t.Errorf("statement %d does not create %s", i, name)
		}
	}
}
