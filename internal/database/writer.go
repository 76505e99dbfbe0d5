package database

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"air-monitor/internal/models"
)

// Store persists pipeline outputs. *ClickHouseDB implements it.
type Store interface {
	SaveReading(ctx context.Context, s *models.Snapshot) error
	SaveAlarm(ctx context.Context, e *models.AlarmEvent) error
	SaveStatus(ctx context.Context, c *models.StatusChange) error
}

// writeTimeout bounds a single insert
const writeTimeout = 10 * time.Second

// Writer drains the pipeline output channels into a Store
type Writer struct {
	store Store

	SnapshotChan chan *models.Snapshot
	AlarmChan    chan *models.AlarmEvent
	StatusChan   chan *models.StatusChange
}

// NewWriter creates a writer reading from the given channels; nil channels are never selected
func NewWriter(store Store, snapshots chan *models.Snapshot, alarms chan *models.AlarmEvent, statuses chan *models.StatusChange) *Writer {
	return &Writer{
		store:        store,
		SnapshotChan: snapshots,
		AlarmChan:    alarms,
		StatusChan:   statuses,
	}
}

// Start writes until ctx is cancelled or every channel is closed
func (w *Writer) Start(ctx context.Context) {
	log.Println("Database Writer: Starting...")

	snapshots, alarms, statuses := w.SnapshotChan, w.AlarmChan, w.StatusChan
	for snapshots != nil || alarms != nil || statuses != nil {
		select {
		case <-ctx.Done():
			log.Println("Database Writer: Context cancelled, shutting down...")
			return

		case s, ok := <-snapshots:
			if !ok {
				snapshots = nil
				continue
			}
			w.write("air reading", func(ctx context.Context) error { return w.store.SaveReading(ctx, s) })

		case e, ok := <-alarms:
			if !ok {
				alarms = nil
				continue
			}
			w.write("alarm event", func(ctx context.Context) error { return w.store.SaveAlarm(ctx, e) })

		case c, ok := <-statuses:
			if !ok {
				statuses = nil
				continue
			}
			w.write("sensor status", func(ctx context.Context) error { return w.store.SaveStatus(ctx, c) })
		}
	}
	log.Println("Database Writer: All channels closed, shutting down...")
}

func (w *Writer) write(what string, save func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := save(ctx); err != nil {
		log.Errorf("Error saving %s: %v", what, err)
	}
}
