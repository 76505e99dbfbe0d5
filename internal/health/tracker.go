package health

import (
	log "github.com/sirupsen/logrus"

	"air-monitor/internal/models"
)

// OfflineRetries is the number of consecutive failures tolerated; the next one takes the sensor offline
const OfflineRetries = 3

// Outcome tells the caller what to do after a failed read
type Outcome struct {
	// WentOffline is set on the failure that crossed the retry limit;
	// the caller must reset the sensor's averaging windows.
	WentOffline bool
	// Reinitialize asks the caller to attempt sensor re-initialization
	Reinitialize bool
}

// Tracker is the online/offline state machine of one physical sensor.
//
//	INITIALIZING --success--> OK
//	OK/INITIALIZING --(> OfflineRetries failures)--> OFFLINE
//	OFFLINE/ERROR --success--> OK
//	OFFLINE --reinit failed--> ERROR
type Tracker struct {
	name    string
	status  models.SensorStatus
	online  bool
	retries int
	fresh   bool
}

// NewTracker starts in INITIALIZING; the sensor counts as online until proven otherwise
func NewTracker(name string) *Tracker {
	return &Tracker{
		name:   name,
		status: models.StatusInitializing,
		online: true,
	}
}

// Success records a good read. It returns true when the sensor recovered from offline.
func (t *Tracker) Success() bool {
	t.retries = 0
	t.fresh = true
	if t.online && t.status != models.StatusInitializing {
		return false
	}

	recovered := !t.online
	t.online = true
	t.status = models.StatusOK
	if recovered {
		log.Infof("Health: %s sensor back online", t.name)
	} else {
		log.Infof("Health: %s sensor initialized", t.name)
	}
	return recovered
}

// Failure records a failed or out-of-range read
func (t *Tracker) Failure() Outcome {
	if !t.online {
		return Outcome{Reinitialize: true}
	}

	t.retries++
	log.Debugf("Health: %s sensor read failed (%d/%d)", t.name, t.retries, OfflineRetries)
	if t.retries <= OfflineRetries {
		return Outcome{}
	}

	t.online = false
	t.fresh = false
	t.status = models.StatusOffline
	log.Warnf("Health: %s sensor offline after %d failed reads", t.name, t.retries)
	return Outcome{WentOffline: true, Reinitialize: true}
}

// ReinitFailed records that a re-initialization attempt could not reach the device
func (t *Tracker) ReinitFailed(err error) {
	if t.online {
		return
	}
	if t.status != models.StatusError {
		log.Warnf("Health: %s sensor re-initialization failed: %v", t.name, err)
	}
	t.status = models.StatusError
}

// ReinitSucceeded returns an ERROR sensor to OFFLINE until data flows again
func (t *Tracker) ReinitSucceeded() {
	if !t.online {
		t.status = models.StatusOffline
	}
}

func (t *Tracker) Status() models.SensorStatus {
	return t.status
}

func (t *Tracker) Online() bool {
	return t.online
}

func (t *Tracker) Retries() int {
	return t.retries
}

// Stale reports whether the last conditioned values must not be treated as fresh
func (t *Tracker) Stale() bool {
	return !t.online || !t.fresh
}

func (t *Tracker) Name() string {
	return t.name
}
