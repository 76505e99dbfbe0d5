package alarm

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"air-monitor/internal/clock"
	"air-monitor/internal/models"
)

// Defaults and validation bounds
const (
	DefaultPM25Threshold = 35
	DefaultPM10Threshold = 45
	DefaultCooldown      = time.Hour

	MinThreshold = 1
	MaxThreshold = 500
	MinCooldown  = 60 * time.Second
	MaxCooldown  = 24 * time.Hour
)

var (
	ErrThresholdRange = errors.New("alarm threshold out of range")
	ErrCooldownRange  = errors.New("alarm cooldown out of range")
)

// Notifier receives the textual reason of every trigger
type Notifier interface {
	Notify(reason string) error
}

// Indicator produces the visual side effect of a trigger. It must not block.
type Indicator interface {
	Indicate()
}

// Config is the initial alarm configuration
type Config struct {
	Enabled       bool
	PM25Threshold int
	PM10Threshold int
	Cooldown      time.Duration
}

// DefaultConfig is enabled with 35/45 µg/m³ thresholds and a one hour cooldown
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		PM25Threshold: DefaultPM25Threshold,
		PM10Threshold: DefaultPM10Threshold,
		Cooldown:      DefaultCooldown,
	}
}

// Engine evaluates conditioned PM2.5/PM10 against thresholds.
// It is owned by the pipeline goroutine and not safe for concurrent use.
type Engine struct {
	deviceID  string
	notifier  Notifier
	indicator Indicator
	wallClock func() time.Time

	enabled     bool
	triggered   bool
	lastTrigger clock.Millis
	cooldown    time.Duration
	pm25        int
	pm10        int
	reason      string
}

// NewEngine validates cfg; invalid fields fall back to their defaults and the
// first validation error is returned alongside a usable engine.
func NewEngine(deviceID string, cfg Config, notifier Notifier, indicator Indicator) (*Engine, error) {
	e := &Engine{
		deviceID:  deviceID,
		notifier:  notifier,
		indicator: indicator,
		wallClock: time.Now,
		enabled:   cfg.Enabled,
		cooldown:  DefaultCooldown,
		pm25:      DefaultPM25Threshold,
		pm10:      DefaultPM10Threshold,
	}

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	keep(e.SetPM25Threshold(cfg.PM25Threshold))
	keep(e.SetPM10Threshold(cfg.PM10Threshold))
	keep(e.SetCooldown(cfg.Cooldown))
	return e, firstErr
}

// Evaluate runs one alarm check. It returns the emitted event, or nil when
// nothing triggered. During an active cooldown neither trigger nor clear happens.
func (e *Engine) Evaluate(now clock.Millis, pm25, pm10 int) *models.AlarmEvent {
	if !e.enabled {
		e.clear()
		return nil
	}

	if e.triggered && !clock.Reached(now, e.lastTrigger, clock.FromDuration(e.cooldown)) {
		return nil
	}

	var exceeded []models.Exceedance
	if pm25 > e.pm25 {
		exceeded = append(exceeded, models.Exceedance{Metric: "pm2.5", Value: pm25, Threshold: e.pm25})
	}
	if pm10 > e.pm10 {
		exceeded = append(exceeded, models.Exceedance{Metric: "pm10", Value: pm10, Threshold: e.pm10})
	}

	if len(exceeded) == 0 {
		if e.triggered {
			log.Infof("Alarm: cleared, PM2.5=%d PM10=%d", pm25, pm10)
		}
		e.clear()
		return nil
	}

	e.triggered = true
	e.lastTrigger = now
	e.reason = Reason(exceeded)
	log.Warnf("Alarm: %s", e.reason)

	if e.indicator != nil {
		e.indicator.Indicate()
	}
	if e.notifier != nil {
		if err := e.notifier.Notify(e.reason); err != nil {
			log.Errorf("Alarm: notify failed: %v", err)
		}
	}

	return &models.AlarmEvent{
		ID:        uuid.NewString(),
		DeviceID:  e.deviceID,
		Timestamp: e.wallClock(),
		Reason:    e.reason,
		Exceeded:  exceeded,
	}
}

func (e *Engine) clear() {
	e.triggered = false
	e.reason = ""
}

// Reason formats exceedances as "PM2.5 HIGH: 40 µg/m³, PM10 HIGH: 60 µg/m³"
func Reason(exceeded []models.Exceedance) string {
	parts := make([]string, 0, len(exceeded))
	for _, x := range exceeded {
		parts = append(parts, fmt.Sprintf("%s HIGH: %d µg/m³", strings.ToUpper(x.Metric), x.Value))
	}
	return strings.Join(parts, ", ")
}

// SetEnabled toggles evaluation. Disabling clears any active trigger.
func (e *Engine) SetEnabled(enabled bool) {
	e.enabled = enabled
	if !enabled {
		e.clear()
	}
	log.Infof("Alarm: enabled=%t", enabled)
}

func (e *Engine) SetPM25Threshold(threshold int) error {
	if err := ValidateThreshold(threshold); err != nil {
		return errors.Wrap(err, "pm2.5")
	}
	e.pm25 = threshold
	return nil
}

func (e *Engine) SetPM10Threshold(threshold int) error {
	if err := ValidateThreshold(threshold); err != nil {
		return errors.Wrap(err, "pm10")
	}
	e.pm10 = threshold
	return nil
}

// SetCooldown accepts whole seconds in [60 s, 24 h]
func (e *Engine) SetCooldown(d time.Duration) error {
	if err := ValidateCooldown(d); err != nil {
		return err
	}
	e.cooldown = d
	return nil
}

// ValidateThreshold checks a PM threshold against [1, 500] µg/m³
func ValidateThreshold(threshold int) error {
	if threshold < MinThreshold || threshold > MaxThreshold {
		return errors.Wrapf(ErrThresholdRange, "%d not in [%d, %d]", threshold, MinThreshold, MaxThreshold)
	}
	return nil
}

// ValidateCooldown checks a cooldown against [60, 86400] seconds
func ValidateCooldown(d time.Duration) error {
	if d < MinCooldown || d > MaxCooldown {
		return errors.Wrapf(ErrCooldownRange, "%v not in [%v, %v]", d, MinCooldown, MaxCooldown)
	}
	return nil
}

// State returns a copy of the externally visible alarm state
func (e *Engine) State() models.AlarmState {
	return models.AlarmState{
		Enabled:         e.enabled,
		Triggered:       e.triggered,
		LastTriggerTime: uint32(e.lastTrigger),
		Cooldown:        e.cooldown,
		CooldownSeconds: int64(e.cooldown / time.Second),
		PM25Threshold:   e.pm25,
		PM10Threshold:   e.pm10,
		Reason:          e.reason,
	}
}
