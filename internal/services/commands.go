package services

import (
	"bytes"
	"encoding/json"
	"math"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"air-monitor/internal/models"
)

// Command value bounds not owned by another package
const (
	MaxAltitudeMeters = 9000.0
	MaxOffset         = 20.0
)

var (
	ErrUnknownAsset  = errors.New("unknown asset")
	ErrInvalidValue  = errors.New("invalid command value")
	ErrAltitudeRange = errors.New("altitude out of range")
)

// calibrationValue is the body of a calibration command
type calibrationValue struct {
	PM25 float64 `json:"pm25"`
	PM10 float64 `json:"pm10"`
}

// Apply validates and applies one remote command. On error nothing changes.
// It must run on the pipeline goroutine.
func (p *Pipeline) Apply(cmd models.Command) error {
	var err error
	switch cmd.Asset {
	case models.AssetInterval:
		var minutes int
		if err = decodeValue(cmd.Value, &minutes); err == nil {
			err = p.setPublishInterval(minutes)
		}
	case models.AssetTempOffset:
		var offset float64
		if err = decodeValue(cmd.Value, &offset); err == nil {
			if err = validateOffset(offset); err == nil {
				err = p.conditioner.SetTemperatureOffset(offset)
			}
		}
	case models.AssetHumidityOffset:
		var offset float64
		if err = decodeValue(cmd.Value, &offset); err == nil {
			if err = validateOffset(offset); err == nil {
				err = p.conditioner.SetHumidityOffset(offset)
			}
		}
	case models.AssetAltitude:
		var meters float64
		if err = decodeValue(cmd.Value, &meters); err == nil {
			if err = ValidateAltitude(meters); err == nil {
				p.altitude = meters
			}
		}
	case models.AssetCalibration:
		var cal calibrationValue
		if err = decodeValue(cmd.Value, &cal); err == nil {
			err = p.conditioner.SetFactors(cal.PM25, cal.PM10)
		}
	case models.AssetAlarmEnable:
		var enabled bool
		if err = decodeValue(cmd.Value, &enabled); err == nil {
			p.alarm.SetEnabled(enabled)
		}
	case models.AssetAlarmPM25:
		var threshold int
		if err = decodeValue(cmd.Value, &threshold); err == nil {
			err = p.alarm.SetPM25Threshold(threshold)
		}
	case models.AssetAlarmPM10:
		var threshold int
		if err = decodeValue(cmd.Value, &threshold); err == nil {
			err = p.alarm.SetPM10Threshold(threshold)
		}
	case models.AssetAlarmCooldown:
		var seconds int64
		if err = decodeValue(cmd.Value, &seconds); err == nil {
			err = p.alarm.SetCooldown(time.Duration(seconds) * time.Second)
		}
	default:
		err = errors.Wrapf(ErrUnknownAsset, "%q", cmd.Asset)
	}

	if err != nil {
		log.Warnf("Pipeline: rejected %s command %s: %v", cmd.Asset, cmd.Value, err)
		return err
	}

	log.Infof("Pipeline: applied %s = %s", cmd.Asset, cmd.Value)
	if p.OnSettingsChange != nil {
		p.OnSettingsChange(p.Settings())
	}
	return nil
}

func (p *Pipeline) setPublishInterval(minutes int) error {
	if minutes < MinPublishIntervalMinutes || minutes > MaxPublishIntervalMinutes {
		return errors.Wrapf(ErrInvalidValue, "interval %d not in [%d, %d] minutes",
			minutes, MinPublishIntervalMinutes, MaxPublishIntervalMinutes)
	}
	p.publishMinutes = minutes
	p.schedule = NewSchedule(minutes, p.windowSize)
	log.Infof("Pipeline: read interval now %v", time.Duration(p.schedule.ReadInterval)*time.Millisecond)
	return nil
}

// ValidateAltitude accepts [0, 9000] m; 0 disables sea-level correction
func ValidateAltitude(meters float64) error {
	if math.IsNaN(meters) || meters < 0 || meters > MaxAltitudeMeters {
		return errors.Wrapf(ErrAltitudeRange, "%v not in [0, %v]", meters, MaxAltitudeMeters)
	}
	return nil
}

func validateOffset(offset float64) error {
	if math.IsNaN(offset) || math.Abs(offset) > MaxOffset {
		return errors.Wrapf(ErrInvalidValue, "offset %v not in [-%v, %v]", offset, MaxOffset, MaxOffset)
	}
	return nil
}

// decodeValue unmarshals a command value. Dashboards often send scalars as
// strings, so a JSON string is unquoted and decoded again.
func decodeValue(raw json.RawMessage, v interface{}) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return errors.Wrap(ErrInvalidValue, "empty value")
	}
	err := json.Unmarshal(raw, v)
	if err == nil {
		return nil
	}
	if raw[0] == '"' {
		var inner string
		if json.Unmarshal(raw, &inner) == nil {
			if err2 := json.Unmarshal([]byte(inner), v); err2 == nil {
				return nil
			}
		}
	}
	return errors.Wrapf(ErrInvalidValue, "%s: %v", raw, err)
}
