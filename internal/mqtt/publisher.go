package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"air-monitor/internal/models"
)

// Broker is the part of the paho client used by Publisher and Subscriber
type Broker interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// Publisher publishes state snapshots from a channel and alarm notifications
type Publisher struct {
	client   Broker
	deviceID string

	// Input channel (read by publisher, written by the pipeline)
	SnapshotChan chan *models.Snapshot

	// Topic pattern
	stateTopic string // e.g., "device/{device_id}/state"
}

// PublisherConfig holds configuration for MQTT publisher
type PublisherConfig struct {
	DeviceID   string
	StateTopic string // e.g., "device/{device_id}/state"
}

// Value is one asset in a state message
type Value struct {
	Value interface{} `json:"value"`
}

// NewPublisher creates a new MQTT publisher with channels
func NewPublisher(client Broker, config PublisherConfig, snapshotChan chan *models.Snapshot) *Publisher {
	return &Publisher{
		client:       client,
		deviceID:     config.DeviceID,
		SnapshotChan: snapshotChan,
		stateTopic:   formatTopic(config.StateTopic, config.DeviceID),
	}
}

// Start begins publishing snapshots from the channel
// Runs until context is cancelled or channel is closed
func (p *Publisher) Start(ctx context.Context) {
	log.Println("MQTT Publisher: Starting...")

	for {
		select {
		case <-ctx.Done():
			log.Println("MQTT Publisher: Context cancelled, shutting down...")
			return

		case snap, ok := <-p.SnapshotChan:
			if !ok {
				log.Println("MQTT Publisher: Snapshot channel closed, shutting down...")
				return
			}

			if err := p.publishState(snap); err != nil {
				log.Errorf("Error publishing state: %v", err)
			}
		}
	}
}

func (p *Publisher) publishState(snap *models.Snapshot) error {
	payload, err := json.Marshal(StatePayload(snap))
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	token := p.client.Publish(p.stateTopic, 1, false, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish state: %w", token.Error())
	}

	log.Debugf("Published state for device %s cycle %d to topic: %s", snap.DeviceID, snap.Cycle, p.stateTopic)
	return nil
}

// Notify publishes {"alarm":{"value":reason}} to the state topic. It does not
// wait for delivery so the caller's tick is never held up by the broker.
func (p *Publisher) Notify(reason string) error {
	payload, err := json.Marshal(map[string]Value{"alarm": {Value: reason}})
	if err != nil {
		return fmt.Errorf("failed to marshal alarm: %w", err)
	}

	token := p.client.Publish(p.stateTopic, 1, false, payload)
	go func() {
		if token.Wait() && token.Error() != nil {
			log.Errorf("Error publishing alarm: %v", token.Error())
		}
	}()
	return nil
}

// StatePayload maps a snapshot onto asset names. Values of a stale sensor are left out.
func StatePayload(s *models.Snapshot) map[string]Value {
	out := map[string]Value{
		"air-quality":         {s.AirQuality.String()},
		"air-quality-warning": {s.AirQuality.NeedsHealthWarning()},
		"sensor-status":       {s.PMStatus.String()},
		"env-status":          {s.EnvStatus.String()},
	}

	if !s.Reading.ParticlesStale {
		pm := s.Reading.Particulates
		out["pm1"] = Value{pm.PM1}
		out["pm2-5"] = Value{pm.PM25}
		out["pm10"] = Value{pm.PM10}
		out["count-0-3"] = Value{pm.Count03}
		out["count-0-5"] = Value{pm.Count05}
		out["count-1-0"] = Value{pm.Count10}
		out["count-2-5"] = Value{pm.Count25}
		out["count-5-0"] = Value{pm.Count50}
		out["count-10-0"] = Value{pm.Count100}
	}

	if !s.Reading.EnvStale {
		env := s.Reading.Environment
		out["temperature"] = Value{env.Temperature}
		out["humidity"] = Value{env.Humidity}
		out["pressure"] = Value{env.Pressure}
		out["dewpoint"] = Value{s.Derived.Dewpoint}
		out["humidityAbs"] = Value{s.Derived.AbsoluteHumidity}
		out["pressureSea"] = Value{s.Derived.SeaLevelPressure}
		out["HeatIndex"] = Value{s.Derived.HeatIndex}

		if !s.Reading.ParticlesStale {
			out["pm1-c"] = Value{s.Derived.PM1Corrected}
			out["pm2-5-c"] = Value{s.Derived.PM25Corrected}
			out["pm10-c"] = Value{s.Derived.PM10Corrected}
		}
	}
	return out
}

// formatTopic replaces {device_id} placeholder with actual device ID
func formatTopic(topicPattern, deviceID string) string {
	return strings.ReplaceAll(topicPattern, "{device_id}", deviceID)
}
