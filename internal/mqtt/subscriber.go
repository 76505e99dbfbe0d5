package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"air-monitor/internal/models"
)

// Subscriber handles the command subscription and writes commands to a channel
type Subscriber struct {
	client   Broker
	deviceID string

	// Output channel (written by subscriber, read by the pipeline)
	CommandChan chan models.Command

	// Topic pattern
	commandTopic string
}

// SubscriberConfig holds configuration for MQTT subscriber
type SubscriberConfig struct {
	DeviceID     string
	CommandTopic string // e.g., "device/{device_id}/asset/+/command"
}

// NewSubscriber creates a new MQTT subscriber with channels
func NewSubscriber(client Broker, config SubscriberConfig, commandChan chan models.Command) *Subscriber {
	return &Subscriber{
		client:       client,
		deviceID:     config.DeviceID,
		CommandChan:  commandChan,
		commandTopic: formatTopic(config.CommandTopic, config.DeviceID),
	}
}

// SubscribeAll subscribes to the command topic
func (s *Subscriber) SubscribeAll() error {
	if s.commandTopic == "" {
		return nil
	}
	token := s.client.Subscribe(s.commandTopic, 1, s.handleCommand)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to command topic: %w", token.Error())
	}
	log.Printf("Subscribed to command topic: %s", s.commandTopic)
	return nil
}

// handleCommand parses {"value": ...} and writes the command to the channel
func (s *Subscriber) handleCommand(client mqtt.Client, msg mqtt.Message) {
	if deviceID := extractDeviceID(msg.Topic()); deviceID != s.deviceID {
		log.Warnf("Ignoring command for device %q on topic: %s", deviceID, msg.Topic())
		return
	}

	asset := extractAsset(msg.Topic())
	if asset == "" {
		log.Warnf("Could not extract asset from topic: %s", msg.Topic())
		return
	}

	var payload models.CommandPayload
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		log.Warnf("Error unmarshaling %s command: %v", asset, err)
		return
	}

	cmd := models.Command{Asset: asset, Value: payload.Value}
	log.Infof("Received command for %s: %s = %s", s.deviceID, asset, payload.Value)

	// Write to channel (non-blocking with timeout)
	select {
	case s.CommandChan <- cmd:
	case <-time.After(1 * time.Second):
		log.Warnf("Command channel full, dropping %s command", asset)
	}
}

// extractDeviceID extracts device ID from MQTT topic
// Example: "device/klimerko-1/asset/interval/command" -> "klimerko-1"
func extractDeviceID(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) >= 2 {
		return parts[1]
	}
	return ""
}

// extractAsset returns the segment after "asset"
// Example: "device/klimerko-1/asset/interval/command" -> "interval"
func extractAsset(topic string) string {
	parts := strings.Split(topic, "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == "asset" {
			return parts[i+1]
		}
	}
	return ""
}
