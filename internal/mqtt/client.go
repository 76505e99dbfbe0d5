package mqtt

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// Availability payloads, published retained on the availability topic
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

const (
	connectTimeout  = 30 * time.Second
	publishTimeout  = 2 * time.Second
	disconnectQuiet = 250 // ms
)

// Client owns the broker connection. Publisher and Subscriber work on the
// native client it hands out.
type Client struct {
	client       mqtt.Client
	config       ClientConfig
	availability string
}

// ClientConfig holds MQTT client configuration
type ClientConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	DeviceID string

	// AvailabilityTopic may contain {device_id}; empty disables online/offline reporting
	AvailabilityTopic string

	// OnConnect runs after every (re)connect, e.g. to restore subscriptions
	OnConnect func(mqtt.Client)
}

// NewClient connects to the broker. A broker that is down at startup is not
// an error: the client keeps retrying in the background.
func NewClient(config ClientConfig) (*Client, error) {
	client := mqtt.NewClient(clientOptions(config))

	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		log.Warnf("MQTT: broker %s not reachable yet, retrying in background", config.Broker)
	} else if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	return &Client{
		client:       client,
		config:       config,
		availability: formatTopic(config.AvailabilityTopic, config.DeviceID),
	}, nil
}

func clientOptions(config ClientConfig) *mqtt.ClientOptions {
	availability := formatTopic(config.AvailabilityTopic, config.DeviceID)

	opts := mqtt.NewClientOptions().
		AddBroker(config.Broker).
		SetClientID(config.ClientID).
		SetUsername(config.Username).
		SetPassword(config.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetMaxReconnectInterval(5 * time.Minute).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(10 * time.Second)

	if availability != "" {
		opts.SetWill(availability, PayloadOffline, 1, true)
	}

	opts.SetDefaultPublishHandler(func(_ mqtt.Client, msg mqtt.Message) {
		log.Debugf("MQTT: unhandled message on %s", msg.Topic())
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warnf("MQTT: connection to %s lost: %v", config.Broker, err)
	})
	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		log.Println("MQTT: reconnecting...")
	})
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		log.Printf("MQTT: connected to %s as %s", config.Broker, config.ClientID)
		if availability != "" {
			c.Publish(availability, 1, true, PayloadOnline)
		}
		if config.OnConnect != nil {
			config.OnConnect(c)
		}
	})
	return opts
}

// Native returns the underlying paho client for Publisher and Subscriber
func (c *Client) Native() mqtt.Client {
	return c.client
}

func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// Close reports the device offline and disconnects. The will is not sent
// on a clean disconnect, so the offline message is published here.
func (c *Client) Close() {
	if c.availability != "" && c.client.IsConnected() {
		if !c.client.Publish(c.availability, 1, true, PayloadOffline).WaitTimeout(publishTimeout) {
			log.Warn("MQTT: offline message not acknowledged")
		}
	}
	c.client.Disconnect(disconnectQuiet)
	log.Println("MQTT: Disconnected")
}
