package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"air-monitor/internal/alarm"
	"air-monitor/internal/bme"
	"air-monitor/internal/clock"
	"air-monitor/internal/database"
	"air-monitor/internal/led"
	"air-monitor/internal/models"
	"air-monitor/internal/monitor"
	"air-monitor/internal/mqtt"
	"air-monitor/internal/pms"
	"air-monitor/internal/services"
	"air-monitor/internal/storage"
	"air-monitor/pkg/config"
)

const channelSize = 16

func main() {
	cfg := config.Load()
	config.SetupLogger(cfg.LogLevel, cfg.LogFormat)

	log.Printf("Starting Klimerko air monitor (device %s)...", cfg.DeviceID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	spawn := func(f func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f()
		}()
	}

	// === Settings ===
	settings := cfg.Settings()

	var store *storage.Store
	if cfg.RedisAddr != "" {
		var err error
		store, err = storage.NewStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.DeviceID)
		if err != nil {
			log.Warnf("Redis unavailable, settings will not persist: %v", err)
		} else {
			defer store.Close()
			settings = loadSettings(ctx, store, settings)
		}
	}

	// === Sensors ===
	log.Println("Opening particulate sensor...")
	stream, err := pms.OpenSerial(pms.SerialConfig{Name: cfg.PMSSerialPort, Baud: cfg.PMSBaudRate})
	if err != nil {
		log.Fatalf("Failed to open particulate sensor: %v", err)
	}
	defer stream.Close()
	pmSensor := pms.NewSensor(stream)

	envSensor := bme.New(bme.Config{Bus: cfg.I2CBus})
	defer envSensor.Close()

	var indicator alarm.Indicator
	if cfg.LEDPin != "" {
		blinker, err := led.Open(led.Config{Pin: cfg.LEDPin, ActiveLow: cfg.LEDActiveLow})
		if err != nil {
			log.Warnf("LED disabled: %v", err)
		} else {
			indicator = blinker
		}
	}

	// === MQTT ===
	log.Println("Connecting to MQTT broker...")
	commandChan := make(chan models.Command, channelSize)
	subscriberConfig := mqtt.SubscriberConfig{
		DeviceID:     cfg.DeviceID,
		CommandTopic: cfg.MQTTTopicCommand,
	}

	mqttClient, err := mqtt.NewClient(mqtt.ClientConfig{
		Broker:   cfg.MQTTBroker,
		ClientID: cfg.MQTTClientID,
		Username: cfg.MQTTUsername,
		Password: cfg.MQTTPassword,
		DeviceID: cfg.DeviceID,

		AvailabilityTopic: cfg.MQTTTopicAvailability,

		// subscriptions do not survive a clean reconnect
		OnConnect: func(c paho.Client) {
			if err := mqtt.NewSubscriber(c, subscriberConfig, commandChan).SubscribeAll(); err != nil {
				log.Errorf("Failed to subscribe to command topic: %v", err)
			}
		},
	})
	if err != nil {
		log.Fatalf("Failed to initialize MQTT client: %v", err)
	}
	defer mqttClient.Close()

	mqttSnapshots := make(chan *models.Snapshot, channelSize)
	publisher := mqtt.NewPublisher(mqttClient.Native(), mqtt.PublisherConfig{
		DeviceID:   cfg.DeviceID,
		StateTopic: cfg.MQTTTopicState,
	}, mqttSnapshots)

	// === Pipeline ===
	pipelineConfig := services.DefaultPipelineConfig()
	pipelineConfig.DeviceID = cfg.DeviceID
	pipelineConfig.NoSleep = cfg.PMSNoSleep
	pipelineConfig.Settings = settings
	pipelineConfig.ChannelSize = channelSize
	pipeline := services.NewPipeline(pipelineConfig, pmSensor, envSensor, publisher, indicator)

	snapshotOuts := []chan *models.Snapshot{mqttSnapshots}
	var alarmOuts []chan *models.AlarmEvent
	var statusOuts []chan *models.StatusChange

	// === Monitor ===
	server := monitor.NewServer(monitor.ServerConfig{Addr: cfg.HTTPAddr, DeviceID: cfg.DeviceID}, monitor.NewMetrics(), pipeline)
	server.Commands = commandChan
	server.Broker = mqttClient
	server.SnapshotChan = make(chan *models.Snapshot, channelSize)
	server.AlarmChan = make(chan *models.AlarmEvent, channelSize)
	snapshotOuts = append(snapshotOuts, server.SnapshotChan)
	alarmOuts = append(alarmOuts, server.AlarmChan)

	// === Persistence ===
	if store != nil {
		server.Log = store
		server.Settings = store
		store.SnapshotChan = make(chan *models.Snapshot, channelSize)
		snapshotOuts = append(snapshotOuts, store.SnapshotChan)

		settingsChan := make(chan models.Settings, 4)
		pipeline.OnSettingsChange = func(s models.Settings) {
			select {
			case settingsChan <- s:
			default:
				log.Warn("Settings queue full, change not persisted")
			}
		}
		spawn(func() { store.Start(ctx) })
		spawn(func() { store.PersistSettings(ctx, settingsChan) })
	}

	if cfg.ClickHouseAddr != "" {
		db, err := database.NewClickHouseDB(cfg.ClickHouseAddr, cfg.ClickHouseDB, cfg.ClickHouseUser, cfg.ClickHousePass)
		if err != nil {
			log.Warnf("ClickHouse unavailable, history disabled: %v", err)
		} else {
			defer db.Close()
			server.History = db
			writer := database.NewWriter(db,
				make(chan *models.Snapshot, channelSize),
				make(chan *models.AlarmEvent, channelSize),
				make(chan *models.StatusChange, channelSize))
			snapshotOuts = append(snapshotOuts, writer.SnapshotChan)
			alarmOuts = append(alarmOuts, writer.AlarmChan)
			statusOuts = append(statusOuts, writer.StatusChan)
			spawn(func() { writer.Start(ctx) })
		}
	}

	schedule := pipeline.Schedule()

	spawn(func() { services.FanOut(ctx, "snapshots", pipeline.Snapshots, snapshotOuts...) })
	spawn(func() { services.FanOut(ctx, "alarms", pipeline.Alarms, alarmOuts...) })
	spawn(func() { services.FanOut(ctx, "status", pipeline.StatusChanges, statusOuts...) })
	spawn(func() { publisher.Start(ctx) })
	spawn(func() { server.Start(ctx) })
	spawn(func() { pipeline.Run(ctx, clock.NewSystem(), cfg.TickInterval, commandChan) })

	log.Println("=== Klimerko air monitor is running ===")
	log.Printf("Publish interval: %d min, read every %v, sensor sleep: %v",
		settings.PublishIntervalMinutes,
		time.Duration(schedule.ReadInterval)*time.Millisecond,
		!cfg.PMSNoSleep && !schedule.KeepAwake)
	log.Printf("MQTT Topics:")
	log.Printf("  - State:   %s", cfg.MQTTTopicState)
	log.Printf("  - Command: %s", cfg.MQTTTopicCommand)
	log.Printf("  - Availability: %s", cfg.MQTTTopicAvailability)
	log.Printf("HTTP: %s", cfg.HTTPAddr)
	log.Println("Press Ctrl+C to exit...")

	// === Wait for interrupt signal ===
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// === Graceful shutdown ===
	log.Println("Shutdown signal received, stopping services...")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Warn("Timed out waiting for services to stop")
	}

	log.Println("Shutdown complete. Goodbye!")
}

// loadSettings prefers persisted settings over configured ones when they verify
func loadSettings(ctx context.Context, store *storage.Store, configured models.Settings) models.Settings {
	lctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	saved, err := store.LoadSettings(lctx)
	switch {
	case err == nil:
		log.Println("Loaded persisted settings")
		return saved
	case errors.Is(err, storage.ErrSettingsAbsent):
		log.Println("No persisted settings, using configuration")
	case errors.Is(err, storage.ErrCorrupt), errors.Is(err, storage.ErrVersion):
		log.Warnf("Persisted settings rejected, using configuration: %v", err)
	default:
		log.Warnf("Could not load persisted settings: %v", err)
	}
	return configured
}
