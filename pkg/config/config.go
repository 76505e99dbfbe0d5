package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"air-monitor/internal/alarm"
	"air-monitor/internal/models"
	"air-monitor/internal/services"
)

type Config struct {
	DeviceID string `yaml:"device_id"`

	// MQTT Configuration
	MQTTBroker       string `yaml:"mqtt_broker"`
	MQTTClientID     string `yaml:"mqtt_client_id"`
	MQTTUsername     string `yaml:"mqtt_username"`
	MQTTPassword     string `yaml:"mqtt_password"`
	MQTTTopicState   string `yaml:"mqtt_topic_state"`
	MQTTTopicCommand string `yaml:"mqtt_topic_command"`

	// MQTTTopicAvailability carries retained online/offline; empty disables it
	MQTTTopicAvailability string `yaml:"mqtt_topic_availability"`

	// ClickHouse Configuration, empty address disables history
	ClickHouseAddr string `yaml:"clickhouse_addr"`
	ClickHouseDB   string `yaml:"clickhouse_db"`
	ClickHouseUser string `yaml:"clickhouse_user"`
	ClickHousePass string `yaml:"clickhouse_pass"`

	// Redis Configuration, empty address disables settings persistence and the log
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// Hardware
	PMSSerialPort string `yaml:"pms_serial_port"`
	PMSBaudRate   int    `yaml:"pms_baud_rate"`
	PMSNoSleep    bool   `yaml:"pms_no_sleep"`
	I2CBus        string `yaml:"i2c_bus"`
	LEDPin        string `yaml:"led_pin"` // empty disables the LED
	LEDActiveLow  bool   `yaml:"led_active_low"`

	// Device settings, overridden by persisted settings when present
	PublishIntervalMinutes int           `yaml:"publish_interval_minutes"`
	AltitudeMeters         float64       `yaml:"altitude_meters"`
	TemperatureOffset      float64       `yaml:"temperature_offset"`
	HumidityOffset         float64       `yaml:"humidity_offset"`
	PM25CalFactor          float64       `yaml:"pm25_cal_factor"`
	PM10CalFactor          float64       `yaml:"pm10_cal_factor"`
	AlarmEnabled           bool          `yaml:"alarm_enabled"`
	AlarmPM25Threshold     int           `yaml:"alarm_pm25_threshold"`
	AlarmPM10Threshold     int           `yaml:"alarm_pm10_threshold"`
	AlarmCooldown          time.Duration `yaml:"alarm_cooldown"`

	// Service
	HTTPAddr     string        `yaml:"http_addr"`
	TickInterval time.Duration `yaml:"tick_interval"`
	LogLevel     string        `yaml:"log_level"`
	LogFormat    string        `yaml:"log_format"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		DeviceID: "klimerko",

		MQTTBroker:       "tcp://localhost:1883",
		MQTTClientID:     "klimerko",
		MQTTTopicState:   "device/{device_id}/state",
		MQTTTopicCommand: "device/{device_id}/asset/+/command",

		MQTTTopicAvailability: "device/{device_id}/availability",

		ClickHouseDB:   "air",
		ClickHouseUser: "default",

		PMSSerialPort: "/dev/ttyS0",
		PMSBaudRate:   9600,

		PublishIntervalMinutes: services.DefaultPublishIntervalMinutes,
		TemperatureOffset:      models.DefaultTemperatureOffset,
		PM25CalFactor:          1.0,
		PM10CalFactor:          1.0,
		AlarmEnabled:           true,
		AlarmPM25Threshold:     alarm.DefaultPM25Threshold,
		AlarmPM10Threshold:     alarm.DefaultPM10Threshold,
		AlarmCooldown:          alarm.DefaultCooldown,

		HTTPAddr:     ":8080",
		TickInterval: services.DefaultTickInterval,
		LogLevel:     "info",
		LogFormat:    "text",
	}
}

// Load resolves defaults, then CONFIG_FILE, then .env and the process environment
func Load() *Config {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("Config: failed to read .env: %v", err)
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			log.Warnf("Config: %v, continuing without it", err)
		}
	}

	cfg.ApplyEnv()
	return cfg
}

// LoadFile overlays the YAML file at path; keys absent from the file keep their value
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read config file %s", path)
	}
	tick := c.TickInterval
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrapf(err, "parse config file %s", path)
	}
	c.TickInterval = validTick("tick_interval", c.TickInterval, tick)
	return nil
}

// ApplyEnv overlays every variable that is set. Unparseable values keep the previous value.
func (c *Config) ApplyEnv() {
	c.DeviceID = getEnv("DEVICE_ID", c.DeviceID)

	c.MQTTBroker = getEnv("MQTT_BROKER", c.MQTTBroker)
	c.MQTTClientID = getEnv("MQTT_CLIENT_ID", c.MQTTClientID)
	c.MQTTUsername = getEnv("MQTT_USERNAME", c.MQTTUsername)
	c.MQTTPassword = getEnv("MQTT_PASSWORD", c.MQTTPassword)
	c.MQTTTopicState = getEnv("MQTT_TOPIC_STATE", c.MQTTTopicState)
	c.MQTTTopicCommand = getEnv("MQTT_TOPIC_COMMAND", c.MQTTTopicCommand)
	c.MQTTTopicAvailability = getEnv("MQTT_TOPIC_AVAILABILITY", c.MQTTTopicAvailability)

	c.ClickHouseAddr = getEnv("CLICKHOUSE_ADDR", c.ClickHouseAddr)
	c.ClickHouseDB = getEnv("CLICKHOUSE_DB", c.ClickHouseDB)
	c.ClickHouseUser = getEnv("CLICKHOUSE_USER", c.ClickHouseUser)
	c.ClickHousePass = getEnv("CLICKHOUSE_PASS", c.ClickHousePass)

	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = getEnvInt("REDIS_DB", c.RedisDB)

	c.PMSSerialPort = getEnv("PMS_SERIAL_PORT", c.PMSSerialPort)
	c.PMSBaudRate = getEnvInt("PMS_BAUD_RATE", c.PMSBaudRate)
	c.PMSNoSleep = getEnvBool("PMS_NO_SLEEP", c.PMSNoSleep)
	c.I2CBus = getEnv("I2C_BUS", c.I2CBus)
	c.LEDPin = getEnv("LED_PIN", c.LEDPin)
	c.LEDActiveLow = getEnvBool("LED_ACTIVE_LOW", c.LEDActiveLow)

	c.PublishIntervalMinutes = getEnvInt("PUBLISH_INTERVAL_MINUTES", c.PublishIntervalMinutes)
	c.AltitudeMeters = getEnvFloat("ALTITUDE_METERS", c.AltitudeMeters)
	c.TemperatureOffset = getEnvFloat("TEMPERATURE_OFFSET", c.TemperatureOffset)
	c.HumidityOffset = getEnvFloat("HUMIDITY_OFFSET", c.HumidityOffset)
	c.PM25CalFactor = getEnvFloat("PM25_CAL_FACTOR", c.PM25CalFactor)
	c.PM10CalFactor = getEnvFloat("PM10_CAL_FACTOR", c.PM10CalFactor)
	c.AlarmEnabled = getEnvBool("ALARM_ENABLED", c.AlarmEnabled)
	c.AlarmPM25Threshold = getEnvInt("ALARM_PM25_THRESHOLD", c.AlarmPM25Threshold)
	c.AlarmPM10Threshold = getEnvInt("ALARM_PM10_THRESHOLD", c.AlarmPM10Threshold)
	c.AlarmCooldown = getEnvDuration("ALARM_COOLDOWN", c.AlarmCooldown)

	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)
	c.TickInterval = validTick("TICK_INTERVAL", getEnvDuration("TICK_INTERVAL", c.TickInterval), c.TickInterval)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
}

// Settings returns the device settings described by the configuration
func (c *Config) Settings() models.Settings {
	return models.Settings{
		PublishIntervalMinutes: c.PublishIntervalMinutes,
		AltitudeMeters:         c.AltitudeMeters,
		Calibration: models.Calibration{
			PM25Factor:        c.PM25CalFactor,
			PM10Factor:        c.PM10CalFactor,
			TemperatureOffset: c.TemperatureOffset,
			HumidityOffset:    c.HumidityOffset,
		},
		AlarmEnabled:         c.AlarmEnabled,
		AlarmPM25Threshold:   c.AlarmPM25Threshold,
		AlarmPM10Threshold:   c.AlarmPM10Threshold,
		AlarmCooldownSeconds: int64(c.AlarmCooldown / time.Second),
	}
}

// validTick keeps previous when tick could not be honoured by the pipeline
func validTick(key string, tick, previous time.Duration) time.Duration {
	if err := services.ValidateTickInterval(tick); err != nil {
		log.Warnf("Config: %s rejected, using %v: %v", key, previous, err)
		return previous
	}
	return tick
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Warnf("Config: failed to parse %s as int, using default: %v", key, err)
		return defaultValue
	}
	return intValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Warnf("Config: failed to parse %s as float, using default: %v", key, err)
		return defaultValue
	}
	return floatValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		log.Warnf("Config: failed to parse %s as bool, using default: %v", key, err)
		return defaultValue
	}
	return boolValue
}

// getEnvDuration accepts Go durations ("90s") or bare seconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Warnf("Config: failed to parse %s as duration, using default: %v", key, err)
		return defaultValue
	}
	return d
}
