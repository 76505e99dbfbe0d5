package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
)

func TestDefaultsMatchFactorySettings(t *testing.T) {
	s := Default().Settings()
	if s.PublishIntervalMinutes != 15 || s.AlarmPM25Threshold != 35 || s.AlarmPM10Threshold != 45 {
		t.Errorf("default settings = %+v", s)
	}
	if !s.AlarmEnabled || s.AlarmCooldownSeconds != 3600 {
		t.Errorf("default alarm = %v %d", s.AlarmEnabled, s.AlarmCooldownSeconds)
	}
	if s.Calibration.PM25Factor != 1 || s.Calibration.TemperatureOffset != -2 {
		t.Errorf("default calibration = %+v", s.Calibration)
	}
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "klimerko.yaml")
	yaml := `
device_id: balcony
mqtt_broker: tcp://broker:1883
altitude_meters: 117
alarm_cooldown: 30m
pms_no_sleep: true
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := Default()
	if err := cfg.LoadFile(path); err != nil {
		t.Fatal(err)
	}
	if cfg.DeviceID != "balcony" || cfg.MQTTBroker != "tcp://broker:1883" || !cfg.PMSNoSleep {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.AltitudeMeters != 117 || cfg.AlarmCooldown != 30*time.Minute {
		t.Errorf("altitude %v cooldown %v", cfg.AltitudeMeters, cfg.AlarmCooldown)
	}
	if cfg.PMSBaudRate != 9600 || cfg.HTTPAddr != ":8080" {
		t.Errorf("absent keys lost their defaults: baud %d http %q", cfg.PMSBaudRate, cfg.HTTPAddr)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if err := Default().LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("DEVICE_ID", "kitchen")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("PM25_CAL_FACTOR", "1.25")
	t.Setenv("ALARM_ENABLED", "false")
	t.Setenv("ALARM_COOLDOWN", "600")
	t.Setenv("TICK_INTERVAL", "20ms")
	t.Setenv("PUBLISH_INTERVAL_MINUTES", "five")

	cfg := Default()
	cfg.ApplyEnv()

	if cfg.DeviceID != "kitchen" || cfg.RedisDB != 2 || cfg.PM25CalFactor != 1.25 {
		t.Errorf("env not applied: %+v", cfg)
	}
	if cfg.AlarmEnabled || cfg.AlarmCooldown != 10*time.Minute || cfg.TickInterval != 20*time.Millisecond {
		t.Errorf("alarm %v cooldown %v tick %v", cfg.AlarmEnabled, cfg.AlarmCooldown, cfg.TickInterval)
	}
	if cfg.PublishIntervalMinutes != 15 {
		t.Errorf("unparseable interval replaced default: %d", cfg.PublishIntervalMinutes)
	}
}

func TestApplyEnvRejectsUnusableTick(t *testing.T) {
	for _, value := range []string{"0", "0s", "-20ms", "100ms", "2"} {
		t.Setenv("TICK_INTERVAL", value)
		cfg := Default()
		cfg.ApplyEnv()
		if cfg.TickInterval != 50*time.Millisecond {
			t.Errorf("TICK_INTERVAL=%s gave tick %v, want default kept", value, cfg.TickInterval)
		}
	}
}

func TestLoadFileRejectsUnusableTick(t *testing.T) {
	path := filepath.Join(t.TempDir(), "klimerko.yaml")
	if err := os.WriteFile(path, []byte("tick_interval: 0s\ndevice_id: porch\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := Default()
	cfg.TickInterval = 30 * time.Millisecond
	if err := cfg.LoadFile(path); err != nil {
		t.Fatal(err)
	}
	if cfg.TickInterval != 30*time.Millisecond || cfg.DeviceID != "porch" {
		t.Errorf("tick %v device %q", cfg.TickInterval, cfg.DeviceID)
	}
}

func TestSetupLogger(t *testing.T) {
	defer log.SetLevel(log.InfoLevel)

	SetupLogger("debug", "json")
	if log.GetLevel() != log.DebugLevel {
		t.Errorf("level = %v", log.GetLevel())
	}
	if _, ok := log.StandardLogger().Formatter.(*log.JSONFormatter); !ok {
		t.Errorf("formatter = %T", log.StandardLogger().Formatter)
	}

	SetupLogger("loud", "text")
	if log.GetLevel() != log.InfoLevel {
		t.Errorf("unknown level should fall back to info, got %v", log.GetLevel())
	}
}
