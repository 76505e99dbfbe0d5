package monitor

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"air-monitor/internal/models"
)

const namespace = "klimerko"

// Metrics holds the Prometheus view of published snapshots
type Metrics struct {
	registry *prometheus.Registry

	particulates   *prometheus.GaugeVec
	environment    *prometheus.GaugeVec
	particleCounts *prometheus.GaugeVec
	airQuality     prometheus.Gauge
	sensorStatus   *prometheus.GaugeVec
	alarmTriggered prometheus.Gauge
	frames         *prometheus.CounterVec
	alarms         prometheus.Counter
	snapshots      prometheus.Counter
	cycles         prometheus.Counter

	mu        sync.Mutex
	lastCycle uint64
	lastOK    uint32
	lastDrops map[string]uint32
}

// NewMetrics creates the collectors on a private registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		particulates: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "particulate_concentration",
			Help:      "Conditioned particulate mass concentration in µg/m³",
		}, []string{"size", "kind"}),

		environment: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "environment",
			Help:      "Conditioned and derived environmental quantities",
		}, []string{"quantity"}),

		particleCounts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "particle_count",
			Help:      "Particles per 0.1 L above the given diameter in µm",
		}, []string{"diameter"}),

		airQuality: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "air_quality_band",
			Help:      "Air quality band from 0 (excellent) to 4 (very polluted), -1 when unknown",
		}),

		sensorStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sensor_status",
			Help:      "Sensor health code, 0 is OK",
		}, []string{"sensor"}),

		alarmTriggered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alarm_triggered",
			Help:      "1 while the particulate alarm is triggered",
		}),

		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pms_frames_total",
			Help:      "Particulate sensor frames by outcome",
		}, []string{"result"}),

		alarms: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alarm_events_total",
			Help:      "Alarm notifications raised",
		}),

		snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_published_total",
			Help:      "Snapshots published",
		}),

		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_cycles_total",
			Help:      "Completed sensor read cycles",
		}),

		lastDrops: map[string]uint32{},
	}

	m.registry.MustRegister(
		m.particulates,
		m.environment,
		m.particleCounts,
		m.airQuality,
		m.sensorStatus,
		m.alarmTriggered,
		m.frames,
		m.alarms,
		m.snapshots,
		m.cycles,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry exposes the registry for the /metrics handler
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Observe updates every collector from a snapshot. Stale halves keep their previous values.
func (m *Metrics) Observe(s *models.Snapshot) {
	m.snapshots.Inc()

	if !s.Reading.ParticlesStale {
		pm := s.Reading.Particulates
		m.particulates.WithLabelValues("pm1", "raw").Set(float64(pm.PM1))
		m.particulates.WithLabelValues("pm2_5", "raw").Set(float64(pm.PM25))
		m.particulates.WithLabelValues("pm10", "raw").Set(float64(pm.PM10))
		m.particulates.WithLabelValues("pm1", "corrected").Set(float64(s.Derived.PM1Corrected))
		m.particulates.WithLabelValues("pm2_5", "corrected").Set(float64(s.Derived.PM25Corrected))
		m.particulates.WithLabelValues("pm10", "corrected").Set(float64(s.Derived.PM10Corrected))

		m.particleCounts.WithLabelValues("0.3").Set(float64(pm.Count03))
		m.particleCounts.WithLabelValues("0.5").Set(float64(pm.Count05))
		m.particleCounts.WithLabelValues("1.0").Set(float64(pm.Count10))
		m.particleCounts.WithLabelValues("2.5").Set(float64(pm.Count25))
		m.particleCounts.WithLabelValues("5.0").Set(float64(pm.Count50))
		m.particleCounts.WithLabelValues("10.0").Set(float64(pm.Count100))
	}

	if !s.Reading.EnvStale {
		env := s.Reading.Environment
		m.environment.WithLabelValues("temperature_celsius").Set(env.Temperature)
		m.environment.WithLabelValues("humidity_percent").Set(env.Humidity)
		m.environment.WithLabelValues("pressure_hpa").Set(env.Pressure)
		m.environment.WithLabelValues("sea_level_pressure_hpa").Set(s.Derived.SeaLevelPressure)
		m.environment.WithLabelValues("dewpoint_celsius").Set(s.Derived.Dewpoint)
		m.environment.WithLabelValues("heat_index_celsius").Set(s.Derived.HeatIndex)
		m.environment.WithLabelValues("absolute_humidity_gm3").Set(s.Derived.AbsoluteHumidity)
	}

	if s.AirQuality == models.AirUnknown {
		m.airQuality.Set(-1)
	} else {
		m.airQuality.Set(float64(s.AirQuality))
	}

	m.sensorStatus.WithLabelValues("pms").Set(float64(s.PMStatus))
	m.sensorStatus.WithLabelValues("bme").Set(float64(s.EnvStatus))

	if s.Alarm.Triggered {
		m.alarmTriggered.Set(1)
	} else {
		m.alarmTriggered.Set(0)
	}

	m.observeFrames(s.FramesOK, s.DropsByCause)
	m.observeCycle(s.Cycle)
}

func (m *Metrics) observeCycle(cycle uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cycle > m.lastCycle {
		m.cycles.Add(float64(cycle - m.lastCycle))
	}
	m.lastCycle = cycle
}

// observeFrames turns the decoder's running totals into counter increments.
// A total lower than the last one means the decoder was reset.
func (m *Metrics) observeFrames(ok uint32, drops map[string]uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.frames.WithLabelValues("ok").Add(float64(delta(m.lastOK, ok)))
	m.lastOK = ok

	for cause, n := range drops {
		m.frames.WithLabelValues(cause).Add(float64(delta(m.lastDrops[cause], n)))
		m.lastDrops[cause] = n
	}
}

func delta(prev, cur uint32) uint32 {
	if cur < prev {
		return cur
	}
	return cur - prev
}

// ObserveAlarm counts one alarm event
func (m *Metrics) ObserveAlarm(e *models.AlarmEvent) {
	m.alarms.Inc()
}
