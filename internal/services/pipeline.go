package services

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"air-monitor/internal/aggregator"
	"air-monitor/internal/alarm"
	"air-monitor/internal/clock"
	"air-monitor/internal/environment"
	"air-monitor/internal/health"
	"air-monitor/internal/models"
	"air-monitor/internal/pms"
)

// ParticleSensor is the particulate sensor link. *pms.Sensor implements it.
type ParticleSensor interface {
	Init() error
	WakeUp() error
	Sleep() error
	PassiveMode() error
	RequestRead() error
	Flush()
	Poll(now clock.Millis) (pms.RawFrame, bool)
	Stats() pms.DecoderStats
}

// EnvSensor reads temperature, humidity and pressure
type EnvSensor interface {
	Init() error
	Read() (models.EnvSample, error)
}

// Sensor names used in logs and status changes
const (
	SensorPM  = "pms"
	SensorEnv = "bme"
)

// Physical validity bounds for environmental samples
const (
	MinValidTemperature = -40.0 // exclusive
	MaxValidTemperature = 85.0  // exclusive
	MinValidHumidity    = 0.0
	MaxValidHumidity    = 100.0
)

// DefaultTickInterval is the pipeline tick. Bytes are stamped with the tick
// time, so a tick must stay below the frame decoder's inter-byte timeout.
const DefaultTickInterval = 50 * time.Millisecond

var (
	ErrOutOfRange   = errors.New("environmental sample out of range")
	ErrTickInterval = errors.New("invalid tick interval")
)

// ValidateTickInterval accepts ticks in (0, pms.FrameTimeoutMillis) ms
func ValidateTickInterval(d time.Duration) error {
	limit := time.Duration(pms.FrameTimeoutMillis) * time.Millisecond
	if d <= 0 || d >= limit {
		return errors.Wrapf(ErrTickInterval, "%v not in (0, %v)", d, limit)
	}
	return nil
}

// PipelineConfig holds configuration for the pipeline
type PipelineConfig struct {
	DeviceID    string
	WindowSize  int
	NoSleep     bool
	Settings    models.Settings
	ChannelSize int
}

// DefaultSettings returns the factory device settings
func DefaultSettings() models.Settings {
	cfg := alarm.DefaultConfig()
	return models.Settings{
		PublishIntervalMinutes: DefaultPublishIntervalMinutes,
		Calibration:            models.DefaultCalibration(),
		AlarmEnabled:           cfg.Enabled,
		AlarmPM25Threshold:     cfg.PM25Threshold,
		AlarmPM10Threshold:     cfg.PM10Threshold,
		AlarmCooldownSeconds:   int64(cfg.Cooldown / time.Second),
	}
}

// DefaultPipelineConfig returns default configuration
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		DeviceID:    "klimerko",
		WindowSize:  aggregator.DefaultWindowSize,
		Settings:    DefaultSettings(),
		ChannelSize: 16,
	}
}

// Pipeline is the single owner of all acquisition state: filters, health
// counters, alarm state and schedule. Only Latest may be called from other
// goroutines while Run is active.
type Pipeline struct {
	deviceID   string
	windowSize int
	noSleep    bool

	pm  ParticleSensor
	env EnvSensor

	conditioner *aggregator.Conditioner
	pmHealth    *health.Tracker
	envHealth   *health.Tracker
	fan         health.FanDetector
	fanStatus   models.SensorStatus
	alarm       *alarm.Engine

	schedule       Schedule
	publishMinutes int
	altitude       float64

	started       bool
	lastRead      clock.Millis
	awaiting      bool
	requestedAt   clock.Millis
	pmAsleep      bool
	reading       models.ConditionedReading
	cycle         uint64
	lastPublished uint64
	lastPMStatus  models.SensorStatus
	lastEnvStatus models.SensorStatus

	wallClock func() time.Time

	mu     sync.RWMutex
	latest *models.Snapshot

	// Output channels, closed when Run returns
	Snapshots     chan *models.Snapshot
	Alarms        chan *models.AlarmEvent
	StatusChanges chan *models.StatusChange

	// OnSettingsChange is called from the pipeline goroutine after an accepted command
	OnSettingsChange func(models.Settings)
}

// NewPipeline creates a pipeline. Invalid settings are replaced by their
// defaults and logged.
func NewPipeline(config PipelineConfig, pm ParticleSensor, env EnvSensor, notifier alarm.Notifier, indicator alarm.Indicator) *Pipeline {
	s := config.Settings
	defaults := DefaultSettings()

	if s.PublishIntervalMinutes < MinPublishIntervalMinutes || s.PublishIntervalMinutes > MaxPublishIntervalMinutes {
		log.Warnf("Pipeline: publish interval %d out of range, using %d", s.PublishIntervalMinutes, defaults.PublishIntervalMinutes)
		s.PublishIntervalMinutes = defaults.PublishIntervalMinutes
	}
	if err := ValidateAltitude(s.AltitudeMeters); err != nil {
		log.Warnf("Pipeline: %v, altitude correction disabled", err)
		s.AltitudeMeters = 0
	}

	conditioner, err := aggregator.NewConditioner(config.WindowSize, s.Calibration)
	if err != nil {
		log.Warnf("Pipeline: invalid calibration, using defaults: %v", err)
	}

	engine, err := alarm.NewEngine(config.DeviceID, alarm.Config{
		Enabled:       s.AlarmEnabled,
		PM25Threshold: s.AlarmPM25Threshold,
		PM10Threshold: s.AlarmPM10Threshold,
		Cooldown:      time.Duration(s.AlarmCooldownSeconds) * time.Second,
	}, notifier, indicator)
	if err != nil {
		log.Warnf("Pipeline: invalid alarm configuration, using defaults where needed: %v", err)
	}

	window := aggregator.NewWindow(config.WindowSize)
	windowSize := window.Size()
	return &Pipeline{
		deviceID:       config.DeviceID,
		windowSize:     windowSize,
		noSleep:        config.NoSleep,
		pm:             pm,
		env:            env,
		conditioner:    conditioner,
		pmHealth:       health.NewTracker(SensorPM),
		envHealth:      health.NewTracker(SensorEnv),
		fanStatus:      models.StatusOK,
		alarm:          engine,
		schedule:       NewSchedule(s.PublishIntervalMinutes, windowSize),
		publishMinutes: s.PublishIntervalMinutes,
		altitude:       s.AltitudeMeters,
		lastPMStatus:   models.StatusInitializing,
		lastEnvStatus:  models.StatusInitializing,
		wallClock:      time.Now,
		Snapshots:      make(chan *models.Snapshot, config.ChannelSize),
		Alarms:         make(chan *models.AlarmEvent, config.ChannelSize),
		StatusChanges:  make(chan *models.StatusChange, config.ChannelSize),
	}
}

// Init initializes both sensors. Failures are not fatal; the read cycles
// drive the sensors offline and retry re-initialization.
func (p *Pipeline) Init() {
	if err := p.pm.Init(); err != nil {
		log.Warnf("Pipeline: PM sensor init failed: %v", err)
	}
	if err := p.env.Init(); err != nil {
		log.Warnf("Pipeline: environment sensor init failed: %v", err)
	}
	log.Infof("Pipeline: read interval %v, window %d, publish every %d min",
		time.Duration(p.schedule.ReadInterval)*time.Millisecond, p.windowSize, p.publishMinutes)
}

// Run drives Tick from a ticker and applies commands until ctx is cancelled
func (p *Pipeline) Run(ctx context.Context, clk clock.Clock, tick time.Duration, commands <-chan models.Command) {
	log.Println("Pipeline: Starting...")
	if err := ValidateTickInterval(tick); err != nil {
		log.Warnf("Pipeline: %v, using %v", err, DefaultTickInterval)
		tick = DefaultTickInterval
	}
	p.Init()

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	p.Tick(clk.Now())
	for {
		select {
		case <-ctx.Done():
			log.Println("Pipeline: Shutting down...")
			close(p.Snapshots)
			close(p.Alarms)
			close(p.StatusChanges)
			log.Println("Pipeline: Shutdown complete")
			return
		case <-ticker.C:
			p.Tick(clk.Now())
		case cmd, ok := <-commands:
			if !ok {
				commands = nil
				continue
			}
			_ = p.Apply(cmd)
		}
	}
}

// Tick advances the pipeline. It never blocks: a read cycle spans several
// ticks while the requested frame arrives.
func (p *Pipeline) Tick(now clock.Millis) {
	if p.awaiting {
		p.awaitFrame(now)
		return
	}
	if !p.started || p.schedule.ReadDue(now, p.lastRead) {
		p.startCycle(now)
		return
	}
	if p.pmAsleep && p.pmHealth.Online() && p.schedule.WakeDue(now, p.lastRead) {
		log.Debugf("Pipeline: waking PM sensor %v before read", time.Duration(p.schedule.WakeLead)*time.Millisecond)
		p.wake()
	}
}

func (p *Pipeline) startCycle(now clock.Millis) {
	p.started = true
	p.lastRead = now
	if p.pmAsleep {
		p.wake()
	}

	p.readEnvironment()

	p.pm.Flush()
	if err := p.pm.RequestRead(); err != nil {
		log.Debugf("Pipeline: %v", err)
		p.completeCycle(now, nil)
		return
	}
	p.awaiting = true
	p.requestedAt = now
	p.awaitFrame(now)
}

func (p *Pipeline) awaitFrame(now clock.Millis) {
	if frame, ok := p.pm.Poll(now); ok {
		p.completeCycle(now, &frame)
		return
	}
	if clock.Reached(now, p.requestedAt, pms.ResponseTimeoutMillis) {
		log.Debugf("Pipeline: no PM frame within %d ms", pms.ResponseTimeoutMillis)
		p.completeCycle(now, nil)
	}
}

func (p *Pipeline) readEnvironment() {
	sample, err := p.env.Read()
	if err == nil {
		err = ValidateEnvSample(sample)
	}
	if err != nil {
		log.Debugf("Pipeline: environment read failed: %v", err)
		out := p.envHealth.Failure()
		if out.WentOffline {
			p.conditioner.ResetEnvironment()
		}
		if out.Reinitialize {
			p.reinit(p.envHealth, p.env.Init)
		}
		return
	}

	if p.envHealth.Success() {
		p.conditioner.ResetEnvironment()
	}
	p.reading.Environment = p.conditioner.ConditionEnvironment(sample)
}

func (p *Pipeline) completeCycle(now clock.Millis, frame *pms.RawFrame) {
	p.awaiting = false

	if frame != nil {
		if p.pmHealth.Success() {
			p.conditioner.ResetParticulates()
			p.fan.Reset()
		}
		pm := p.conditioner.ConditionParticulates(*frame)
		p.reading.Particulates = pm
		p.fanStatus = p.fan.Check(health.Triple{pm.PM1, pm.PM25, pm.PM10})
	} else {
		out := p.pmHealth.Failure()
		if out.WentOffline {
			p.conditioner.ResetParticulates()
			p.fan.Reset()
			p.fanStatus = models.StatusOK
		}
		if out.Reinitialize {
			p.reinit(p.pmHealth, p.pm.Init)
			p.pmAsleep = false
		}
	}

	p.reading.ParticlesStale = p.pmHealth.Stale()
	p.reading.EnvStale = p.envHealth.Stale()
	derived := environment.Derive(p.reading.Environment, p.reading.Particulates, p.altitude)

	if !p.reading.ParticlesStale {
		if event := p.alarm.Evaluate(now, p.reading.Particulates.PM25, p.reading.Particulates.PM10); event != nil {
			p.emitAlarm(event)
		}
	}

	p.cycle++
	snapshot := p.buildSnapshot(derived)
	p.mu.Lock()
	p.latest = snapshot
	p.mu.Unlock()

	p.trackStatus(snapshot)

	if p.lastPublished == 0 || p.cycle-p.lastPublished >= uint64(p.windowSize) {
		p.lastPublished = p.cycle
		p.emitSnapshot(snapshot)
	}

	log.Debugf("Pipeline: cycle %d PM1=%d PM2.5=%d PM10=%d T=%.2f RH=%.2f P=%.2f pm=%s env=%s",
		p.cycle, snapshot.Reading.Particulates.PM1, snapshot.Reading.Particulates.PM25,
		snapshot.Reading.Particulates.PM10, snapshot.Reading.Environment.Temperature,
		snapshot.Reading.Environment.Humidity, snapshot.Reading.Environment.Pressure,
		snapshot.PMStatus, snapshot.EnvStatus)

	if !p.noSleep && !p.schedule.KeepAwake && p.pmHealth.Online() && !p.pmAsleep {
		if err := p.pm.Sleep(); err != nil {
			log.Warnf("Pipeline: PM sleep failed: %v", err)
		} else {
			p.pmAsleep = true
		}
	}
}

func (p *Pipeline) reinit(t *health.Tracker, init func() error) {
	log.Debugf("Pipeline: re-initializing %s sensor", t.Name())
	if err := init(); err != nil {
		t.ReinitFailed(err)
		return
	}
	t.ReinitSucceeded()
}

// wake powers the sensor up and restores passive mode, which it may not keep across sleep
func (p *Pipeline) wake() {
	if err := p.pm.WakeUp(); err != nil {
		log.Warnf("Pipeline: PM wake failed: %v", err)
		return
	}
	p.pmAsleep = false
	if err := p.pm.PassiveMode(); err != nil {
		log.Warnf("Pipeline: PM passive mode failed: %v", err)
	}
}

// pmStatus reports the advisory fan status while the tracker is OK
func (p *Pipeline) pmStatus() models.SensorStatus {
	if st := p.pmHealth.Status(); st != models.StatusOK {
		return st
	}
	return p.fanStatus
}

func (p *Pipeline) buildSnapshot(derived models.DerivedReadings) *models.Snapshot {
	stats := p.pm.Stats()
	quality := models.AirUnknown
	if !p.reading.ParticlesStale {
		quality = models.AirQualityFromPM10(p.reading.Particulates.PM10)
	}
	return &models.Snapshot{
		DeviceID:     p.deviceID,
		Timestamp:    p.wallClock(),
		Cycle:        p.cycle,
		Reading:      p.reading,
		Derived:      derived,
		AirQuality:   quality,
		PMStatus:     p.pmStatus(),
		EnvStatus:    p.envHealth.Status(),
		Alarm:        p.alarm.State(),
		FramesOK:     stats.Frames,
		FramesDrop:   stats.Dropped(),
		DropsByCause: stats.ByCause(),
	}
}

func (p *Pipeline) trackStatus(s *models.Snapshot) {
	if s.PMStatus != p.lastPMStatus {
		p.emitStatus(SensorPM, p.lastPMStatus, s.PMStatus, s.Timestamp)
		p.lastPMStatus = s.PMStatus
	}
	if s.EnvStatus != p.lastEnvStatus {
		p.emitStatus(SensorEnv, p.lastEnvStatus, s.EnvStatus, s.Timestamp)
		p.lastEnvStatus = s.EnvStatus
	}
}

func (p *Pipeline) emitSnapshot(s *models.Snapshot) {
	select {
	case p.Snapshots <- s:
	default:
		log.Warnf("Pipeline: snapshot channel full, dropping cycle %d", s.Cycle)
	}
}

func (p *Pipeline) emitAlarm(e *models.AlarmEvent) {
	select {
	case p.Alarms <- e:
	default:
		log.Warnf("Pipeline: alarm channel full, dropping event %s", e.ID)
	}
}

func (p *Pipeline) emitStatus(sensor string, from, to models.SensorStatus, at time.Time) {
	change := &models.StatusChange{DeviceID: p.deviceID, Sensor: sensor, From: from, To: to, Timestamp: at}
	select {
	case p.StatusChanges <- change:
	default:
		log.Warnf("Pipeline: status channel full, dropping %s %s->%s", sensor, from, to)
	}
}

// Latest returns the snapshot of the most recent completed cycle, or nil
func (p *Pipeline) Latest() *models.Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest
}

// Settings returns the durable configuration currently in effect
func (p *Pipeline) Settings() models.Settings {
	st := p.alarm.State()
	return models.Settings{
		PublishIntervalMinutes: p.publishMinutes,
		AltitudeMeters:         p.altitude,
		Calibration:            p.conditioner.Calibration(),
		AlarmEnabled:           st.Enabled,
		AlarmPM25Threshold:     st.PM25Threshold,
		AlarmPM10Threshold:     st.PM10Threshold,
		AlarmCooldownSeconds:   st.CooldownSeconds,
	}
}

// Schedule returns the active read schedule
func (p *Pipeline) Schedule() Schedule {
	return p.schedule
}

// ValidateEnvSample rejects non-finite or physically impossible readings
func ValidateEnvSample(s models.EnvSample) error {
	for _, v := range []float64{s.Temperature, s.Humidity, s.Pressure} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Wrap(ErrOutOfRange, "non-finite value")
		}
	}
	if s.Temperature <= MinValidTemperature || s.Temperature >= MaxValidTemperature {
		return errors.Wrapf(ErrOutOfRange, "temperature %.2f", s.Temperature)
	}
	if s.Humidity < MinValidHumidity || s.Humidity > MaxValidHumidity {
		return errors.Wrapf(ErrOutOfRange, "humidity %.2f", s.Humidity)
	}
	return nil
}
