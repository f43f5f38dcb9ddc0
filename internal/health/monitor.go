package health

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nehonix-edge/gatewaysupervisord/internal/metrics"
)

// TelemetrySink is the capability Monitor uses to push events, satisfied by
// *telemetry.Client. Declared here (rather than imported from telemetry) so
// health has no dependency on telemetry's package.
type TelemetrySink interface {
	Send(kind string, body map[string]any)
}

// Callbacks bundles the two function-valued fields Monitor invokes on
// overheat/recover, avoiding a direct, cyclic dependency between the health
// monitor and the process orchestrator.
type Callbacks struct {
	OnOverheat func()
	OnRecover  func()
}

// Config configures one Monitor.
type Config struct {
	Interval      time.Duration
	TempThreshold float64
	CPUThreshold  float64
	MemThreshold  float64
	// HysteresisMarginC is the degrees-Celsius margin below TempThreshold
	// that temp_c must fall to before overheating clears (default 5).
	HysteresisMarginC float64
	// WarnDebounce bounds how often resource_pressure telemetry fires.
	WarnDebounce time.Duration
}

// Monitor samples host vitals on a fixed interval and raises overheat/recover
// and resource-pressure events off a hysteretic threshold.
type Monitor struct {
	cfg       Config
	sampler   Sampler
	callbacks Callbacks
	sink      TelemetrySink
	metrics   *metrics.Registry
	log       zerolog.Logger

	mu            sync.RWMutex
	overheating   bool
	latest        Sample
	haveLatest    bool
	lastWarnAt    time.Time
	failedSamples uint64

	stop chan struct{}
	done chan struct{}
}

// NewMonitor builds a Monitor. A zero HysteresisMarginC in cfg defaults to
// 5°C.
func NewMonitor(cfg Config, sampler Sampler, callbacks Callbacks, sink TelemetrySink, reg *metrics.Registry, log zerolog.Logger) *Monitor {
	if cfg.HysteresisMarginC <= 0 {
		cfg.HysteresisMarginC = 5
	}
	if cfg.WarnDebounce <= 0 {
		cfg.WarnDebounce = 60 * time.Second
	}
	return &Monitor{
		cfg:       cfg,
		sampler:   sampler,
		callbacks: callbacks,
		sink:      sink,
		metrics:   reg,
		log:       log.With().Str("component", "health_monitor").Logger(),
	}
}

// Start begins the sampling loop on a dedicated goroutine. Safe to call
// again after Stop.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.stop != nil {
		m.mu.Unlock()
		return // already started
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	stop := m.stop
	done := m.done
	m.mu.Unlock()

	go m.loop(stop, done)
}

// Stop ends the sampling loop; safe to call more than once.
func (m *Monitor) Stop() {
	m.mu.Lock()
	stop := m.stop
	done := m.done
	m.stop = nil
	m.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// LatestSample returns the most recent successful sample, if any.
func (m *Monitor) LatestSample() (Sample, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest, m.haveLatest
}

func (m *Monitor) loop(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

func (m *Monitor) tick() {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Interface("panic", r).Msg("health monitor tick panicked, continuing")
		}
	}()

	sample, err := m.sampler.Sample()
	if err != nil {
		m.mu.Lock()
		m.failedSamples++
		m.mu.Unlock()
		m.metrics.IncCounter("health.sample_errors", nil, 1)
		m.log.Warn().Err(err).Msg("health sample failed, skipping")
		return
	}

	m.mu.Lock()
	m.latest = sample
	m.haveLatest = true
	m.mu.Unlock()

	m.metrics.SetGauge("host.cpu_pct", nil, sample.CPUPercent)
	m.metrics.SetGauge("host.mem_pct", nil, sample.MemPercent)
	m.metrics.SetGauge("host.disk_pct", nil, sample.DiskPercent)
	if sample.TempC != nil {
		m.metrics.SetGauge("host.temp_c", nil, *sample.TempC)
	}

	m.evaluateOverheat(sample)
	m.evaluatePressure(sample)
}

// evaluateOverheat implements a hysteretic latch: a single borderline sample
// can never flap it both ways, since crossing into overheat requires
// temp_c >= threshold and clearing it requires temp_c <= threshold - margin
// — the gap between the two is a dead zone that holds the prior state.
//
// The recover side is inclusive (<=) rather than strict (<): a sample that
// lands exactly on threshold-margin is treated as having reached the
// recovery point, not as one step short of it, so the latch clears as soon
// as the host is back at the target temperature instead of waiting for it
// to drop past that point.
func (m *Monitor) evaluateOverheat(sample Sample) {
	if sample.TempC == nil {
		return // unknown, never fires
	}
	temp := *sample.TempC
	recoverAt := m.cfg.TempThreshold - m.cfg.HysteresisMarginC

	m.mu.Lock()
	was := m.overheating
	switch {
	case !was && temp >= m.cfg.TempThreshold:
		m.overheating = true
		m.mu.Unlock()
		m.safeInvoke(m.callbacks.OnOverheat)
		m.sink.Send("overheat", map[string]any{"temp_c": temp, "threshold_c": m.cfg.TempThreshold})
		m.metrics.IncCounter("health.overheat_events", nil, 1)
	case was && temp <= recoverAt:
		m.overheating = false
		m.mu.Unlock()
		m.safeInvoke(m.callbacks.OnRecover)
		m.sink.Send("recover", map[string]any{"temp_c": temp, "recover_at_c": recoverAt})
		m.metrics.IncCounter("health.recover_events", nil, 1)
	default:
		m.mu.Unlock()
	}
}

func (m *Monitor) evaluatePressure(sample Sample) {
	if sample.CPUPercent <= m.cfg.CPUThreshold && sample.MemPercent <= m.cfg.MemThreshold {
		return
	}
	m.mu.Lock()
	since := time.Since(m.lastWarnAt)
	if since < m.cfg.WarnDebounce {
		m.mu.Unlock()
		return
	}
	m.lastWarnAt = time.Now()
	m.mu.Unlock()

	m.sink.Send("resource_pressure", map[string]any{
		"cpu_pct": sample.CPUPercent,
		"mem_pct": sample.MemPercent,
	})
	m.metrics.IncCounter("health.resource_pressure_events", nil, 1)
}

func (m *Monitor) safeInvoke(fn func()) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Interface("panic", r).Msg("health monitor callback panicked")
		}
	}()
	fn()
}

// IsOverheating reports the current latch state (test helper / status use).
func (m *Monitor) IsOverheating() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.overheating
}
