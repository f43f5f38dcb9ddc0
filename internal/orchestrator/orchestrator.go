package orchestrator

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nehonix-edge/gatewaysupervisord/internal/gwerr"
	"github.com/nehonix-edge/gatewaysupervisord/internal/metrics"
)

// TelemetrySink mirrors health.TelemetrySink; declared locally so
// orchestrator has no dependency on the telemetry package (same
// capability-record discipline as health.TelemetrySink).
type TelemetrySink interface {
	Send(kind string, body map[string]any)
}

// Config configures the Orchestrator's watchdog.
type Config struct {
	WatchdogInterval time.Duration
	MaxRestarts      int
	// StabilityWindow is how long a respawned worker must stay Running
	// before RestartCount resets to zero.
	StabilityWindow time.Duration
}

// Orchestrator supervises a registry of named worker processes, starting,
// restarting, pausing, and stopping them on request or on the watchdog's own
// schedule.
type Orchestrator struct {
	cfg     Config
	metrics *metrics.Registry
	sink    TelemetrySink
	log     zerolog.Logger

	mu      sync.Mutex // guards registry membership only, never held during I/O
	order   []string
	workers map[string]*worker

	watchdogStop chan struct{}
	watchdogDone chan struct{}
}

// New builds an Orchestrator.
func New(cfg Config, sink TelemetrySink, reg *metrics.Registry, log zerolog.Logger) *Orchestrator {
	if cfg.StabilityWindow <= 0 {
		cfg.StabilityWindow = 60 * time.Second
	}
	return &Orchestrator{
		cfg:     cfg,
		metrics: reg,
		sink:    sink,
		log:     log.With().Str("component", "orchestrator").Logger(),
		workers: make(map[string]*worker),
	}
}

// Register adds a worker definition. Idempotent only when args match an
// existing registration exactly; otherwise returns gwerr.KindDuplicateName.
func (o *Orchestrator) Register(spec Spec) error {
	const op = "orchestrator.Register"
	o.mu.Lock()
	defer o.mu.Unlock()

	if existing, ok := o.workers[spec.Name]; ok {
		if sameSpec(existing.spec, spec) {
			return nil
		}
		return gwerr.New(op, gwerr.KindDuplicateName)
	}
	o.workers[spec.Name] = newWorker(spec, o.log)
	o.order = append(o.order, spec.Name)
	return nil
}

func sameSpec(a, b Spec) bool {
	if a.Name != b.Name || a.Essential != b.Essential || len(a.Command) != len(b.Command) {
		return false
	}
	for i := range a.Command {
		if a.Command[i] != b.Command[i] {
			return false
		}
	}
	return true
}

// StartAll spawns every registered worker.
func (o *Orchestrator) StartAll() error {
	for _, name := range o.snapshotOrder() {
		if err := o.Start(name); err != nil {
			o.log.Error().Err(err).Str("worker", name).Msg("failed to start worker")
		}
	}
	o.startWatchdog()
	return nil
}

// Start spawns the named worker. Returns gwerr.KindUnknownWorker,
// gwerr.KindAlreadyRunning-equivalent (InvalidState), or a wrapped
// gwerr.KindSpawn on exec failure.
func (o *Orchestrator) Start(name string) error {
	const op = "orchestrator.Start"
	w, err := o.lookup(name)
	if err != nil {
		return err
	}
	w.mu.Lock()
	if w.state == StateRunning || w.state == StatePaused {
		w.mu.Unlock()
		return gwerr.New(op, gwerr.KindInvalidState)
	}
	w.mu.Unlock()

	if err := w.spawn(); err != nil {
		return gwerr.Wrap(op, gwerr.KindSpawn, err)
	}
	return nil
}

func (o *Orchestrator) lookup(name string) (*worker, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	w, ok := o.workers[name]
	if !ok {
		return nil, gwerr.New("orchestrator.lookup", gwerr.KindUnknownWorker)
	}
	return w, nil
}

func (o *Orchestrator) snapshotOrder() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.order))
	copy(out, o.order)
	return out
}

// IsAlive is a non-blocking liveness query.
func (o *Orchestrator) IsAlive(name string) (bool, error) {
	w, err := o.lookup(name)
	if err != nil {
		return false, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state == StateRunning || w.state == StatePaused, nil
}

// Pause sends the job-control stop signal to the named worker. Idempotent:
// pausing an already-Paused worker is a no-op success.
func (o *Orchestrator) Pause(name string) error {
	return o.pauseWithReason(name, PauseReasonManual)
}

func (o *Orchestrator) pauseWithReason(name string, reason PauseReason) error {
	const op = "orchestrator.Pause"
	w, err := o.lookup(name)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == StatePaused {
		return nil // idempotent
	}
	if w.state != StateRunning {
		return gwerr.New(op, gwerr.KindInvalidState)
	}
	if err := sendStop(w.process); err != nil {
		return gwerr.Wrap(op, gwerr.KindInvalidState, err)
	}
	w.state = StatePaused
	w.pauseReason = reason
	return nil
}

// Resume sends the job-control continue signal. Idempotent: resuming an
// already-Running worker is a no-op success.
func (o *Orchestrator) Resume(name string) error {
	const op = "orchestrator.Resume"
	w, err := o.lookup(name)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == StateRunning {
		return nil // idempotent
	}
	if w.state != StatePaused {
		return gwerr.New(op, gwerr.KindInvalidState)
	}
	if err := sendContinue(w.process); err != nil {
		return gwerr.Wrap(op, gwerr.KindInvalidState, err)
	}
	w.state = StateRunning
	w.pauseReason = PauseReasonNone
	return nil
}

// OnOverheat pauses every non-essential worker, in registration order,
// skipping already-paused ones. Exposed to the health monitor via the
// Callbacks capability record.
func (o *Orchestrator) OnOverheat() {
	for _, name := range o.snapshotOrder() {
		w, err := o.lookup(name)
		if err != nil || w.spec.Essential {
			continue
		}
		w.mu.Lock()
		already := w.state == StatePaused
		w.mu.Unlock()
		if already {
			continue
		}
		if err := o.pauseWithReason(name, PauseReasonOverheat); err != nil {
			o.log.Warn().Err(err).Str("worker", name).Msg("overheat pause failed")
		} else {
			o.log.Info().Str("worker", name).Msg("paused for overheat")
		}
	}
}

// OnRecover resumes every worker this Orchestrator paused for overheat.
// Workers paused via the direct Pause API are left untouched.
func (o *Orchestrator) OnRecover() {
	for _, name := range o.snapshotOrder() {
		w, err := o.lookup(name)
		if err != nil {
			continue
		}
		w.mu.Lock()
		pausedForHeat := w.state == StatePaused && w.pauseReason == PauseReasonOverheat
		w.mu.Unlock()
		if !pausedForHeat {
			continue
		}
		if err := o.Resume(name); err != nil {
			o.log.Warn().Err(err).Str("worker", name).Msg("overheat resume failed")
		} else {
			o.log.Info().Str("worker", name).Msg("resumed after recover")
		}
	}
}

// StopAll sends a termination signal to every running worker, waits up to
// grace, then escalates to SIGKILL. Guarantees no live children on return.
func (o *Orchestrator) StopAll(grace time.Duration) {
	o.stopWatchdog()

	var wg sync.WaitGroup
	for _, name := range o.snapshotOrder() {
		w, err := o.lookup(name)
		if err != nil {
			continue
		}
		wg.Add(1)
		go func(w *worker) {
			defer wg.Done()
			o.stopOne(w, grace)
		}(w)
	}
	wg.Wait()
}

func (o *Orchestrator) stopOne(w *worker, grace time.Duration) {
	w.mu.Lock()
	if w.state != StateRunning && w.state != StatePaused {
		w.mu.Unlock()
		return
	}
	process := w.process
	done := w.done
	// A paused process must be resumed before SIGTERM is delivered, or it
	// will never get scheduled to handle the signal.
	if w.state == StatePaused {
		_ = sendContinue(process)
	}
	w.mu.Unlock()

	if err := sendTerminate(process); err != nil {
		o.log.Warn().Err(err).Str("worker", w.spec.Name).Msg("terminate signal failed")
	}

	select {
	case <-done:
	case <-time.After(grace):
		o.log.Warn().Str("worker", w.spec.Name).Msg("grace period exceeded, sending kill")
		_ = sendKill(process)
		<-done
	}

	w.mu.Lock()
	w.state = StateStopped
	w.mu.Unlock()
}

// Snapshots returns a point-in-time view of every registered worker, in
// registration order.
func (o *Orchestrator) Snapshots() []snapshot {
	var out []snapshot
	for _, name := range o.snapshotOrder() {
		if w, err := o.lookup(name); err == nil {
			out = append(out, w.snapshot())
		}
	}
	return out
}

// RestartCount reports a worker's current consecutive-restart counter.
func (o *Orchestrator) RestartCount(name string) (int, error) {
	w, err := o.lookup(name)
	if err != nil {
		return 0, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.restartCount, nil
}

// State reports a worker's current lifecycle state.
func (o *Orchestrator) State(name string) (State, error) {
	w, err := o.lookup(name)
	if err != nil {
		return 0, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state, nil
}
