package orchestrator

import (
	"strconv"
	"time"

	"github.com/nehonix-edge/gatewaysupervisord/internal/metrics"
)

// startWatchdog launches the dedicated watchdog goroutine. Safe to call
// only once per Orchestrator lifetime (StartAll's caller); StopAll tears it
// down.
func (o *Orchestrator) startWatchdog() {
	o.mu.Lock()
	if o.watchdogStop != nil {
		o.mu.Unlock()
		return
	}
	o.watchdogStop = make(chan struct{})
	o.watchdogDone = make(chan struct{})
	stop := o.watchdogStop
	done := o.watchdogDone
	o.mu.Unlock()

	go o.watchdogLoop(stop, done)
}

func (o *Orchestrator) stopWatchdog() {
	o.mu.Lock()
	stop := o.watchdogStop
	done := o.watchdogDone
	o.watchdogStop = nil
	o.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (o *Orchestrator) watchdogLoop(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(o.cfg.WatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			o.watchdogTick()
		}
	}
}

// watchdogTick probes every registered worker once: crashed workers are
// handed to handleCrash, stable long-running workers have their restart
// counter reset, and paused/stopped/idle/given-up workers are left alone.
func (o *Orchestrator) watchdogTick() {
	for _, name := range o.snapshotOrder() {
		w, err := o.lookup(name)
		if err != nil {
			continue
		}
		o.checkOne(w)
	}
}

func (o *Orchestrator) checkOne(w *worker) {
	w.mu.Lock()
	state := w.state
	startedAt := w.lastStartedAt
	w.mu.Unlock()

	switch state {
	case StatePaused, StateStopped, StateGaveUp, StateIdle:
		return // not dead, nothing to restart
	case StateRunning:
		if time.Since(startedAt) >= o.cfg.StabilityWindow {
			w.mu.Lock()
			if w.restartCount != 0 {
				w.restartCount = 0
			}
			w.mu.Unlock()
		}
		return
	case StateCrashed:
		o.handleCrash(w)
	}
}

// handleCrash counts only restarts actually performed, so restart_count
// never exceeds MaxRestarts: a worker already at the ceiling gives up
// without bumping the counter past it.
func (o *Orchestrator) handleCrash(w *worker) {
	w.mu.Lock()
	exitCode := w.lastExitCode
	name := w.spec.Name
	atCeiling := w.restartCount >= o.cfg.MaxRestarts
	if atCeiling {
		w.state = StateGaveUp
	} else {
		w.restartCount++
	}
	restartCount := w.restartCount
	w.mu.Unlock()

	o.metrics.IncCounter("orchestrator.worker_exits", metrics.Labels{"name": name, "exit_code": strconv.Itoa(exitCode)}, 1)

	if atCeiling {
		o.sink.Send("worker_gave_up", map[string]any{"name": name, "restart_count": restartCount})
		o.metrics.IncCounter("orchestrator.worker_gave_up", metrics.Labels{"name": name}, 1)
		o.log.Error().Str("worker", name).Int("restart_count", restartCount).Msg("worker exceeded max_restarts, giving up")
		return
	}

	o.log.Warn().Str("worker", name).Int("exit_code", exitCode).Int("restart_count", restartCount).Msg("worker crashed, respawning")
	if err := w.spawn(); err != nil {
		o.log.Error().Err(err).Str("worker", name).Msg("respawn failed")
	}
}
