// Package supervisor owns the top-level process lifecycle: it wires the
// other components together, installs signal handlers, and runs the strict
// startup/shutdown sequence.
package supervisor

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/nehonix-edge/gatewaysupervisord/internal/breaker"
	"github.com/nehonix-edge/gatewaysupervisord/internal/config"
	"github.com/nehonix-edge/gatewaysupervisord/internal/health"
	"github.com/nehonix-edge/gatewaysupervisord/internal/metrics"
	"github.com/nehonix-edge/gatewaysupervisord/internal/orchestrator"
	"github.com/nehonix-edge/gatewaysupervisord/internal/queue"
	"github.com/nehonix-edge/gatewaysupervisord/internal/retry"
	"github.com/nehonix-edge/gatewaysupervisord/internal/telemetry"
)

// gracePeriod bounds StopAll's wait before escalating to SIGKILL.
const gracePeriod = 10 * time.Second

// Supervisor owns Orchestrator, HealthMonitor and TelemetryClient, and
// drives the signal-triggered shutdown sequence.
type Supervisor struct {
	cfg *config.Config
	log zerolog.Logger

	Metrics      *metrics.Registry
	Queue        *queue.Queue
	Telemetry    *telemetry.Client
	Health       *health.Monitor
	Orchestrator *orchestrator.Orchestrator

	stateDir string

	heartbeatStop chan struct{}
	heartbeatDone chan struct{}
}

// New builds every component and wires them together, but does not start
// anything yet.
func New(cfg *config.Config, log zerolog.Logger) (*Supervisor, error) {
	reg := metrics.New()

	q, err := queue.Open(cfg.StateDir + "/telemetry_queue.db")
	if err != nil {
		return nil, err
	}

	br := breaker.New(cfg.CircuitFailureThreshold, cfg.CircuitTimeout)

	tc := telemetry.New(telemetry.Config{
		DeviceID:      cfg.DeviceID,
		Endpoint:      cfg.TelemetryEndpoint,
		FlushInterval: cfg.FlushInterval,
		Retry: retry.Policy{
			MaxAttempts:   cfg.RetryMaxAttempts,
			InitialDelay:  cfg.RetryInitialDelay,
			Multiplier:    2.0,
			MaxDelay:      30 * time.Second,
			Randomization: 0.5,
		},
	}, br, q, reg, log)

	orch := orchestrator.New(orchestrator.Config{
		WatchdogInterval: cfg.WatchdogInterval,
		MaxRestarts:      cfg.MaxRestarts,
		StabilityWindow:  cfg.StabilityWindow,
	}, tc, reg, log)

	hm := health.NewMonitor(health.Config{
		Interval:          cfg.HealthInterval,
		TempThreshold:     cfg.TempThreshold,
		CPUThreshold:      cfg.CPUThreshold,
		MemThreshold:      cfg.MemoryThreshold,
		HysteresisMarginC: cfg.HysteresisMargin,
		WarnDebounce:      cfg.WarnDebounce,
	}, health.NewGopsutilSampler(), health.Callbacks{
		OnOverheat: orch.OnOverheat,
		OnRecover:  orch.OnRecover,
	}, tc, reg, log)

	for _, ws := range cfg.Workers {
		if err := orch.Register(orchestrator.Spec{
			Name:      ws.Name,
			Command:   ws.Command,
			Essential: ws.Essential,
		}); err != nil {
			return nil, err
		}
	}

	return &Supervisor{
		cfg:          cfg,
		log:          log.With().Str("component", "supervisor").Logger(),
		Metrics:      reg,
		Queue:        q,
		Telemetry:    tc,
		Health:       hm,
		Orchestrator: orch,
		stateDir:     cfg.StateDir,
	}, nil
}

// Run starts every component, blocks until a shutdown signal arrives, then
// shuts down in strict reverse order. It returns the process exit code (0
// on clean shutdown).
func (s *Supervisor) Run() int {
	s.Telemetry.Start()
	if err := s.Orchestrator.StartAll(); err != nil {
		s.log.Error().Err(err).Msg("orchestrator start reported an error")
	}
	s.Health.Start()

	if s.cfg.HeartbeatInterval > 0 {
		s.heartbeatStop = make(chan struct{})
		s.heartbeatDone = make(chan struct{})
		go s.heartbeatLoop(s.heartbeatStop, s.heartbeatDone)
	}

	s.waitForShutdownSignal()

	s.log.Info().Msg("shutdown signal received, starting graceful shutdown")
	s.shutdown()
	return 0
}

// waitForShutdownSignal blocks until SIGTERM or SIGINT arrives. Any other
// signal is left to its default disposition.
func (s *Supervisor) waitForShutdownSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	<-sigCh
	signal.Stop(sigCh)
}

func (s *Supervisor) heartbeatLoop(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Telemetry.Send("heartbeat", map[string]any{"device_id": s.cfg.DeviceID})
		}
	}
}

// shutdown performs the strict reverse-order shutdown sequence: stop the
// heartbeat loop → stop Orchestrator (grace then escalation) → stop
// HealthMonitor → final flush on TelemetryClient → stop TelemetryClient →
// emit final metrics.
func (s *Supervisor) shutdown() {
	if s.heartbeatStop != nil {
		close(s.heartbeatStop)
		<-s.heartbeatDone
	}
	s.Orchestrator.StopAll(gracePeriod)
	s.Health.Stop()
	s.Telemetry.Flush()
	s.Telemetry.Stop()

	snap := s.Metrics.Snapshot()
	s.log.Info().Msg(snap.String())
	_ = os.WriteFile(s.stateDir+"/last_metrics_snapshot.txt", []byte(snap.String()), 0o600)

	if err := s.Queue.Close(); err != nil {
		s.log.Warn().Err(err).Msg("failed to close persistent queue cleanly")
	}
}
