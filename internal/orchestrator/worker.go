// Package orchestrator supervises the lifecycle of long-lived child
// processes: watchdog-driven restart on crash, cooperative pause/resume, and
// graceful stop with escalation to SIGKILL for stragglers.
package orchestrator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State is a worker's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateCrashed
	StateStopped
	StateGaveUp
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateCrashed:
		return "crashed"
	case StateStopped:
		return "stopped"
	case StateGaveUp:
		return "gave_up"
	default:
		return "unknown"
	}
}

// PauseReason distinguishes a thermal pause from a direct-API pause, so a
// recover event only resumes workers that overheat paused in the first
// place.
type PauseReason int

const (
	PauseReasonNone PauseReason = iota
	PauseReasonOverheat
	PauseReasonManual
)

// Spec is the static, immutable description of one registered worker.
type Spec struct {
	Name      string
	Command   []string
	Essential bool
}

// worker is one managed child process. All mutable fields are guarded by mu,
// held only for short critical sections — no I/O happens under it.
type worker struct {
	spec Spec
	log  zerolog.Logger

	mu            sync.Mutex
	state         State
	pauseReason   PauseReason
	cmd           *exec.Cmd
	process       *os.Process
	restartCount  int
	lastExitCode  int
	lastStartedAt time.Time
	cancel        context.CancelFunc
	done          chan struct{}
}

func newWorker(spec Spec, log zerolog.Logger) *worker {
	return &worker{
		spec:         spec,
		log:          log.With().Str("worker", spec.Name).Logger(),
		state:        StateIdle,
		lastExitCode: -1,
	}
}

// spawn starts (or respawns) the child process. Caller must not hold w.mu.
func (w *worker) spawn() error {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, w.spec.Command[0], w.spec.Command[1:]...)
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("worker %s: stdout pipe: %w", w.spec.Name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("worker %s: stderr pipe: %w", w.spec.Name, err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("worker %s: start: %w", w.spec.Name, err)
	}

	done := make(chan struct{})

	w.mu.Lock()
	w.cmd = cmd
	w.process = cmd.Process
	w.state = StateRunning
	w.pauseReason = PauseReasonNone
	w.lastStartedAt = time.Now()
	w.lastExitCode = -1
	w.cancel = cancel
	w.done = done
	w.mu.Unlock()

	go w.streamLog(stdout, "stdout")
	go w.streamLog(stderr, "stderr")

	go func() {
		defer close(done)
		defer cancel()
		waitErr := cmd.Wait()

		w.mu.Lock()
		defer w.mu.Unlock()
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			w.lastExitCode = exitErr.ExitCode()
		} else if waitErr == nil {
			w.lastExitCode = 0
		} else {
			w.lastExitCode = -1
		}
		if w.state != StateStopped { // not already marked by a graceful Kill path
			w.state = StateCrashed
		}
	}()

	w.log.Info().Msg("worker spawned")
	return nil
}

func (w *worker) streamLog(r io.Reader, stream string) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		w.log.Debug().Str("stream", stream).Msg(scanner.Text())
	}
}

// snapshot is a point-in-time copy of a worker's externally-visible state.
type snapshot struct {
	Name         string
	State        State
	Essential    bool
	RestartCount int
	LastExitCode int
	PID          int
	StartedAt    time.Time
}

func (w *worker) snapshot() snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	pid := 0
	if w.process != nil {
		pid = w.process.Pid
	}
	return snapshot{
		Name:         w.spec.Name,
		State:        w.state,
		Essential:    w.spec.Essential,
		RestartCount: w.restartCount,
		LastExitCode: w.lastExitCode,
		PID:          pid,
		StartedAt:    w.lastStartedAt,
	}
}
