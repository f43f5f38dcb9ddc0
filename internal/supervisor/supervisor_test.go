package supervisor

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nehonix-edge/gatewaysupervisord/internal/config"
)

func TestRunShutsDownCleanlyOnSIGTERM(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.TelemetryEndpoint = srv.URL
	cfg.StateDir = t.TempDir()
	cfg.HeartbeatInterval = 0
	cfg.HealthInterval = 50 * time.Millisecond
	cfg.WatchdogInterval = 50 * time.Millisecond
	cfg.FlushInterval = time.Hour
	cfg.Workers = []config.WorkerSpec{{Name: "sleeper", Command: []string{"/bin/sleep", "30"}}}

	sup, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)

	done := make(chan int, 1)
	go func() { done <- sup.Run() }()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))

	select {
	case code := <-done:
		assert.Equal(t, 0, code)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after SIGTERM")
	}

	alive, err := sup.Orchestrator.IsAlive("sleeper")
	require.NoError(t, err)
	assert.False(t, alive)

	_, err = os.Stat(filepath.Join(cfg.StateDir, "last_metrics_snapshot.txt"))
	assert.NoError(t, err)
}
