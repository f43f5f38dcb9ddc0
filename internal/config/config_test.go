package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWorkersValid(t *testing.T) {
	ws, err := ParseWorkers("camera:/usr/bin/camctl --loop:true,logger:/usr/bin/logd -v:false")
	require.NoError(t, err)
	require.Len(t, ws, 2)

	assert.Equal(t, "camera", ws[0].Name)
	assert.Equal(t, []string{"/usr/bin/camctl", "--loop"}, ws[0].Command)
	assert.True(t, ws[0].Essential)

	assert.Equal(t, "logger", ws[1].Name)
	assert.Equal(t, []string{"/usr/bin/logd", "-v"}, ws[1].Command)
	assert.False(t, ws[1].Essential)
}

func TestParseWorkersSkipsBlankEntries(t *testing.T) {
	ws, err := ParseWorkers(" camera:/bin/true:true , ,  ")
	require.NoError(t, err)
	require.Len(t, ws, 1)
	assert.Equal(t, "camera", ws[0].Name)
}

func TestParseWorkersRejectsMalformed(t *testing.T) {
	_, err := ParseWorkers("camera:/bin/true")
	assert.Error(t, err)

	_, err = ParseWorkers("camera::true")
	assert.Error(t, err)

	_, err = ParseWorkers(":/bin/true:true")
	assert.Error(t, err)

	_, err = ParseWorkers("camera:/bin/true:maybe")
	assert.Error(t, err)
}

func TestDefaultValidates(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestValidateRejectsDuplicateWorkerNames(t *testing.T) {
	cfg := Default()
	cfg.Workers = []WorkerSpec{
		{Name: "a", Command: []string{"/bin/true"}},
		{Name: "a", Command: []string{"/bin/false"}},
	}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsEmptyEndpoint(t *testing.T) {
	cfg := Default()
	cfg.TelemetryEndpoint = ""
	assert.Error(t, cfg.Validate())
}

func TestFromEnvironOverlaysDefaults(t *testing.T) {
	os.Setenv("GWSV_DEVICE_ID", "edge-test-1")
	os.Setenv("GWSV_FLUSH_INTERVAL", "5s")
	os.Setenv("GWSV_WORKERS", "w1:/bin/true:true")
	defer os.Unsetenv("GWSV_DEVICE_ID")
	defer os.Unsetenv("GWSV_FLUSH_INTERVAL")
	defer os.Unsetenv("GWSV_WORKERS")

	cfg, err := FromEnviron()
	require.NoError(t, err)
	assert.Equal(t, "edge-test-1", cfg.DeviceID)
	assert.Equal(t, 5*time.Second, cfg.FlushInterval)
	require.Len(t, cfg.Workers, 1)
	assert.Equal(t, "w1", cfg.Workers[0].Name)
}

func TestFromEnvironRejectsBadDuration(t *testing.T) {
	os.Setenv("GWSV_FLUSH_INTERVAL", "not-a-duration")
	defer os.Unsetenv("GWSV_FLUSH_INTERVAL")

	_, err := FromEnviron()
	assert.Error(t, err)
}
