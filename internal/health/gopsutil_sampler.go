// Sampler implementation backed by github.com/shirou/gopsutil/v3, reporting
// just the four host vitals a Sample needs: cpu, memory, disk, and
// temperature.
package health

import (
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// GopsutilSampler samples host vitals via gopsutil.
type GopsutilSampler struct {
	// DiskPath is the mount point to report disk usage for. Defaults to "/".
	DiskPath string
}

// NewGopsutilSampler builds a Sampler rooted at "/" for disk usage.
func NewGopsutilSampler() *GopsutilSampler {
	return &GopsutilSampler{DiskPath: "/"}
}

// Sample implements Sampler.
func (g *GopsutilSampler) Sample() (Sample, error) {
	diskPath := g.DiskPath
	if diskPath == "" {
		diskPath = "/"
	}

	cpuPct, err := cpu.Percent(0, false)
	if err != nil {
		return Sample{}, err
	}
	var cpuPercent float64
	if len(cpuPct) > 0 {
		cpuPercent = cpuPct[0]
	}

	vMem, err := mem.VirtualMemory()
	if err != nil {
		return Sample{}, err
	}

	du, err := disk.Usage(diskPath)
	if err != nil {
		return Sample{}, err
	}

	temp := readTempC()

	return Sample{
		CPUPercent:  cpuPercent,
		MemPercent:  vMem.UsedPercent,
		DiskPercent: du.UsedPercent,
		TempC:       temp,
		Timestamp:   time.Now(),
	}, nil
}

// readTempC reads the highest reported sensor temperature, or nil if the
// host exposes no thermal zone. Absence is "unknown", never an error.
func readTempC() *float64 {
	sensors, err := host.SensorsTemperatures()
	if err != nil || len(sensors) == 0 {
		return nil
	}
	var max float64
	found := false
	for _, s := range sensors {
		if s.Temperature <= 0 {
			continue
		}
		if !found || s.Temperature > max {
			max = s.Temperature
			found = true
		}
	}
	if !found {
		return nil
	}
	return &max
}
