package health

import "time"

// Sample is a point-in-time snapshot of host vitals. TempC is nil when the
// host exposes no thermal zone; the overheat predicate treats that as
// "unknown, do not fire".
type Sample struct {
	CPUPercent float64
	MemPercent float64
	DiskPercent float64
	TempC      *float64
	Timestamp  time.Time
}

// Sampler takes one HealthSample. Implementations must be safe to call
// repeatedly from the sampler's own goroutine only.
type Sampler interface {
	Sample() (Sample, error)
}
