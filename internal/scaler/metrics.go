// Package scaler implements the OpenScale decision engine: a time-windowed
// metrics history, threshold evaluation and confidence-gated scaling.
package scaler

import (
	"math/rand"
	"time"
)

// SystemMetrics is an immutable snapshot of one collection cycle.
// CPU/memory/disk are percentages 0-100; ResponseTime is milliseconds.
type SystemMetrics struct {
	CPUUsage          float64   `json:"cpu_usage"`
	MemoryUsage       float64   `json:"memory_usage"`
	DiskUsage         float64   `json:"disk_usage"`
	NetworkIO         float64   `json:"network_io"`
	ActiveConnections int       `json:"active_connections"`
	ResponseTime      float64   `json:"response_time"`
	Timestamp         time.Time `json:"timestamp"`
}

// WindowAverages holds per-field arithmetic means over the current history
// window. ActiveConnections is averaged as a float.
type WindowAverages struct {
	CPUUsage          float64 `json:"cpu_usage"`
	MemoryUsage       float64 `json:"memory_usage"`
	DiskUsage         float64 `json:"disk_usage"`
	NetworkIO         float64 `json:"network_io"`
	ActiveConnections float64 `json:"active_connections"`
	ResponseTime      float64 `json:"response_time"`
}

// Collector produces one SystemMetrics sample per call. Implementations:
// SimCollector (synthetic), HostCollector (gopsutil), or the server's agent
// ingest path, which feeds samples collected remotely.
type Collector interface {
	Collect() (SystemMetrics, error)
}

// SimCollector generates synthetic samples from fixed ranges. It stands in
// for a real telemetry source in simulate mode and in tests.
type SimCollector struct {
	rng *rand.Rand
	now func() time.Time
}

// NewSimCollector returns a time-seeded synthetic collector.
func NewSimCollector() *SimCollector {
	return NewSimCollectorWithSource(rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewSimCollectorWithSource returns a synthetic collector backed by the
// given source, so tests can replay a deterministic sequence.
func NewSimCollectorWithSource(rng *rand.Rand) *SimCollector {
	return &SimCollector{rng: rng, now: time.Now}
}

// Collect draws a sample from the simulated ranges:
// cpu 20-90, memory 30-80, disk 40-70, network 10-100,
// connections 50-500, response time 100-800ms.
func (c *SimCollector) Collect() (SystemMetrics, error) {
	return SystemMetrics{
		CPUUsage:          c.uniform(20, 90),
		MemoryUsage:       c.uniform(30, 80),
		DiskUsage:         c.uniform(40, 70),
		NetworkIO:         c.uniform(10, 100),
		ActiveConnections: 50 + c.rng.Intn(451),
		ResponseTime:      c.uniform(100, 800),
		Timestamp:         c.now(),
	}, nil
}

func (c *SimCollector) uniform(lo, hi float64) float64 {
	return lo + c.rng.Float64()*(hi-lo)
}
