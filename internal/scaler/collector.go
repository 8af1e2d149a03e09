package scaler

import (
	"net/http"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	psnet "github.com/shirou/gopsutil/v4/net"
)

// HostCollector gathers real telemetry from the local host via gopsutil.
// NetworkIO is total bytes/s (rx+tx) computed from IOCounters deltas; the
// decision policy does not consume that field, so its unit differs from
// the simulated percent-like range without affecting decisions.
//
// ResponseTime is measured by timing an HTTP GET against probeURL when one
// is configured; otherwise it stays 0, which never triggers the
// response-time scale-up condition.
type HostCollector struct {
	mu          sync.Mutex
	prevRx      uint64
	prevTx      uint64
	prevTime    time.Time
	initialized bool

	probeURL string
	client   *http.Client
}

// NewHostCollector creates a collector. probeURL may be empty.
func NewHostCollector(probeURL string) *HostCollector {
	return &HostCollector{
		probeURL: probeURL,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Collect gathers the current host snapshot. Individual probe failures
// leave the corresponding field at zero rather than failing the cycle.
func (c *HostCollector) Collect() (SystemMetrics, error) {
	m := SystemMetrics{Timestamp: time.Now()}

	if pcts, err := cpu.Percent(500*time.Millisecond, false); err == nil && len(pcts) > 0 {
		m.CPUUsage = pcts[0]
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		m.MemoryUsage = vm.UsedPercent
	}

	m.DiskUsage = maxDiskUsage()

	if conns, err := psnet.Connections("tcp"); err == nil {
		m.ActiveConnections = len(conns)
	}

	m.NetworkIO = c.netThroughput()
	m.ResponseTime = c.probeResponseTime()

	return m, nil
}

// maxDiskUsage returns the used percentage of the fullest partition.
func maxDiskUsage() float64 {
	partitions, err := disk.Partitions(false)
	if err != nil {
		return 0
	}
	var max float64
	for _, p := range partitions {
		usage, err := disk.Usage(p.Mountpoint)
		if err != nil {
			continue
		}
		if usage.UsedPercent > max {
			max = usage.UsedPercent
		}
	}
	return max
}

// netThroughput computes total bytes/s since the last call from
// IOCounters deltas. The first call seeds the baseline and returns 0.
func (c *HostCollector) netThroughput() float64 {
	stats, err := psnet.IOCounters(false) // aggregate all interfaces
	if err != nil || len(stats) == 0 {
		return 0
	}
	now := time.Now()
	curRx := stats[0].BytesRecv
	curTx := stats[0].BytesSent

	c.mu.Lock()
	defer c.mu.Unlock()

	var bps float64
	if c.initialized {
		dt := now.Sub(c.prevTime).Seconds()
		if dt > 0 && curRx >= c.prevRx && curTx >= c.prevTx { // counter reset (reboot) reads as 0
			bps = float64((curRx-c.prevRx)+(curTx-c.prevTx)) / dt
		}
	}

	c.prevRx = curRx
	c.prevTx = curTx
	c.prevTime = now
	c.initialized = true
	return bps
}

// probeResponseTime times one GET against the configured probe URL and
// returns milliseconds, or 0 when no probe is configured or it fails.
func (c *HostCollector) probeResponseTime() float64 {
	if c.probeURL == "" {
		return 0
	}
	start := time.Now()
	resp, err := c.client.Get(c.probeURL)
	if err != nil {
		return 0
	}
	resp.Body.Close()
	return float64(time.Since(start).Microseconds()) / 1000.0
}
