// Package agent implements the OpenScale agent daemon.
// It periodically collects host metrics and reports them to the server
// data-plane (port 7601).
// Every outbound HTTP request carries: Authorization: Bearer <token>
package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/kelvas/openscale/internal/config"
	"github.com/kelvas/openscale/internal/scaler"
)

// MetricsPayload wraps a SystemMetrics snapshot for HTTP transport. The
// server timestamps samples on arrival, so no timestamp travels.
type MetricsPayload struct {
	Hostname          string  `json:"hostname"`
	CPUUsage          float64 `json:"cpu_usage"`
	MemoryUsage       float64 `json:"memory_usage"`
	DiskUsage         float64 `json:"disk_usage"`
	NetworkIO         float64 `json:"network_io"`
	ActiveConnections int     `json:"active_connections"`
	ResponseTime      float64 `json:"response_time"`
}

// Run starts the agent main loop: collect host metrics and post them to
// the server on every tick.
//
// cfg.AgentJoinAddr is the data-plane address, e.g. "192.168.1.1:7601".
// cfg.AgentOutboundToken is sent in every request as "Authorization: Bearer <token>".
func Run(cfg *config.Config) error {
	base := fmt.Sprintf("http://%s", cfg.AgentJoinAddr)
	collector := scaler.NewHostCollector(cfg.ProbeURL)
	token := cfg.AgentOutboundToken

	hostname, _ := os.Hostname()

	// Warmup: seed the bandwidth baseline before the first real report.
	_, _ = collector.Collect()

	ticker := time.NewTicker(time.Duration(cfg.AgentInterval) * time.Second)
	defer ticker.Stop()

	fmt.Printf("[agent] reporting every %ds to %s. Press Ctrl+C to stop.\n", cfg.AgentInterval, base)
	for range ticker.C {
		snap, err := collector.Collect()
		if err != nil {
			fmt.Printf("[agent] collect error: %v\n", err)
			continue
		}

		payload := MetricsPayload{
			Hostname:          hostname,
			CPUUsage:          snap.CPUUsage,
			MemoryUsage:       snap.MemoryUsage,
			DiskUsage:         snap.DiskUsage,
			NetworkIO:         snap.NetworkIO,
			ActiveConnections: snap.ActiveConnections,
			ResponseTime:      snap.ResponseTime,
		}

		if err := postJSON(base+"/api/metrics", token, payload); err != nil {
			fmt.Printf("[agent] report error: %v\n", err)
		}
	}
	return nil
}

// postJSON sends v as JSON via HTTP POST with the Bearer token in the
// Authorization header. Every data-plane request is authenticated.
func postJSON(url, bearerToken string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearerToken)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("server rejected token (401) — check --token or agent_token in config")
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return nil
}
