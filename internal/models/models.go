// Package models defines GORM data models for OpenScale.
package models

import (
	"time"

	"gorm.io/gorm"
)

// MetricSample stores one ingested or locally collected metrics snapshot.
// The in-memory scaler window stays authoritative for decisions; these rows
// exist for the operator API and post-hoc analysis.
type MetricSample struct {
	gorm.Model

	// Source: "sim", "host", or "agent".
	Source   string `gorm:"index" json:"source"`
	Hostname string `gorm:"index" json:"hostname"`

	CPUUsage          float64 `json:"cpu_usage"`    // percent 0-100
	MemoryUsage       float64 `json:"memory_usage"` // percent 0-100
	DiskUsage         float64 `json:"disk_usage"`   // percent 0-100 (fullest mount)
	NetworkIO         float64 `json:"network_io"`
	ActiveConnections int     `json:"active_connections"`
	ResponseTime      float64 `json:"response_time"` // milliseconds

	SampledAt time.Time `gorm:"index" json:"sampled_at"`
}

// ScaleEvent records one applied scaling action with the averaged window
// that produced it.
type ScaleEvent struct {
	gorm.Model

	Action        string  `gorm:"index" json:"action"` // scale_up | scale_down
	FromInstances int     `json:"from_instances"`
	ToInstances   int     `json:"to_instances"`
	Confidence    float64 `json:"confidence"`

	AvgCPU          float64 `json:"avg_cpu"`
	AvgMemory       float64 `json:"avg_memory"`
	AvgResponseTime float64 `json:"avg_response_time"`

	AppliedAt time.Time `gorm:"index" json:"applied_at"`
}
